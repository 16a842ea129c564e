// Package session holds the cookies and bearer token collected during one
// synchronization run against the portal. A Session is never shared between
// runs and never persisted.
package session

import (
	"net/http"
	"sort"
	"strings"
)

// Session accumulates the state handed out by the portal and its identity
// provider. Every response received during a run must go through Absorb
// before the next request is issued.
type Session struct {
	cookies map[string]string
	bearer  string
}

func New() *Session {
	return &Session{cookies: map[string]string{}}
}

// Absorb records the Set-Cookie headers and any bearer token carried by res.
// Later values for the same cookie name replace earlier ones.
func (s *Session) Absorb(res *http.Response) {
	if s == nil || res == nil {
		return
	}
	s.AbsorbHeader(res.Header)
}

// AbsorbHeader is Absorb for callers that only kept the response headers.
func (s *Session) AbsorbHeader(h http.Header) {
	if s == nil || h == nil {
		return
	}
	for _, raw := range h.Values("Set-Cookie") {
		name, value, ok := parseSetCookie(raw)
		if ok {
			s.cookies[name] = value
		}
	}
	if auth := h.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		s.bearer = strings.TrimSpace(auth[len("bearer "):])
	}
}

// parseSetCookie keeps the value exactly as sent. net/http's cookie parser
// drops values with characters outside RFC 6265, and OAM cookies contain some.
func parseSetCookie(raw string) (string, string, bool) {
	pair := raw
	if i := strings.IndexByte(pair, ';'); i >= 0 {
		pair = pair[:i]
	}
	eq := strings.IndexByte(pair, '=')
	if eq == -1 {
		return "", "", false
	}
	name := strings.TrimSpace(pair[:eq])
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(pair[eq+1:]), true
}

// CookieHeader renders all cookies as a single Cookie header value, ordered
// by name. It returns "" when no cookie has been collected yet.
func (s *Session) CookieHeader() string {
	if s == nil || len(s.cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.cookies))
	for name := range s.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(s.cookies[name])
	}
	return b.String()
}

func (s *Session) Cookie(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.cookies[name]
	return v, ok
}

func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	return len(s.cookies)
}

func (s *Session) Bearer() string {
	if s == nil {
		return ""
	}
	return s.bearer
}
