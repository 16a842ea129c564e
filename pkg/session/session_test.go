package session

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbsorbAccumulatesAcrossResponses(t *testing.T) {
	s := New()

	first := &http.Response{Header: http.Header{}}
	first.Header.Add("Set-Cookie", "OAMAuthnHintCookie=0@1700000000; path=/; HttpOnly")
	first.Header.Add("Set-Cookie", "OAMRequestContext_services.tee.gr:443_123=abc==; Secure")
	s.Absorb(first)

	second := &http.Response{Header: http.Header{}}
	second.Header.Add("Set-Cookie", "OAMAuthnHintCookie=1@1700000001; path=/")
	second.Header.Add("Set-Cookie", "JSESSIONID=xyz; path=/adeia")
	s.Absorb(second)

	assert.Equal(t, 3, s.Len())
	v, ok := s.Cookie("OAMAuthnHintCookie")
	assert.True(t, ok)
	assert.Equal(t, "1@1700000001", v)

	v, _ = s.Cookie("OAMRequestContext_services.tee.gr:443_123")
	assert.Equal(t, "abc==", v)
}

func TestCookieHeaderIsSortedAndJoined(t *testing.T) {
	s := New()
	h := http.Header{}
	h.Add("Set-Cookie", "b=2")
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "garbage")
	h.Add("Set-Cookie", "=novalue")
	s.AbsorbHeader(h)

	assert.Equal(t, "a=1; b=2", s.CookieHeader())
}

func TestEmptySession(t *testing.T) {
	s := New()
	assert.Equal(t, "", s.CookieHeader())
	assert.Equal(t, "", s.Bearer())

	var nilSession *Session
	assert.Equal(t, "", nilSession.CookieHeader())
	nilSession.Absorb(&http.Response{Header: http.Header{}})
}

func TestBearerCapture(t *testing.T) {
	s := New()
	s.AbsorbHeader(http.Header{"Authorization": []string{"Bearer tok-123"}})
	assert.Equal(t, "tok-123", s.Bearer())
}
