package tee

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openadeia/teesync/pkg/whttp"
	"github.com/stretchr/testify/require"
)

const (
	fakeRequestIDHTML = "-123&#45;abc&#x2D;z"
	fakeRequestID     = "-123-abc-z"
)

// fakePortal emulates the portal and its OAM single sign-on closely enough
// to exercise the login handshake and the extraction strategies.
type fakePortal struct {
	portal *httptest.Server
	sso    *httptest.Server

	users map[string]string

	// binding makes a successful login answer with an auto-submitting form
	// instead of a redirect.
	binding bool
	// rejectWithPage makes a failed login answer 200 with the login form
	// instead of redirecting back to the SSO.
	rejectWithPage bool
	noRequestID    bool
	noLandingRedir bool
	submitStatus   int
	landingDelay   time.Duration

	listHTML string
	rest     map[string]string
	// restStatus, when set, is the status every REST endpoint answers with.
	restStatus int

	hits atomic.Int64
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	f := &fakePortal{
		users:    map[string]string{"engineer": "correct-horse"},
		listHTML: "<html><body><p>Καλώς ήρθατε</p></body></html>",
		rest:     map[string]string{},
	}
	f.portal = httptest.NewServer(http.HandlerFunc(f.servePortal))
	f.sso = httptest.NewServer(http.HandlerFunc(f.serveSSO))
	t.Cleanup(func() {
		f.portal.Close()
		f.sso.Close()
	})
	return f
}

func (f *fakePortal) client(t *testing.T) *Client {
	t.Helper()
	httpClient, err := whttp.NewClient("")
	require.NoError(t, err)
	return NewClient(Config{
		PortalURL:      f.portal.URL,
		SSOURL:         f.sso.URL,
		RequestTimeout: 2 * time.Second,
	}, httpClient)
}

func sessionUser(r *http.Request) (string, bool) {
	c, err := r.Cookie("JSESSIONID")
	if err != nil || !strings.HasPrefix(c.Value, "sess-") {
		return "", false
	}
	return strings.TrimPrefix(c.Value, "sess-"), true
}

func (f *fakePortal) servePortal(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	_, authed := sessionUser(r)

	switch {
	case r.URL.Path == LANDING_PATH:
		if f.landingDelay > 0 {
			time.Sleep(f.landingDelay)
		}
		if authed {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, f.listHTML)
			return
		}
		if f.noLandingRedir {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Add("Set-Cookie", "OAMAuthnHintCookie=0@1; Path=/")
		http.Redirect(w, r, f.sso.URL+OBRAREQ_PATH+"?encquery=abc", http.StatusFound)

	case r.URL.Path == "/obrar.cgi":
		_ = r.ParseForm()
		user := r.Form.Get("user")
		if user == "" {
			http.Error(w, "missing assertion", http.StatusBadRequest)
			return
		}
		w.Header().Add("Set-Cookie", "JSESSIONID=sess-"+user+"; Path=/; HttpOnly")
		http.Redirect(w, r, LANDING_PATH, http.StatusFound)

	case strings.HasPrefix(r.URL.Path, "/adeia/rest/"):
		if f.restStatus != 0 {
			w.WriteHeader(f.restStatus)
			return
		}
		body, ok := f.rest[r.URL.Path]
		if !authed || !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakePortal) loginPage() string {
	id := fmt.Sprintf(`<input type="hidden" name="request_id" value="%s">`, fakeRequestIDHTML)
	if f.noRequestID {
		id = ""
	}
	return `<html><head><title>TEE SSO</title></head><body><form method="post" action="/oam/server/auth_cred_submit">
<input type="text" name="username"><input type="password" name="password">` + id + `</form></body></html>`
}

func (f *fakePortal) serveSSO(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	switch r.URL.Path {
	case OBRAREQ_PATH:
		w.Header().Add("Set-Cookie", "OAMRequestContext_services=ctx-1; Path=/; Secure")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, f.loginPage())

	case CRED_SUBMIT_PATH:
		if f.submitStatus != 0 {
			w.WriteHeader(f.submitStatus)
			fmt.Fprint(w, "<html><body>OAM internal error</body></html>")
			return
		}
		_ = r.ParseForm()
		user, pass := r.PostForm.Get("username"), r.PostForm.Get("password")
		_, ctxErr := r.Cookie("OAMRequestContext_services")
		ok := ctxErr == nil &&
			r.PostForm.Get("request_id") == fakeRequestID &&
			f.users[user] == pass && pass != "" &&
			r.Header.Get("Origin") == f.sso.URL

		if !ok {
			if f.rejectWithPage {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				fmt.Fprint(w, f.loginPage())
				return
			}
			http.Redirect(w, r, f.sso.URL+OBRAREQ_PATH+"?p_error_code=OAM-2", http.StatusFound)
			return
		}
		if f.binding {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, `<html><body onload="document.forms[0].submit()">
<form method="post" action="%s/obrar.cgi"><input type="hidden" name="user" value="%s"></form></body></html>`, f.portal.URL, user)
			return
		}
		http.Redirect(w, r, f.portal.URL+"/obrar.cgi?user="+user, http.StatusFound)

	default:
		http.NotFound(w, r)
	}
}
