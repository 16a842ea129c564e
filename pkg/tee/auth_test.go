package tee

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var goodCred = Credential{Username: "engineer", Password: "correct-horse"}

func TestAuthenticateRedirectBinding(t *testing.T) {
	f := newFakePortal(t)
	run, err := f.client(t).Authenticate(context.Background(), goodCred)
	require.NoError(t, err)

	v, ok := run.Session.Cookie("JSESSIONID")
	require.True(t, ok)
	assert.Equal(t, "sess-engineer", v)

	// Cookies from every hop are kept.
	_, ok = run.Session.Cookie("OAMAuthnHintCookie")
	assert.True(t, ok)
	_, ok = run.Session.Cookie("OAMRequestContext_services")
	assert.True(t, ok)
}

func TestAuthenticateFormPostBinding(t *testing.T) {
	f := newFakePortal(t)
	f.binding = true

	run, err := f.client(t).Authenticate(context.Background(), goodCred)
	require.NoError(t, err)
	v, _ := run.Session.Cookie("JSESSIONID")
	assert.Equal(t, "sess-engineer", v)
}

func TestAuthenticateRejectedRedirect(t *testing.T) {
	f := newFakePortal(t)
	_, err := f.client(t).Authenticate(context.Background(), Credential{Username: "engineer", Password: "wrong"})
	require.Error(t, err)

	assert.Equal(t, KindAuthentication, KindOf(err))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
	assert.Equal(t, MSG_LOGIN_REJECTED, err.Error())
	assert.Nil(t, DiagnosticOf(err))
}

func TestAuthenticateRejectedLoginPage(t *testing.T) {
	f := newFakePortal(t)
	f.rejectWithPage = true

	_, err := f.client(t).Authenticate(context.Background(), Credential{Username: "nobody", Password: "x"})
	assert.Equal(t, KindAuthentication, KindOf(err))
}

func TestAuthenticateMissingRequestID(t *testing.T) {
	f := newFakePortal(t)
	f.noRequestID = true

	_, err := f.client(t).Authenticate(context.Background(), goodCred)
	require.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))

	diag := DiagnosticOf(err)
	require.NotNil(t, diag)
	assert.Equal(t, STEP_LOGIN_FORM, diag.Step)
	assert.Equal(t, "TEE SSO", diag.Title)
	assert.Contains(t, diag.BodySnippet, "TEE SSO")
	assert.NotContains(t, err.Error(), "TEE SSO")
}

func TestAuthenticateNoSSORedirect(t *testing.T) {
	f := newFakePortal(t)
	f.noLandingRedir = true

	_, err := f.client(t).Authenticate(context.Background(), goodCred)
	require.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, STEP_LANDING, DiagnosticOf(err).Step)
}

func TestAuthenticateUnexpectedSubmitResponse(t *testing.T) {
	f := newFakePortal(t)
	f.submitStatus = http.StatusInternalServerError

	_, err := f.client(t).Authenticate(context.Background(), goodCred)
	require.Equal(t, KindUpstream, KindOf(err))
	diag := DiagnosticOf(err)
	require.NotNil(t, diag)
	assert.Equal(t, STEP_SUBMIT, diag.Step)
	assert.Equal(t, http.StatusInternalServerError, diag.StatusCode)
	assert.Contains(t, diag.BodySnippet, "OAM internal error")
}

func TestAuthenticateTimeoutIsUpstream(t *testing.T) {
	f := newFakePortal(t)
	f.landingDelay = 300 * time.Millisecond

	c := f.client(t)
	c.cfg.RequestTimeout = 50 * time.Millisecond
	_, err := c.Authenticate(context.Background(), goodCred)
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestAuthenticateIncompleteCredentialMakesNoRequest(t *testing.T) {
	f := newFakePortal(t)
	for _, cred := range []Credential{{}, {Username: "engineer"}, {Username: "  ", Password: "x"}} {
		_, err := f.client(t).Authenticate(context.Background(), cred)
		assert.Equal(t, KindConfiguration, KindOf(err))
		assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
		assert.Equal(t, MSG_NO_CREDENTIALS, err.Error())
	}
	assert.Zero(t, f.hits.Load())
}

func TestConcurrentRunsKeepSeparateSessions(t *testing.T) {
	f := newFakePortal(t)
	for i := 0; i < 5; i++ {
		f.users[fmt.Sprintf("user%d", i)] = fmt.Sprintf("pw%d", i)
	}
	c := f.client(t)

	var wg sync.WaitGroup
	got := make([]string, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := c.Authenticate(context.Background(), Credential{
				Username: fmt.Sprintf("user%d", i),
				Password: fmt.Sprintf("pw%d", i),
			})
			errs[i] = err
			if err == nil {
				got[i], _ = run.Session.Cookie("JSESSIONID")
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("sess-user%d", i), got[i])
	}
}

func TestCredentialNeverPrintsPassword(t *testing.T) {
	out := fmt.Sprintf("%v %+v %#v %s", goodCred, goodCred, goodCred, goodCred)
	assert.False(t, strings.Contains(out, goodCred.Password), out)
	assert.Contains(t, out, "engineer")
}

func TestExtractRequestIDDecodesEntities(t *testing.T) {
	assert.Equal(t, fakeRequestID, extractRequestID(`<input type="hidden" name="request_id" value="`+fakeRequestIDHTML+`">`))
	// Fragments that are not a well-formed document still go through the
	// pattern fallback.
	assert.Equal(t, "a&b", extractRequestID(`name='request_id' value='a&amp;b'`))
	assert.Equal(t, "", extractRequestID(`<form><input name="username"></form>`))
}
