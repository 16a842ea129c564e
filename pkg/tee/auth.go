package tee

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/openadeia/teesync/pkg/metrics"
	"github.com/openadeia/teesync/pkg/whttp"
	"golang.org/x/net/html"
)

// Login steps, as reported in diagnostics.
const (
	STEP_LANDING    = "landing"
	STEP_LOGIN_FORM = "login_form"
	STEP_SUBMIT     = "credential_submit"
	STEP_FINAL      = "final_hop"
)

var requestIDRe = regexp.MustCompile(`name=['"]request_id['"]\s+value=['"]([^'"]+)['"]`)

// Authenticate starts a run for cred and logs it in. On success the run's
// session carries the portal session cookies.
func (c *Client) Authenticate(ctx context.Context, cred Credential) (*Run, error) {
	run, err := c.NewRun(cred)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	err = c.authenticate(ctx, run)
	metrics.AuthDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (c *Client) authenticate(ctx context.Context, run *Run) error {
	landingURL := c.cfg.PortalURL + LANDING_PATH

	// 1. The landing page redirects anonymous visitors to the SSO.
	res, err := c.send(ctx, run, &whttp.WHTTPReq{URL: landingURL})
	if err != nil {
		return upstreamError(STEP_LANDING, nil, err)
	}
	run.Log.WithField("step", STEP_LANDING).Debugf("status=%d location=%q", res.StatusCode, res.Location)
	if res.Location == "" {
		return upstreamError(STEP_LANDING, res, nil)
	}

	// 2. Load the login form and pick up its one-time request id.
	res, err = c.send(ctx, run, &whttp.WHTTPReq{
		URL:             res.Location,
		FollowRedirects: true,
		Headers:         []whttp.WHTTPHeader{{Name: "Referer", Value: landingURL}},
	})
	if err != nil {
		return upstreamError(STEP_LOGIN_FORM, nil, err)
	}
	run.Log.WithField("step", STEP_LOGIN_FORM).Debugf("status=%d hops=%d final=%q", res.StatusCode, res.Hops, res.FinalURL)
	requestID := extractRequestID(res.BodyString)
	if requestID == "" {
		return upstreamError(STEP_LOGIN_FORM, res, nil)
	}

	// 3. Submit the credentials.
	form := url.Values{}
	form.Set("username", run.Credential.Username)
	form.Set("password", run.Credential.Password)
	form.Set("request_id", requestID)
	submitURL := c.cfg.SSOURL + CRED_SUBMIT_PATH
	res, err = c.send(ctx, run, &whttp.WHTTPReq{
		URL:    submitURL,
		Method: http.MethodPost,
		Body:   form.Encode(),
		Headers: []whttp.WHTTPHeader{
			{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
			{Name: "Referer", Value: c.cfg.SSOURL + OBRAREQ_PATH},
			{Name: "Origin", Value: c.cfg.SSOURL},
		},
	})
	if err != nil {
		return upstreamError(STEP_SUBMIT, nil, err)
	}

	// 4. Decide whether the SSO accepted the login.
	final, err := c.classifySubmit(res, submitURL)
	if err != nil {
		run.Log.WithField("step", STEP_SUBMIT).Debugf("login not accepted: status=%d location=%q", res.StatusCode, res.Location)
		return err
	}

	// 5. Hand the assertion to the portal once; it sets the session cookie.
	fres, err := c.send(ctx, run, final)
	if err != nil {
		return upstreamError(STEP_FINAL, nil, err)
	}
	if fres.StatusCode >= 500 || run.Session.Len() == 0 {
		return upstreamError(STEP_FINAL, fres, nil)
	}
	run.Log.Debugf("logged in as %s, %d cookies held", run.Credential.Username, run.Session.Len())
	return nil
}

// classifySubmit returns the request completing a successful login, or the
// error describing why the login did not succeed.
func (c *Client) classifySubmit(res *whttp.WHTTPRes, submitURL string) (*whttp.WHTTPReq, error) {
	referer := []whttp.WHTTPHeader{{Name: "Referer", Value: submitURL}}

	if res.IsRedirect() {
		switch whttp.Host(res.Location) {
		case c.portalHost():
			return &whttp.WHTTPReq{URL: res.Location, Headers: referer}, nil
		case c.ssoHost():
			return nil, authenticationError()
		}
		return nil, upstreamError(STEP_SUBMIT, res, nil)
	}

	if res.StatusCode == http.StatusOK {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
		if err != nil {
			return nil, upstreamError(STEP_SUBMIT, res, err)
		}
		if req := c.bindingForm(doc, res.FinalURL); req != nil {
			req.Headers = append(req.Headers, referer...)
			return req, nil
		}
		if hasLoginForm(doc) {
			return nil, authenticationError()
		}
	}

	return nil, upstreamError(STEP_SUBMIT, res, nil)
}

// bindingForm finds an auto-submitting form posting back to the portal and
// turns it into the request a browser would send.
func (c *Client) bindingForm(doc *goquery.Document, base string) *whttp.WHTTPReq {
	var req *whttp.WHTTPReq
	doc.Find("form").EachWithBreak(func(_ int, f *goquery.Selection) bool {
		action, _ := f.Attr("action")
		target := resolveURL(base, action)
		if action == "" || whttp.Host(target) != c.portalHost() {
			return true
		}

		values := url.Values{}
		f.Find("input").Each(func(_ int, in *goquery.Selection) {
			name, ok := in.Attr("name")
			if !ok || name == "" {
				return
			}
			value, _ := in.Attr("value")
			values.Add(name, value)
		})

		method := strings.ToUpper(strings.TrimSpace(f.AttrOr("method", http.MethodPost)))
		if method == http.MethodGet {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			req = &whttp.WHTTPReq{URL: target + sep + values.Encode()}
			return false
		}
		req = &whttp.WHTTPReq{
			URL:     target,
			Method:  http.MethodPost,
			Body:    values.Encode(),
			Headers: []whttp.WHTTPHeader{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}},
		}
		return false
	})
	return req
}

func hasLoginForm(doc *goquery.Document) bool {
	return doc.Find(`input[name="request_id"], input[type="password"], input[name="password"]`).Length() > 0
}

// extractRequestID returns the decoded request_id of the SSO login form, or
// "" when the page carries none.
func extractRequestID(body string) string {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		if v, ok := doc.Find(`input[name="request_id"]`).First().Attr("value"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if m := requestIDRe.FindStringSubmatch(body); m != nil {
		return html.UnescapeString(m[1])
	}
	return ""
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
