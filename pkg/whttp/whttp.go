package whttp

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/openadeia/teesync/pkg/session"
	"golang.org/x/net/html"
)

const (
	USER_AGENT      = "OpenAdeia/1.2 (openadeia.org)"
	ACCEPT_LANGUAGE = "el-GR,el;q=0.9,en;q=0.8"
	ACCEPT_HTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

	DEFAULT_TIMEOUT = 12 * time.Second
	MAX_REDIRECTS   = 10
)

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Body    string

	// FollowRedirects makes SendHTTPRequest walk 3xx responses itself, one
	// hop at a time, so the session sees the cookies of every hop.
	FollowRedirects bool
	Session         *session.Session
	Timeout         time.Duration
}

type WHTTPRes struct {
	StatusCode int
	HTTPTitle  string
	BodyString string
	Headers    http.Header

	// Location is the absolute redirect target of the last response, if any.
	Location string
	// FinalURL is the URL that produced this response after any redirects.
	FinalURL string
	Hops     int
}

func (r *WHTTPRes) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

func (r *WHTTPRes) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *WHTTPRes) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

var defaultClient *retryablehttp.Client

func init() {
	defaultClient, _ = NewClient("")
}

// NewClient builds the client used for portal traffic. It never retries and
// never follows redirects on its own: retry policy belongs to the caller and
// redirects are walked by SendHTTPRequest.
func NewClient(proxy string) (*retryablehttp.Client, error) {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = 0
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		return false, nil
	}
	retryClient.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		if transport, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return retryClient, nil
}

// SetupProxy routes every request made through the default client via proxy.
func SetupProxy(proxy string) error {
	c, err := NewClient(proxy)
	if err != nil {
		return err
	}
	defaultClient = c
	return nil
}

func DefaultClient() *retryablehttp.Client {
	return defaultClient
}

// SendHTTPRequest performs wReq under its own timeout. When wReq.Session is
// set, its cookies are sent and every response (including intermediate
// redirect hops) is absorbed into it before anything else happens.
func SendHTTPRequest(ctx context.Context, wReq *WHTTPReq, client *retryablehttp.Client) (*WHTTPRes, error) {
	if client == nil {
		client = defaultClient
	}
	timeout := wReq.Timeout
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}
	target := wReq.URL
	body := wReq.Body

	for hop := 0; ; hop++ {
		resp, err := send(ctx, client, wReq, method, target, body)
		if err != nil {
			return nil, err
		}
		wReq.Session.Absorb(resp)

		wRes, err := readResponse(resp, target)
		if err != nil {
			return nil, err
		}
		wRes.Hops = hop

		if !wReq.FollowRedirects || !wRes.IsRedirect() || wRes.Location == "" {
			return wRes, nil
		}
		if hop >= MAX_REDIRECTS {
			return nil, fmt.Errorf("stopped after %d redirects at %s", MAX_REDIRECTS, target)
		}

		// 307/308 replay the request, everything else degrades to GET.
		if wRes.StatusCode != http.StatusTemporaryRedirect && wRes.StatusCode != http.StatusPermanentRedirect {
			method = http.MethodGet
			body = ""
		}
		target = wRes.Location
	}
}

func send(ctx context.Context, client *retryablehttp.Client, wReq *WHTTPReq, method, target, body string) (*http.Response, error) {
	var rawBody interface{}
	if body != "" {
		rawBody = strings.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, rawBody)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(req.Host, ":80") {
		req.Host = strings.TrimSuffix(req.Host, ":80")
	} else if strings.HasSuffix(req.Host, ":443") {
		req.Host = strings.TrimSuffix(req.Host, ":443")
	}

	// Set common headers
	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", ACCEPT_HTML)
	req.Header.Set("Accept-Language", ACCEPT_LANGUAGE)
	if cookie := wReq.Session.CookieHeader(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if bearer := wReq.Session.Bearer(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	// Set custom headers
	for _, h := range wReq.Headers {
		if body == "" && strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		req.Header.Set(h.Name, h.Value)
	}

	return client.Do(req)
}

func readResponse(resp *http.Response, requestURL string) (*WHTTPRes, error) {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	wRes := &WHTTPRes{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
		Headers:    resp.Header,
		FinalURL:   requestURL,
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		wRes.Location = resolve(requestURL, loc)
	}

	if strings.Contains(strings.ToLower(wRes.ContentType()), "html") {
		if title, ok := getHTMLTitle(wRes.BodyString); ok {
			wRes.HTTPTitle = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
		}
	}
	return wRes, nil
}

func resolve(base, ref string) string {
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

// Host returns the lower-cased host of rawURL, with the port kept unless it
// is the scheme default. It returns "" if rawURL cannot be parsed.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	}
	return host
}

// Snippet collapses whitespace and truncates s to at most n runes. It is meant
// for operator logs only.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func getHTMLTitle(requestBody string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(requestBody))
	if err != nil {
		return "", false
	}

	return traverse(doc)
}
