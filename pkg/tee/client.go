// Package tee talks to the TEE e-Adeies portal: it logs in through the OAM
// single sign-on, extracts the engineer's applications with a chain of
// strategies and looks up the current status of a single permit.
package tee

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/openadeia/teesync/internal/utils"
	"github.com/openadeia/teesync/pkg/session"
	"github.com/openadeia/teesync/pkg/whttp"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORTAL_URL      = "https://services.tee.gr"
	DEFAULT_SSO_URL         = "https://sso.tee.gr"
	DEFAULT_BROWSER_TIMEOUT = 60 * time.Second

	LANDING_PATH     = "/adeia/faces/main"
	CRED_SUBMIT_PATH = "/oam/server/auth_cred_submit"
	OBRAREQ_PATH     = "/oam/server/obrareq.cgi"
)

var (
	DefaultListPaths   = []string{"/adeia/rest/v1/Aitiseis", "/adeia/rest/v2/Aitiseis", "/adeia/rest/latest/Aitiseis"}
	DefaultDetailPaths = []string{"/adeia/rest/v1/Aitiseis/", "/adeia/rest/Aitiseis/"}
)

// Credential is the engineer's portal login. The password is decrypted just
// before a run and must never reach a log line.
type Credential struct {
	Username string
	Password string
}

func (c Credential) String() string {
	return c.Username + ":[redacted]"
}

func (c Credential) GoString() string {
	return `tee.Credential{Username:"` + c.Username + `", Password:[redacted]}`
}

func (c Credential) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

type BrowserConfig struct {
	Enabled  bool
	ExecPath string
	Timeout  time.Duration
}

type Config struct {
	PortalURL      string
	SSOURL         string
	RequestTimeout time.Duration
	ListPaths      []string
	DetailPaths    []string
	Browser        BrowserConfig
}

func DefaultConfig() Config {
	return Config{
		PortalURL:      DEFAULT_PORTAL_URL,
		SSOURL:         DEFAULT_SSO_URL,
		RequestTimeout: whttp.DEFAULT_TIMEOUT,
		ListPaths:      DefaultListPaths,
		DetailPaths:    DefaultDetailPaths,
		Browser:        BrowserConfig{Timeout: DEFAULT_BROWSER_TIMEOUT},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PortalURL == "" {
		c.PortalURL = d.PortalURL
	}
	if c.SSOURL == "" {
		c.SSOURL = d.SSOURL
	}
	c.PortalURL = strings.TrimRight(c.PortalURL, "/")
	c.SSOURL = strings.TrimRight(c.SSOURL, "/")
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if len(c.ListPaths) == 0 {
		c.ListPaths = d.ListPaths
	}
	if len(c.DetailPaths) == 0 {
		c.DetailPaths = d.DetailPaths
	}
	if c.Browser.Timeout <= 0 {
		c.Browser.Timeout = d.Browser.Timeout
	}
	return c
}

// Run is one synchronization attempt. Its session is never shared with
// another run, so concurrent runs for different users stay isolated.
type Run struct {
	ID         uuid.UUID
	Credential Credential
	Session    *session.Session
	Log        *logrus.Entry
}

// Client holds the immutable configuration shared by all runs.
type Client struct {
	cfg   Config
	http  *retryablehttp.Client
	chain Chain
}

// NewClient returns a client using httpClient for every portal call. A nil
// httpClient selects whttp's default client.
func NewClient(cfg Config, httpClient *retryablehttp.Client) *Client {
	if httpClient == nil {
		httpClient = whttp.DefaultClient()
	}
	c := &Client{cfg: cfg.withDefaults(), http: httpClient}
	c.chain = Chain{&scrapeStrategy{c: c}, &restStrategy{c: c}}
	if c.cfg.Browser.Enabled {
		c.chain = append(c.chain, newBrowserStrategy(c))
	}
	return c
}

// WithStrategies replaces the extraction chain.
func (c *Client) WithStrategies(strategies ...Strategy) *Client {
	c.chain = Chain(strategies)
	return c
}

func (c *Client) Strategies() Chain { return c.chain }

// NewRun starts a run for cred. Incomplete credentials are a configuration
// error, reported before any network traffic.
func (c *Client) NewRun(cred Credential) (*Run, error) {
	if !cred.Complete() {
		return nil, configurationError(MSG_NO_CREDENTIALS)
	}
	id := uuid.New()
	return &Run{
		ID:         id,
		Credential: cred,
		Session:    session.New(),
		Log:        utils.Log.WithField("run", id.String()),
	}, nil
}

// send issues req within run: the run's session is attached and every
// response is absorbed by whttp before it is returned.
func (c *Client) send(ctx context.Context, run *Run, req *whttp.WHTTPReq) (*whttp.WHTTPRes, error) {
	req.Session = run.Session
	if req.Timeout <= 0 {
		req.Timeout = c.cfg.RequestTimeout
	}
	res, err := whttp.SendHTTPRequest(ctx, req, c.http)
	if err != nil {
		run.Log.Debugf("%s %s failed: %v", methodOf(req), req.URL, err)
		return nil, err
	}
	run.Log.Debugf("%s %s -> %d %s", methodOf(req), req.URL, res.StatusCode, res.Location)
	return res, nil
}

func methodOf(req *whttp.WHTTPReq) string {
	if req.Method == "" {
		return "GET"
	}
	return req.Method
}

func (c *Client) portalHost() string { return whttp.Host(c.cfg.PortalURL) }

func (c *Client) ssoHost() string { return whttp.Host(c.cfg.SSOURL) }
