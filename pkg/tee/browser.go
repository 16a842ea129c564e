package tee

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/whttp"
)

const (
	SOURCE_BROWSER = "browser"

	SETTLE_POLL_INTERVAL = 500 * time.Millisecond
)

// browserStrategy logs in with a headless Chrome and reads the table once
// the portal's scripts have rendered it.
type browserStrategy struct {
	c *Client

	// launch starts a browser and returns a context bound to it together
	// with the function releasing it.
	launch func(ctx context.Context, cfg BrowserConfig) (context.Context, context.CancelFunc)
	// drive logs in inside the browser and returns the rendered HTML.
	drive func(ctx context.Context, landingURL, portalHost string, cred Credential) (string, error)
}

func newBrowserStrategy(c *Client) *browserStrategy {
	return &browserStrategy{c: c, launch: launchChrome, drive: driveChrome}
}

func (b *browserStrategy) Name() string { return SOURCE_BROWSER }

func (b *browserStrategy) List(ctx context.Context, run *Run) ([]permit.RawRecord, error) {
	body, err := b.render(ctx, run)
	if err != nil {
		return nil, err
	}
	return ParseRows(body, SOURCE_BROWSER), nil
}

func (b *browserStrategy) Lookup(ctx context.Context, run *Run, permitCode string) (*permit.RawRecord, error) {
	records, err := b.List(ctx, run)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if permit.Normalize(rec).PermitCode == permitCode {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

// render runs one browser session. The browser is released on every path
// out of here, including a panic inside the driver.
func (b *browserStrategy) render(ctx context.Context, run *Run) (body string, err error) {
	cfg := b.c.cfg.Browser
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	bctx, release := b.launch(ctx, cfg)
	defer release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("browser driver panicked: %v", r)
		}
	}()

	run.Log.WithField("strategy", SOURCE_BROWSER).Debug("starting headless browser")
	return b.drive(bctx, b.c.cfg.PortalURL+LANDING_PATH, b.c.portalHost(), run.Credential)
}

func launchChrome(ctx context.Context, cfg BrowserConfig) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(whttp.USER_AGENT),
		chromedp.Flag("lang", "el-GR"),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	return tabCtx, func() {
		cancelTab()
		cancelAlloc()
	}
}

func driveChrome(ctx context.Context, landingURL, portalHost string, cred Credential) (string, error) {
	var body string
	err := chromedp.Run(ctx,
		chromedp.Navigate(landingURL),
		chromedp.WaitVisible(`input[name="username"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="username"]`, cred.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, cred.Password, chromedp.ByQuery),
		chromedp.Submit(`input[name="password"]`, chromedp.ByQuery),
		waitSettled(portalHost),
		chromedp.OuterHTML("html", &body, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return body, nil
}

// waitSettled blocks until the page is on the portal and its table row count
// has stayed the same for two consecutive polls.
func waitSettled(portalHost string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		prev := -1
		ticker := time.NewTicker(SETTLE_POLL_INTERVAL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			var host string
			var rows int
			if err := chromedp.Evaluate(`location.host`, &host).Do(ctx); err != nil {
				return err
			}
			if err := chromedp.Evaluate(`document.querySelectorAll("tr").length`, &rows).Do(ctx); err != nil {
				return err
			}
			if settled(host, portalHost, prev, rows) {
				return nil
			}
			prev = -1
			if host == portalHost {
				prev = rows
			}
		}
	})
}

func settled(host, portalHost string, prev, rows int) bool {
	return host == portalHost && prev >= 0 && prev == rows
}
