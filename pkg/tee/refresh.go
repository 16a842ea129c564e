package tee

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openadeia/teesync/pkg/metrics"
	"github.com/openadeia/teesync/pkg/permit"
)

// RefreshResult is the portal's current view of one permit compared with the
// local stage. Nothing is written anywhere.
type RefreshResult struct {
	Changed     bool               `json:"updated"`
	NewStage    permit.Stage       `json:"stage"`
	StatusText  string             `json:"tee_status"`
	Application permit.Application `json:"-"`
}

// Refresh looks permitCode up with every strategy able to fetch a single
// application. A permit no strategy knows about is a PermitNotFound error;
// when no strategy could even be asked, the failure is upstream.
func (c *Client) Refresh(ctx context.Context, run *Run, permitCode string, local permit.Stage) (*RefreshResult, error) {
	permitCode = strings.TrimSpace(permitCode)
	if permitCode == "" {
		return nil, notFoundError()
	}

	var errs []error
	asked := 0
	for _, s := range c.chain {
		d, ok := s.(Detailer)
		if !ok {
			continue
		}
		asked++
		rec, err := d.Lookup(ctx, run, permitCode)
		if err != nil {
			run.Log.WithField("strategy", s.Name()).Debugf("lookup of %s failed: %v", permitCode, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if rec == nil {
			continue
		}

		app := permit.Normalize(*rec)
		stage := app.Stage()
		return &RefreshResult{
			Changed:     stage != local,
			NewStage:    stage,
			StatusText:  app.StatusText,
			Application: app,
		}, nil
	}

	if asked > 0 && len(errs) == asked {
		return nil, upstreamError("lookup", nil, errors.Join(errs...))
	}
	return nil, notFoundError()
}

// RefreshPermit logs cred in and refreshes a single permit.
func (c *Client) RefreshPermit(ctx context.Context, cred Credential, permitCode string, local permit.Stage) (*RefreshResult, error) {
	res, err := c.refreshPermit(ctx, cred, permitCode, local)
	metrics.SyncRuns.WithLabelValues("refresh", outcome(err)).Inc()
	return res, err
}

func (c *Client) refreshPermit(ctx context.Context, cred Credential, permitCode string, local permit.Stage) (*RefreshResult, error) {
	run, err := c.Authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}
	return c.Refresh(ctx, run, permitCode, local)
}
