package tee

import (
	"context"
	"errors"
	"fmt"

	"github.com/openadeia/teesync/pkg/metrics"
	"github.com/openadeia/teesync/pkg/permit"
)

// Strategy is one technique for extracting the application list from an
// authenticated run. A strategy that finds nothing returns an empty slice
// and no error.
type Strategy interface {
	Name() string
	List(ctx context.Context, run *Run) ([]permit.RawRecord, error)
}

// Detailer is implemented by strategies that can fetch a single application.
// Lookup returns nil and no error when the application is not there.
type Detailer interface {
	Lookup(ctx context.Context, run *Run, permitCode string) (*permit.RawRecord, error)
}

// Chain tries its strategies in order and keeps the first non-empty result.
type Chain []Strategy

// Names lists the strategies in order.
func (ch Chain) Names() []string {
	names := make([]string, 0, len(ch))
	for _, s := range ch {
		names = append(names, s.Name())
	}
	return names
}

// List runs the chain. Failures of individual strategies are logged and the
// next one is tried; when none yields records the result is an
// ExtractionExhausted error.
func (ch Chain) List(ctx context.Context, run *Run) ([]permit.Application, error) {
	var errs []error
	for _, s := range ch {
		if err := ctx.Err(); err != nil {
			return nil, upstreamError("extraction", nil, err)
		}
		log := run.Log.WithField("strategy", s.Name())

		records, err := s.List(ctx, run)
		if err != nil {
			metrics.StrategyAttempts.WithLabelValues(s.Name(), metrics.RESULT_ERROR).Inc()
			log.Debugf("strategy failed: %v", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if len(records) == 0 {
			metrics.StrategyAttempts.WithLabelValues(s.Name(), metrics.RESULT_EMPTY).Inc()
			log.Debug("strategy found no applications")
			continue
		}

		metrics.StrategyAttempts.WithLabelValues(s.Name(), metrics.RESULT_OK).Inc()
		log.Debugf("strategy found %d applications", len(records))
		apps := make([]permit.Application, 0, len(records))
		for _, rec := range records {
			apps = append(apps, permit.Normalize(rec))
		}
		return apps, nil
	}
	return nil, exhaustedError(errors.Join(errs...))
}

// ListApplications extracts the applications visible to an authenticated run.
func (c *Client) ListApplications(ctx context.Context, run *Run) ([]permit.Application, error) {
	return c.chain.List(ctx, run)
}

// Sync logs cred in and lists its applications.
func (c *Client) Sync(ctx context.Context, cred Credential) ([]permit.Application, error) {
	apps, err := c.sync(ctx, cred)
	metrics.SyncRuns.WithLabelValues("sync", outcome(err)).Inc()
	return apps, err
}

func (c *Client) sync(ctx context.Context, cred Credential) ([]permit.Application, error) {
	run, err := c.Authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}
	return c.ListApplications(ctx, run)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}
