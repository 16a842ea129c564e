package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openadeia/teesync/pkg/metrics"
	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/reconcile"
	"github.com/openadeia/teesync/pkg/storage"
)

// SyncedApplication is a portal application annotated with its local
// counterpart, if any.
type SyncedApplication struct {
	permit.Application
	Stage           permit.Stage `json:"stage"`
	PermitType      permit.Type  `json:"type"`
	AlreadyImported bool         `json:"already_imported"`
	LocalProjectID  int64        `json:"local_project_id,omitempty"`
	Flagged         bool         `json:"flagged,omitempty"`
	Reason          string       `json:"reason,omitempty"`
}

type SyncResult struct {
	SyncedAt     time.Time           `json:"synced_at"`
	Count        int                 `json:"count"`
	Applications []SyncedApplication `json:"applications"`
}

// Sync lists the user's portal applications and marks the ones already
// imported. Nothing is written.
func (e *Engine) Sync(ctx context.Context, userID int64) (*SyncResult, error) {
	cred, err := e.credential(ctx, userID)
	if err != nil {
		return nil, err
	}
	apps, err := e.Portal.Sync(ctx, cred)
	if err != nil {
		return nil, err
	}
	existing, err := e.Store.ExistingPermitCodes(ctx)
	if err != nil {
		return nil, err
	}

	decisions := reconcile.Reconcile(apps, existing)
	res := &SyncResult{
		SyncedAt:     e.clock().UTC(),
		Count:        len(apps),
		Applications: make([]SyncedApplication, 0, len(apps)),
	}
	for i, app := range apps {
		d := decisions[i]
		res.Applications = append(res.Applications, SyncedApplication{
			Application:     app,
			Stage:           app.Stage(),
			PermitType:      app.PermitType(),
			AlreadyImported: d.Action == reconcile.ActionSkip,
			LocalProjectID:  d.LocalProjectID,
			Flagged:         d.Flagged,
			Reason:          d.Reason,
		})
	}
	e.log().Infof("sync for user %d found %d applications", userID, len(apps))
	return res, nil
}

// Import outcomes.
const (
	OUTCOME_IMPORTED = "imported"
	OUTCOME_SKIPPED  = "skipped"
	OUTCOME_INVALID  = "invalid"
)

type ImportOutcome struct {
	PermitCode string `json:"tee_permit_code"`
	Action     string `json:"action"`
	ID         int64  `json:"id,omitempty"`
	Code       string `json:"code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type ImportResult struct {
	Results  []ImportOutcome `json:"results"`
	Imported int             `json:"imported"`
}

// Import creates local projects for the given applications. Applications
// already linked to a project, including duplicates within apps, are
// skipped; applications without a permit code are reported as invalid.
func (e *Engine) Import(ctx context.Context, userID int64, apps []permit.Application) (*ImportResult, error) {
	if len(apps) == 0 {
		return nil, ErrNothingToImport
	}
	existing, err := e.Store.ExistingPermitCodes(ctx)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Results: make([]ImportOutcome, 0, len(apps))}
	for _, app := range apps {
		d := reconcile.Classify(app, existing)
		out := ImportOutcome{PermitCode: d.PermitCode}

		switch {
		case d.Flagged:
			out.Action = OUTCOME_INVALID
			out.Reason = d.Reason
		case d.Action == reconcile.ActionSkip:
			out.Action = OUTCOME_SKIPPED
			out.ID = d.LocalProjectID
		default:
			app.PermitCode = d.PermitCode
			ir, err := e.Store.ImportProject(ctx, app, userID)
			if errors.Is(err, storage.ErrMissingPermitCode) {
				out.Action = OUTCOME_INVALID
				out.Reason = reconcile.REASON_MISSING_CODE
				break
			}
			if err != nil {
				return res, fmt.Errorf("importing %s: %w", d.PermitCode, err)
			}
			existing[d.PermitCode] = ir.ID
			out.ID = ir.ID
			if !ir.Created {
				out.Action = OUTCOME_SKIPPED
				break
			}
			out.Action = OUTCOME_IMPORTED
			out.Code = ir.Code
			res.Imported++
			e.log().Infof("imported %s as %s (stage %s)", d.PermitCode, ir.Code, ir.Stage)
		}

		metrics.ImportDecisions.WithLabelValues(out.Action).Inc()
		res.Results = append(res.Results, out)
	}
	return res, nil
}
