package workflow

import (
	"context"
	"errors"

	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/storage"
)

type RefreshOutcome struct {
	Updated   bool         `json:"updated"`
	Stage     permit.Stage `json:"stage"`
	TEEStatus string       `json:"tee_status"`
}

// Refresh re-reads a linked project's status from the portal and, when the
// derived stage differs, moves the project and logs the change.
func (e *Engine) Refresh(ctx context.Context, userID, projectID int64) (*RefreshOutcome, error) {
	p, err := e.Store.GetProject(ctx, projectID)
	if errors.Is(err, storage.ErrProjectNotFound) {
		return nil, ErrProjectNotLinked
	}
	if err != nil {
		return nil, err
	}
	if p.PermitCode == "" {
		return nil, ErrProjectNotLinked
	}

	cred, err := e.credential(ctx, userID)
	if err != nil {
		return nil, err
	}
	res, err := e.Portal.RefreshPermit(ctx, cred, p.PermitCode, p.Stage)
	if err != nil {
		return nil, err
	}

	if !res.Changed {
		if err := e.Store.TouchSync(ctx, p.ID); err != nil {
			return nil, err
		}
		return &RefreshOutcome{Stage: res.NewStage, TEEStatus: res.StatusText}, nil
	}

	err = e.Store.UpdateStage(ctx, p.ID, res.NewStage, userID,
		"Ενημέρωση κατάστασης από ΤΕΕ: "+res.StatusText,
		map[string]string{"source": storage.SOURCE_TEE_REFRESH, "tee_status": res.StatusText})
	if err != nil {
		return nil, err
	}
	e.log().Infof("project %s moved from %s to %s", p.Code, p.Stage, res.NewStage)
	return &RefreshOutcome{Updated: true, Stage: res.NewStage, TEEStatus: res.StatusText}, nil
}
