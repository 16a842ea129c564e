// Package reconcile decides, for every application found on the portal,
// whether it still has to be imported or already exists locally.
package reconcile

import (
	"strings"

	"github.com/openadeia/teesync/pkg/permit"
)

type Action string

const (
	ActionImport Action = "import"
	ActionSkip   Action = "skip"
)

// Decision is the outcome for one application. LocalProjectID is set only
// when Action is ActionSkip. Flagged marks records that cannot be imported
// as-is; Reason says why.
type Decision struct {
	PermitCode     string `json:"tee_permit_code"`
	Action         Action `json:"action"`
	LocalProjectID int64  `json:"local_project_id,omitempty"`
	Flagged        bool   `json:"flagged,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

const REASON_MISSING_CODE = "missing permit code"

// Classify decides a single application against the permit codes already
// linked to local projects.
func Classify(app permit.Application, existing map[string]int64) Decision {
	code := strings.TrimSpace(app.PermitCode)
	if code == "" {
		return Decision{Action: ActionImport, Flagged: true, Reason: REASON_MISSING_CODE}
	}
	if id, ok := existing[code]; ok {
		return Decision{PermitCode: code, Action: ActionSkip, LocalProjectID: id}
	}
	return Decision{PermitCode: code, Action: ActionImport}
}

// Reconcile returns one decision per application, in input order. It does not
// modify existing.
func Reconcile(apps []permit.Application, existing map[string]int64) []Decision {
	decisions := make([]Decision, 0, len(apps))
	for _, app := range apps {
		decisions = append(decisions, Classify(app, existing))
	}
	return decisions
}
