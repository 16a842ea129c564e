package storage

import (
	"time"

	"github.com/openadeia/teesync/pkg/permit"
)

// Project is a local permit project. PermitCode links it to the portal and
// is unique across projects.
type Project struct {
	ID             int64        `json:"id"`
	Code           string       `json:"code"`
	Title          string       `json:"title"`
	Type           permit.Type  `json:"type"`
	IsContinuation bool         `json:"is_continuation"`
	Stage          permit.Stage `json:"stage"`
	PermitCode     string       `json:"tee_permit_code,omitempty"`
	TypeCode       *int         `json:"aitisi_type_code,omitempty"`
	YdID           *int         `json:"yd_id,omitempty"`
	DimosAA        *int         `json:"dimos_aa,omitempty"`
	SubmissionDate string       `json:"tee_submission_date,omitempty"`
	SyncedAt       time.Time    `json:"tee_sync_at,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	CreatedBy      int64        `json:"created_by,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Property is the building plot of a project.
type Property struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Address   string `json:"addr"`
	City      string `json:"city"`
	KAEK      string `json:"kaek"`
}

// WorkflowLog is one audit trail entry of a project.
type WorkflowLog struct {
	ID        int64             `json:"id"`
	ProjectID int64             `json:"project_id"`
	Action    string            `json:"action"`
	FromStage permit.Stage      `json:"from_stage,omitempty"`
	ToStage   permit.Stage      `json:"to_stage,omitempty"`
	UserID    int64             `json:"user_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// UserCredential is the stored portal login of a user. The password stays
// encrypted here.
type UserCredential struct {
	UserID         int64
	TEEUsername    string
	TEEPasswordEnc string
}

func (c UserCredential) Configured() bool {
	return c.TEEUsername != "" && c.TEEPasswordEnc != ""
}

// ImportResult describes what ImportProject did.
type ImportResult struct {
	ID      int64
	Code    string
	Stage   permit.Stage
	Created bool
}
