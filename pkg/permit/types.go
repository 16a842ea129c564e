// Package permit holds the canonical shape of a portal application and the
// mapping of the portal's status and type vocabularies onto the local
// workflow model.
package permit

// Stage is the local workflow stage of a project. The string values are part
// of the contract with callers and their display logic.
type Stage string

const (
	StageRegistration   Stage = "init"
	StageDataCollection Stage = "data_collection"
	StageStudies        Stage = "studies"
	StageSignatures     Stage = "signatures"
	StageSubmission     Stage = "submission"
	StageReview         Stage = "review"
	StageApproved       Stage = "approved"
)

// Stages lists every stage in workflow order.
var Stages = []Stage{
	StageRegistration,
	StageDataCollection,
	StageStudies,
	StageSignatures,
	StageSubmission,
	StageReview,
	StageApproved,
}

// Index returns the position of s in the workflow, or -1 if s is unknown.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Index() >= 0 }

func ParseStage(v string) (Stage, bool) {
	s := Stage(v)
	return s, s.Valid()
}

// Type is the local permit type of a project.
type Type string

const (
	TypeNewBuilding Type = "new_building"
	TypeMinorCat1   Type = "minor_cat1"
	TypeMinorCat2   Type = "minor_cat2"
	TypeVOD         Type = "vod"
	TypePreapproval Type = "preapproval"

	TypeRevision    Type = "revision"
	TypeRevisionExt Type = "revision_ext"
	TypeFileUpdate  Type = "file_update"
)

// IsContinuation reports whether t amends a previously issued permit.
func (t Type) IsContinuation() bool {
	switch t {
	case TypeRevision, TypeRevisionExt, TypeFileUpdate:
		return true
	}
	return false
}

// RawRecord is one application as extracted from the portal. Body is a JSON
// object whose field names depend on the extraction technique that produced
// it and on the portal deployment.
type RawRecord struct {
	Source string
	Body   string
}

// Application is the canonical form of a portal application. PermitCode is
// the only key used to match it against local projects.
type Application struct {
	PermitCode     string `json:"tee_permit_code"`
	Title          string `json:"title"`
	TypeCode       *int   `json:"aitisi_type_code"`
	IsContinuation bool   `json:"is_continuation"`
	YdID           *int   `json:"yd_id"`
	DimosAA        *int   `json:"dimos_aa"`
	Address        string `json:"address"`
	City           string `json:"city"`
	ParcelCode     string `json:"kaek"`
	StatusText     string `json:"tee_status"`
	StatusCode     string `json:"tee_status_code"`
	SubmissionDate string `json:"tee_submission_date,omitempty"`

	Source string `json:"source,omitempty"`
	Raw    string `json:"-"`
}

// Stage maps the application's status onto the local workflow.
func (a Application) Stage() Stage {
	return StatusToStage(a.StatusText, a.StatusCode)
}

// PermitType maps the application's type code onto the local permit type.
func (a Application) PermitType() Type {
	return TypeCodeToPermitType(a.TypeCode, a.IsContinuation)
}
