package permit

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Field aliases seen across portal deployments and extraction techniques.
// Order matters: the first alias carrying a value wins. Extend these lists as
// new payloads are observed.
var (
	permitCodeAliases     = []string{"codeAdeias", "code_adeias", "permitCode", "aitisiCode", "tee_permit_code", "code", "id"}
	titleAliases          = []string{"titleAdeias", "title", "perigrafi", "descr"}
	typeCodeAliases       = []string{"aitisiType", "aitisi_type", "typeCode", "aitisi_type_code"}
	ydIDAliases           = []string{"ydId", "yd_id"}
	dimosAAAliases        = []string{"dimosAa", "dimos_aa"}
	addressAliases        = []string{"address", "addr", "dieuthinsi"}
	cityAliases           = []string{"city", "poli", "dimos"}
	parcelCodeAliases     = []string{"kaek", "KAEK"}
	statusTextAliases     = []string{"status", "katastasi", "tee_status"}
	statusCodeAliases     = []string{"statusCode", "katastasiCode", "tee_status_code"}
	submissionDateAliases = []string{"submissionDate", "dateSubmit", "hmerominia", "tee_submission_date"}
	continuationAliases   = []string{"prevPraxis", "prev_praxis", "isContinuation", "is_continuation"}
)

// Type codes that only exist for continuations.
var continuationTypeCodes = map[int]bool{2: true, 3: true, 4: true}

// DefaultTitle is used when the portal gives no usable title.
func DefaultTitle(permitCode string) string {
	return strings.TrimSpace("Άδεια ΤΕΕ " + permitCode)
}

// Normalize converts a raw record into the canonical Application. It never
// fails; missing fields stay empty.
func Normalize(raw RawRecord) Application {
	body := raw.Body
	app := Application{
		PermitCode:     strings.TrimSpace(firstPresent(body, permitCodeAliases).String()),
		Address:        strings.TrimSpace(firstPresent(body, addressAliases).String()),
		City:           strings.TrimSpace(firstPresent(body, cityAliases).String()),
		ParcelCode:     strings.TrimSpace(firstPresent(body, parcelCodeAliases).String()),
		StatusText:     strings.TrimSpace(firstPresent(body, statusTextAliases).String()),
		StatusCode:     strings.TrimSpace(firstPresent(body, statusCodeAliases).String()),
		SubmissionDate: strings.TrimSpace(firstPresent(body, submissionDateAliases).String()),
		Source:         raw.Source,
		Raw:            body,
	}

	app.Title = strings.TrimSpace(firstPresent(body, titleAliases).String())
	if app.Title == "" {
		app.Title = DefaultTitle(app.PermitCode)
	}

	app.TypeCode = ParseTypeCode(firstPresent(body, typeCodeAliases).String())
	app.YdID = ParseTypeCode(firstPresent(body, ydIDAliases).String())
	app.DimosAA = ParseTypeCode(firstPresent(body, dimosAAAliases).String())

	app.IsContinuation = truthy(firstPresent(body, continuationAliases))
	if !app.IsContinuation && app.TypeCode != nil && continuationTypeCodes[*app.TypeCode] {
		app.IsContinuation = true
	}

	return app
}

// firstPresent returns the value of the first alias that carries a value, or
// an empty result.
func firstPresent(body string, aliases []string) gjson.Result {
	for _, alias := range aliases {
		if r := gjson.Get(body, alias); truthy(r) {
			return r
		}
	}
	return gjson.Result{}
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return strings.TrimSpace(r.Str) != ""
	case gjson.JSON:
		return true
	default:
		return false
	}
}
