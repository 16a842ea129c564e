package tee

import (
	"errors"
	"net/http"

	"github.com/openadeia/teesync/pkg/whttp"
)

// Kind classifies every failure the portal client can report. Callers branch
// on the kind, never on the message.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAuthentication
	KindUpstream
	KindExhausted
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindUpstream:
		return "upstream_unavailable"
	case KindExhausted:
		return "extraction_exhausted"
	case KindNotFound:
		return "permit_not_found"
	default:
		return "unknown"
	}
}

// User-facing messages.
const (
	MSG_NO_CREDENTIALS = "Δεν έχετε ορίσει στοιχεία ΤΕΕ. Μεταβείτε στο Προφίλ σας."
	MSG_LOGIN_REJECTED = "Αδυναμία σύνδεσης στο ΤΕΕ e-Adeies. Ελέγξτε username και κωδικό."
	MSG_UPSTREAM       = "Δεν ήταν δυνατή η επικοινωνία με το ΤΕΕ e-Adeies. Δοκιμάστε ξανά αργότερα."
	MSG_EXHAUSTED      = "Η σύνδεση στο ΤΕΕ e-Adeies ήταν επιτυχής, αλλά δεν ήταν δυνατή η αυτόματη ανάκτηση της λίστας αιτήσεων. Εισάγετε τις άδειές σας χειροκίνητα ή επικοινωνήστε μαζί μας."
	MSG_PERMIT_MISSING = "Δεν βρέθηκε στο ΤΕΕ"
	DIAGNOSTIC_SNIPPET = 400
)

// Diagnostic describes the upstream response that made a step fail. It is
// meant for operator logs and is never shown to end users.
type Diagnostic struct {
	Step        string
	StatusCode  int
	Location    string
	Title       string
	BodySnippet string
}

type Error struct {
	Kind       Kind
	Message    string
	Diagnostic *Diagnostic
	Err        error
}

// Error returns only the user-facing message.
func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindUnknown if err does not come from
// this package.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// DiagnosticOf returns the diagnostic attached to err, if any.
func DiagnosticOf(err error) *Diagnostic {
	var te *Error
	if errors.As(err, &te) {
		return te.Diagnostic
	}
	return nil
}

// HTTPStatus maps err to the status code returned by the host API. Rejected
// portal credentials are a 422: a 401 would log the user out of the host
// application.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfiguration, KindAuthentication:
		return http.StatusUnprocessableEntity
	case KindUpstream, KindExhausted:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func configurationError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

func authenticationError() *Error {
	return &Error{Kind: KindAuthentication, Message: MSG_LOGIN_REJECTED}
}

func upstreamError(step string, res *whttp.WHTTPRes, err error) *Error {
	e := &Error{Kind: KindUpstream, Message: MSG_UPSTREAM, Err: err}
	if res != nil {
		e.Diagnostic = diagnose(step, res)
	} else {
		e.Diagnostic = &Diagnostic{Step: step}
	}
	return e
}

func exhaustedError(err error) *Error {
	return &Error{Kind: KindExhausted, Message: MSG_EXHAUSTED, Err: err}
}

func notFoundError() *Error {
	return &Error{Kind: KindNotFound, Message: MSG_PERMIT_MISSING}
}

func diagnose(step string, res *whttp.WHTTPRes) *Diagnostic {
	return &Diagnostic{
		Step:        step,
		StatusCode:  res.StatusCode,
		Location:    res.Location,
		Title:       res.HTTPTitle,
		BodySnippet: whttp.Snippet(res.BodyString, DIAGNOSTIC_SNIPPET),
	}
}

// MissingCredentials is the error reported when a user has no portal login
// on record.
func MissingCredentials() error {
	return configurationError(MSG_NO_CREDENTIALS)
}
