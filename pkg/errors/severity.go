// Package errors provides coded, severity-aware error types.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a structured error with a stable code. Two errors are considered
// the same by errors.Is when their codes match.
type Error struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Subject     string   `json:"subject,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Error codes
const (
	CodeNoOffers         = "NO_OFFERS"
	CodeNoEligibleOffers = "NO_ELIGIBLE_OFFERS"
	CodeInvalidUsage     = "INVALID_USAGE"
	CodeInvalidQuery     = "INVALID_QUERY"
	CodeSourceFailed     = "SOURCE_FAILED"
	CodePolicyFailed     = "POLICY_FAILED"
)

// Sentinels for errors.Is.
var (
	ErrNoOffers         = &Error{Code: CodeNoOffers, Message: "no offers returned", Severity: SeverityError, Recoverable: true}
	ErrNoEligibleOffers = &Error{Code: CodeNoEligibleOffers, Message: "no eligible offers", Severity: SeverityError, Recoverable: true}
	ErrInvalidUsage     = &Error{Code: CodeInvalidUsage, Message: "usage must be greater than zero", Severity: SeverityError}
	ErrInvalidQuery     = &Error{Code: CodeInvalidQuery, Message: "invalid offer query", Severity: SeverityError}
	ErrSourceFailed     = &Error{Code: CodeSourceFailed, Message: "offer source failed", Severity: SeverityError, Recoverable: true}
)

// NewSourceError wraps a data source failure.
func NewSourceError(source string, err error) *Error {
	return &Error{
		Code:        CodeSourceFailed,
		Message:     "offer source failed",
		Severity:    SeverityError,
		Subject:     source,
		Recoverable: true,
		Err:         err,
	}
}

// NewInvalidQueryError reports a malformed query field.
func NewInvalidQueryError(field, reason string) *Error {
	return &Error{
		Code:     CodeInvalidQuery,
		Message:  reason,
		Severity: SeverityError,
		Subject:  field,
	}
}

// NewNoOffersError reports an empty source response for a subject (usually a ZIP code).
func NewNoOffersError(subject string) *Error {
	return &Error{
		Code:        CodeNoOffers,
		Message:     "no offers returned",
		Severity:    SeverityError,
		Subject:     subject,
		Recoverable: true,
	}
}

// NewNoEligibleOffersError reports that filtering left nothing to rank.
func NewNoEligibleOffersError(subject string) *Error {
	return &Error{
		Code:        CodeNoEligibleOffers,
		Message:     "no eligible offers",
		Severity:    SeverityError,
		Subject:     subject,
		Recoverable: true,
	}
}
