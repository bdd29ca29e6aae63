package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Failure kinds. Handlers wrap one of these so callers can classify a
// rejected transaction with errors.Is.
var (
	ErrAuthorization = errors.New("authorization")
	ErrReplay        = errors.New("replay")
	ErrState         = errors.New("invalid state")
	ErrTiming        = errors.New("timing")
	ErrValidation    = errors.New("validation")
	ErrInsufficient  = errors.New("insufficient funds")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrAuthorization, "authorization"},
	{ErrReplay, "replay"},
	{ErrState, "state"},
	{ErrTiming, "timing"},
	{ErrValidation, "validation"},
	{ErrInsufficient, "insufficient"},
	{ErrNotFound, "not_found"},
}

// ErrorKind returns the taxonomy name of err, "internal" for unclassified
// errors and "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
