// Package donation defines the typed failures a pipeline run can end with.
package donation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Reason is a machine-readable failure code that presentation layers localize.
type Reason string

const (
	NoFiles                  Reason = "NoFiles"
	SameFiles                Reason = "SameFiles"
	Not5to7Files             Reason = "Not5to7Files"
	WrongFileCount           Reason = "WrongFileCount"
	TooFewContactsOrMessages Reason = "TooFewContactsOrMessages"
	NoProfile                Reason = "NoProfile"
	NoMessageEntries         Reason = "NoMessageEntries"
	NoDonorNameFound         Reason = "NoDonorNameFound"
	TooFewConversations      Reason = "TooFewConversations"
	DateSpanTooShort         Reason = "DateSpanTooShort"
	TransactionFailed        Reason = "TransactionFailed"
	UnknownError             Reason = "UnknownError"

	NonsenseRange          Reason = "NonsenseRange"
	NotEnoughMonthsInRange Reason = "NotEnoughMonthsInRange"
	NoMessagesInRange      Reason = "NoMessagesInRange"
)

// Error is the only error type returned across the pipeline boundary.
type Error struct {
	Reason  Reason
	Context map[string]any
}

// New builds an Error. ctx may be nil.
func New(reason Reason, ctx map[string]any) *Error {
	return &Error{Reason: reason, Context: ctx}
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return string(e.Reason)
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
	}
	return string(e.Reason) + " (" + strings.Join(parts, " ") + ")"
}

// Normalize returns the *Error found in err's chain, or an UnknownError that
// carries nothing from err.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return New(UnknownError, nil)
}

// ReasonOf extracts the reason from err, or "" when err is not a donation error.
func ReasonOf(err error) Reason {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

// Is reports whether err carries the given reason.
func Is(err error, reason Reason) bool {
	return ReasonOf(err) == reason
}
