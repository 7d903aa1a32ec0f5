package parser

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a statement email could not be parsed.
type FailureKind string

// Parse failure kinds. All of them are recoverable: the orchestrator logs
// the failure, skips the message, and continues the cycle.
const (
	// RequiredFieldMissing means the due-date or minimum-payment pattern
	// found nothing at all in body or subject.
	RequiredFieldMissing FailureKind = "required_field_missing"
	// DateFormatUnrecognized means the due-date pattern matched but the
	// captured text is not a valid calendar date.
	DateFormatUnrecognized FailureKind = "date_format_unrecognized"
	// AmountUnparseable means an amount pattern matched but the captured
	// text is not numeric after stripping currency formatting.
	AmountUnparseable FailureKind = "amount_unparseable"
)

// Failure is the typed error returned for unparseable statement emails.
type Failure struct {
	Kind  FailureKind // Classification of the failure.
	Field string      // Field being extracted (due_date, minimum_payment, ...).
	Value string      // Offending captured text, when any.
}

func (f *Failure) Error() string {
	if f.Value != "" {
		return fmt.Sprintf("parser: %s: field %s: %q", f.Kind, f.Field, f.Value)
	}
	return fmt.Sprintf("parser: %s: field %s", f.Kind, f.Field)
}

// AsFailure unwraps err into a *Failure when it is one.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
