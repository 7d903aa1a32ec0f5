// Package profile holds the per-bank extraction profiles used to recognize
// statement emails and pull payment fields out of them. Profiles are plain
// data; the parser package evaluates them.
package profile

import (
	"regexp"
	"strings"
)

// Profile is the declarative extraction rule set for one bank.
type Profile struct {
	// BankID identifies the bank (chase, discover, citi, amex).
	BankID string
	// SenderIndicators are lowercase substrings matched against the sender
	// address. Banks send from many sub-addresses, so this is a substring
	// match, never an exact one.
	SenderIndicators []string

	// DueDate captures the due-date text in group 1.
	DueDate *regexp.Regexp
	// MinimumPayment captures the minimum-payment text in group 1.
	MinimumPayment *regexp.Regexp
	// CardIdentifier captures the card last-four in group 1. Optional field.
	CardIdentifier *regexp.Regexp
	// StatementBalance captures the statement balance in group 1. Optional field.
	StatementBalance *regexp.Regexp
}

// Registry resolves senders to bank profiles.
type Registry struct {
	profiles []*Profile
}

// The capture groups are deliberately loose (\S+): the parser decides whether
// the captured token is a valid date or amount, so that "minimum payment due:
// N/A" classifies as an unparseable amount rather than a missing field.
const (
	amountToken = `(\S+)`
	dateToken   = `([A-Za-z]+\s+\d{1,2},?\s+\d{4}|\d{1,2}/\d{1,2}/\d{2,4}|\d{4}-\d{2}-\d{2}|\S+)`
)

// NewRegistry returns the registry for the supported banks.
func NewRegistry() *Registry {
	return &Registry{profiles: []*Profile{
		{
			BankID:           "chase",
			SenderIndicators: []string{"chase", "jpmorgan"},
			DueDate:          regexp.MustCompile(`(?i)payment\s+due\s+(?:on\s+)?` + dateToken),
			MinimumPayment:   regexp.MustCompile(`(?i)minimum\s+payment\s+due\s*:?\s*\$?` + amountToken),
			CardIdentifier:   regexp.MustCompile(`(?i)ending\s+in\s+(\d{4})`),
			StatementBalance: regexp.MustCompile(`(?i)new\s+balance\s*:?\s*\$?` + amountToken),
		},
		{
			BankID:           "discover",
			SenderIndicators: []string{"discover"},
			DueDate:          regexp.MustCompile(`(?i)payment\s+due\s+date\s*:?\s*` + dateToken),
			MinimumPayment:   regexp.MustCompile(`(?i)minimum\s+payment\s*:?\s*\$?` + amountToken),
			CardIdentifier:   regexp.MustCompile(`(?i)account\s+ending\s+in\s+(\d{4})`),
			StatementBalance: regexp.MustCompile(`(?i)new\s+balance\s*:?\s*\$?` + amountToken),
		},
		{
			BankID:           "citi",
			SenderIndicators: []string{"citi", "citibank"},
			DueDate:          regexp.MustCompile(`(?i)payment\s+due\s+(?:on\s+)?` + dateToken),
			MinimumPayment:   regexp.MustCompile(`(?i)minimum\s+payment\s+due\s*:?\s*\$?` + amountToken),
			CardIdentifier:   regexp.MustCompile(`(?i)account\s+ending\s+(\d{4})`),
			StatementBalance: regexp.MustCompile(`(?i)new\s+balance\s*:?\s*\$?` + amountToken),
		},
		{
			BankID:           "amex",
			SenderIndicators: []string{"american express", "americanexpress", "amex"},
			DueDate:          regexp.MustCompile(`(?i)payment\s+due\s+(?:on\s+)?` + dateToken),
			MinimumPayment:   regexp.MustCompile(`(?i)minimum\s+payment\s*:?\s*\$?` + amountToken),
			CardIdentifier:   regexp.MustCompile(`(?i)card\s+ending\s+in\s+(\d{4})`),
			StatementBalance: regexp.MustCompile(`(?i)new\s+balance\s*:?\s*\$?` + amountToken),
		},
	}}
}

// Find returns the first profile whose sender indicators match, or nil when
// the sender belongs to no supported bank. Matching is case-insensitive.
func (r *Registry) Find(sender string) *Profile {
	if r == nil {
		return nil
	}
	lower := strings.ToLower(strings.TrimSpace(sender))
	if lower == "" {
		return nil
	}
	for _, p := range r.profiles {
		for _, indicator := range p.SenderIndicators {
			if strings.Contains(lower, indicator) {
				return p
			}
		}
	}
	return nil
}

// Banks lists the supported bank identifiers in registry order.
func (r *Registry) Banks() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p.BankID)
	}
	return out
}
