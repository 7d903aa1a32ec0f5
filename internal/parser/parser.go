// Package parser turns raw statement emails into structured payment records
// by evaluating a bank's extraction profile against the message text.
package parser

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/duewatch/duewatch/internal/models"
	"github.com/duewatch/duewatch/internal/profile"
)

// RawMessage is one fetched email, as delivered by the mail source.
type RawMessage struct {
	Sender    string // From address.
	Subject   string // Subject line.
	Body      string // Plain-text body.
	MessageID string // Stable message identifier.
}

// Field names used in Failure values.
const (
	FieldDueDate          = "due_date"
	FieldMinimumPayment   = "minimum_payment"
	FieldStatementBalance = "statement_balance"
)

// dateLayouts are the accepted due-date formats, tried in order.
var dateLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"1/2/2006",
	"1/2/06",
	"2006-01-02",
}

// Parse extracts a payment record from msg using the bank profile p.
//
// Parse is pure: it touches nothing but its inputs, and extractedAt is taken
// as a parameter so callers control the clock. Each field pattern runs
// against the body first and falls back to the subject. Due date and minimum
// payment are required; card identifier and balance are optional.
func Parse(msg RawMessage, p *profile.Profile, extractedAt time.Time) (models.PaymentRecord, error) {
	var rec models.PaymentRecord

	dueText, ok := capture(p.DueDate, msg.Body, msg.Subject)
	if !ok {
		return rec, &Failure{Kind: RequiredFieldMissing, Field: FieldDueDate}
	}
	dueDate, okDate := normalizeDate(dueText)
	if !okDate {
		return rec, &Failure{Kind: DateFormatUnrecognized, Field: FieldDueDate, Value: dueText}
	}

	minText, ok := capture(p.MinimumPayment, msg.Body, msg.Subject)
	if !ok {
		return rec, &Failure{Kind: RequiredFieldMissing, Field: FieldMinimumPayment}
	}
	minimum, okAmount := normalizeAmount(minText)
	if !okAmount {
		return rec, &Failure{Kind: AmountUnparseable, Field: FieldMinimumPayment, Value: minText}
	}

	rec = models.PaymentRecord{
		BankID:          p.BankID,
		DueDate:         dueDate,
		MinimumPayment:  minimum,
		SourceMessageID: msg.MessageID,
		ExtractedAt:     extractedAt,
	}

	// Optional fields: absence is fine, but a matched-yet-garbage balance is
	// still an unparseable amount.
	if card, okCard := capture(p.CardIdentifier, msg.Body, msg.Subject); okCard {
		rec.CardIdentifier = card
	}
	if balText, okBal := capture(p.StatementBalance, msg.Body, msg.Subject); okBal {
		balance, okAmountBal := normalizeAmount(balText)
		if !okAmountBal {
			return models.PaymentRecord{}, &Failure{Kind: AmountUnparseable, Field: FieldStatementBalance, Value: balText}
		}
		rec.StatementBalance = &balance
	}

	return rec, nil
}

// capture runs re against body then subject, returning group 1 of the first
// match.
func capture(re *regexp.Regexp, body, subject string) (string, bool) {
	if re == nil {
		return "", false
	}
	for _, text := range []string{body, subject} {
		if m := re.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// normalizeDate converts matched due-date text to a calendar date at
// midnight UTC.
func normalizeDate(text string) (time.Time, bool) {
	cleaned := canonicalizeMonth(strings.TrimSpace(text))
	for _, layout := range dateLayouts {
		if t, errParse := time.Parse(layout, cleaned); errParse == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// canonicalizeMonth upper-cases the first letter of a leading month name so
// that lower-cased email text still parses ("june 10, 2024").
func canonicalizeMonth(text string) string {
	runes := []rune(text)
	if len(runes) == 0 || !unicode.IsLetter(runes[0]) {
		return text
	}
	runes[0] = unicode.ToUpper(runes[0])
	for i := 1; i < len(runes) && unicode.IsLetter(runes[i]); i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// normalizeAmount converts matched amount text to a fixed-point decimal,
// stripping the currency symbol and thousands separators first.
func normalizeAmount(text string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, ".")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	amount, errParse := decimal.NewFromString(cleaned)
	if errParse != nil || amount.IsNegative() {
		return decimal.Decimal{}, false
	}
	return amount, true
}
