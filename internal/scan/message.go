package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/duewatch/duewatch/internal/store"
)

// renderReminder builds the notification subject and body for one due
// reminder.
func renderReminder(reminder store.DueReminder, asOf time.Time) (subject, body string) {
	rec := reminder.Record
	bank := strings.ToUpper(rec.BankID)
	dueDate := rec.DueDate.Format("January 2, 2006")
	daysUntil := int(store.DateOf(rec.DueDate).Sub(store.DateOf(asOf)) / (24 * time.Hour))

	subject = fmt.Sprintf("Credit Card Payment Reminder - %s", bank)

	var lead string
	switch {
	case daysUntil <= 0:
		lead = fmt.Sprintf("URGENT: your %s credit card payment of $%s is due TODAY (%s).", bank, rec.MinimumPayment.StringFixed(2), dueDate)
	case daysUntil == 1:
		lead = fmt.Sprintf("REMINDER: your %s credit card payment of $%s is due TOMORROW (%s).", bank, rec.MinimumPayment.StringFixed(2), dueDate)
	default:
		lead = fmt.Sprintf("REMINDER: your %s credit card payment of $%s is due in %d days (%s).", bank, rec.MinimumPayment.StringFixed(2), daysUntil, dueDate)
	}

	var b strings.Builder
	b.WriteString(lead)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Bank: %s\n", bank)
	if rec.CardIdentifier != "" {
		fmt.Fprintf(&b, "Card ending in: %s\n", rec.CardIdentifier)
	}
	fmt.Fprintf(&b, "Due date: %s\n", dueDate)
	fmt.Fprintf(&b, "Minimum payment: $%s\n", rec.MinimumPayment.StringFixed(2))
	if rec.StatementBalance != nil {
		fmt.Fprintf(&b, "Statement balance: $%s\n", rec.StatementBalance.StringFixed(2))
	}
	b.WriteString("\nPlease make your payment before the due date to avoid late fees.\n")

	return subject, b.String()
}
