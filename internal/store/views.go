package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/duewatch/duewatch/internal/models"
)

// Urgency levels for upcoming payments.
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyMedium   = "medium"
	UrgencyLow      = "low"
)

// UpcomingPayment is a payment due within the requested horizon.
type UpcomingPayment struct {
	Record       models.PaymentRecord
	DaysUntilDue int
	Urgency      string
}

// OverduePayment is a payment whose due date has passed.
type OverduePayment struct {
	Record           models.PaymentRecord
	DaysOverdue      int
	EstimatedLateFee decimal.Decimal
}

// UpcomingPayments lists records due between asOf's date and daysAhead days
// out, soonest first.
func (s *Store) UpcomingPayments(ctx context.Context, asOf time.Time, daysAhead int) ([]UpcomingPayment, error) {
	asOfDate := DateOf(asOf)
	horizon := asOfDate.AddDate(0, 0, daysAhead)

	var records []models.PaymentRecord
	errFind := s.db.WithContext(ctx).
		Where("due_date >= ? AND due_date <= ?", asOfDate, horizon).
		Order("due_date ASC, bank_id ASC").
		Find(&records).Error
	if errFind != nil {
		return nil, fmt.Errorf("store: upcoming payments: %w", errFind)
	}

	out := make([]UpcomingPayment, 0, len(records))
	for _, rec := range records {
		days := daysBetween(asOfDate, DateOf(rec.DueDate))
		out = append(out, UpcomingPayment{
			Record:       rec,
			DaysUntilDue: days,
			Urgency:      UrgencyFor(days),
		})
	}
	return out, nil
}

// OverduePayments lists records whose due date is strictly before asOf's
// date, most overdue first, with a rough late-fee estimate attached.
func (s *Store) OverduePayments(ctx context.Context, asOf time.Time) ([]OverduePayment, error) {
	asOfDate := DateOf(asOf)

	var records []models.PaymentRecord
	errFind := s.db.WithContext(ctx).
		Where("due_date < ?", asOfDate).
		Order("due_date ASC, bank_id ASC").
		Find(&records).Error
	if errFind != nil {
		return nil, fmt.Errorf("store: overdue payments: %w", errFind)
	}

	out := make([]OverduePayment, 0, len(records))
	for _, rec := range records {
		days := daysBetween(DateOf(rec.DueDate), asOfDate)
		out = append(out, OverduePayment{
			Record:           rec,
			DaysOverdue:      days,
			EstimatedLateFee: EstimateLateFee(rec.MinimumPayment),
		})
	}
	return out, nil
}

// UrgencyFor maps days-until-due to an urgency level.
func UrgencyFor(daysUntilDue int) string {
	switch {
	case daysUntilDue <= 1:
		return UrgencyCritical
	case daysUntilDue <= 3:
		return UrgencyHigh
	case daysUntilDue <= 7:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Late-fee tiers, keyed off the minimum payment size.
var (
	lateFeeSmall   = decimal.NewFromInt(29)
	lateFeeBase    = decimal.NewFromInt(39)
	lateFeeLarge   = decimal.NewFromInt(49)
	lateFeeLowCut  = decimal.NewFromInt(100)
	lateFeeHighCut = decimal.NewFromInt(500)
)

// EstimateLateFee returns a ballpark late fee for a missed payment.
func EstimateLateFee(minimumPayment decimal.Decimal) decimal.Decimal {
	switch {
	case minimumPayment.LessThan(lateFeeLowCut):
		return lateFeeSmall
	case minimumPayment.GreaterThan(lateFeeHighCut):
		return lateFeeLarge
	default:
		return lateFeeBase
	}
}

// daysBetween counts whole days from a to b; both must be midnight dates.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
