// Package store is the durable payment table: upsert by natural key,
// idempotent reminder marking, and the scheduler's due-reminder query.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/duewatch/duewatch/internal/models"
)

// Outcome reports what an upsert did.
type Outcome int

const (
	// OutcomeInserted means a new payment record was created.
	OutcomeInserted Outcome = iota
	// OutcomeUpdated means an existing record's mutable fields were overwritten.
	OutcomeUpdated
)

func (o Outcome) String() string {
	if o == OutcomeInserted {
		return "inserted"
	}
	return "updated"
}

// Store wraps the database with the payment-domain operations.
type Store struct {
	db      *gorm.DB
	offsets []int
}

// New builds a Store. offsets are the configured reminder offsets in days;
// each inserted record gets one pending reminder row per offset.
func New(db *gorm.DB, offsets []int) *Store {
	return &Store{db: db, offsets: append([]int(nil), offsets...)}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *gorm.DB { return s.db }

// Offsets returns the configured reminder offsets.
func (s *Store) Offsets() []int { return append([]int(nil), s.offsets...) }

// Upsert inserts rec or updates the record sharing its natural key
// (bank_id, card_identifier, due_date).
//
// On update only the mutable fields move: minimum payment, statement
// balance, source message ID, extracted-at. Existing reminder rows are left
// untouched, so a re-scanned statement never resets an already-sent
// reminder. On insert one pending reminder row is created per configured
// offset, in the same transaction.
func (s *Store) Upsert(ctx context.Context, rec *models.PaymentRecord) (Outcome, error) {
	if rec == nil {
		return OutcomeInserted, fmt.Errorf("store: nil record")
	}
	rec.DueDate = DateOf(rec.DueDate)

	outcome := OutcomeInserted
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PaymentRecord
		errFind := tx.
			Where("bank_id = ? AND card_identifier = ? AND due_date = ?", rec.BankID, rec.CardIdentifier, rec.DueDate).
			First(&existing).Error
		if errFind == nil {
			outcome = OutcomeUpdated
			updates := map[string]any{
				"minimum_payment":   rec.MinimumPayment,
				"statement_balance": rec.StatementBalance,
				"source_message_id": rec.SourceMessageID,
				"extracted_at":      rec.ExtractedAt,
			}
			if errUpdate := tx.Model(&existing).Updates(updates).Error; errUpdate != nil {
				return fmt.Errorf("store: update record: %w", errUpdate)
			}
			rec.ID = existing.ID
			return nil
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store: find record: %w", errFind)
		}

		if errCreate := tx.Create(rec).Error; errCreate != nil {
			return fmt.Errorf("store: create record: %w", errCreate)
		}
		for _, offset := range s.offsets {
			reminder := models.ReminderState{PaymentRecordID: rec.ID, OffsetDays: offset}
			if errCreate := tx.Create(&reminder).Error; errCreate != nil {
				return fmt.Errorf("store: create reminder row: %w", errCreate)
			}
		}
		return nil
	})
	if errTx != nil {
		return outcome, errTx
	}
	return outcome, nil
}

// MarkReminderSent sets sent_at for the (record, offset) pair, only if it is
// still null. Marking an already-sent pair is a no-op, which makes retried
// dispatch confirmations safe.
func (s *Store) MarkReminderSent(ctx context.Context, recordID uint64, offsetDays int, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.ReminderState{}).
		Where("payment_record_id = ? AND offset_days = ? AND sent_at IS NULL", recordID, offsetDays).
		Update("sent_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("store: mark reminder sent: %w", res.Error)
	}
	return nil
}

// DueReminder is one reminder eligible for dispatch.
type DueReminder struct {
	Record     models.PaymentRecord
	OffsetDays int
}

// DueUnsentReminders returns the reminders whose window is open at asOf and
// whose sent_at is still null, ordered by due date ascending then offset
// ascending so retries after a partial dispatch resume in a stable sequence.
//
// A reminder's window is the single calendar day offset_days before the due
// date; the due date itself is a hard cutoff. Past-due records never fire,
// and a window missed during an outage is a silent miss, not retried.
func (s *Store) DueUnsentReminders(ctx context.Context, asOf time.Time) ([]DueReminder, error) {
	asOfDate := DateOf(asOf)

	// Candidate rows: pending reminders on records whose due date is still
	// ahead of asOf. The exact per-offset window check runs in Go so the
	// date arithmetic is identical across SQLite and PostgreSQL.
	var rows []models.ReminderState
	errFind := s.db.WithContext(ctx).
		Joins("JOIN payment_records ON payment_records.id = reminder_states.payment_record_id").
		Where("reminder_states.sent_at IS NULL AND payment_records.due_date > ?", asOfDate).
		Order("payment_records.due_date ASC, reminder_states.offset_days ASC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("store: due reminders: %w", errFind)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	recordIDs := make([]uint64, 0, len(rows))
	for _, row := range rows {
		recordIDs = append(recordIDs, row.PaymentRecordID)
	}
	records, errRecords := s.recordsByID(ctx, recordIDs)
	if errRecords != nil {
		return nil, errRecords
	}

	var due []DueReminder
	for _, row := range rows {
		rec, ok := records[row.PaymentRecordID]
		if !ok {
			continue
		}
		windowDay := DateOf(rec.DueDate).AddDate(0, 0, -row.OffsetDays)
		if asOfDate.Equal(windowDay) && asOfDate.Before(DateOf(rec.DueDate)) {
			due = append(due, DueReminder{Record: rec, OffsetDays: row.OffsetDays})
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].Record.DueDate.Equal(due[j].Record.DueDate) {
			return due[i].Record.DueDate.Before(due[j].Record.DueDate)
		}
		return due[i].OffsetDays < due[j].OffsetDays
	})
	return due, nil
}

func (s *Store) recordsByID(ctx context.Context, ids []uint64) (map[uint64]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if errFind := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; errFind != nil {
		return nil, fmt.Errorf("store: load records: %w", errFind)
	}
	out := make(map[uint64]models.PaymentRecord, len(records))
	for _, rec := range records {
		out[rec.ID] = rec
	}
	return out, nil
}

// ListPayments returns all payment records with their reminder rows, newest
// due date first.
func (s *Store) ListPayments(ctx context.Context) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	errFind := s.db.WithContext(ctx).
		Preload("Reminders").
		Order("due_date DESC, bank_id ASC").
		Find(&records).Error
	if errFind != nil {
		return nil, fmt.Errorf("store: list payments: %w", errFind)
	}
	return records, nil
}

// SaveScanLog persists one cycle summary row.
func (s *Store) SaveScanLog(ctx context.Context, entry *models.ScanLog) error {
	if errCreate := s.db.WithContext(ctx).Create(entry).Error; errCreate != nil {
		return fmt.Errorf("store: save scan log: %w", errCreate)
	}
	return nil
}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
