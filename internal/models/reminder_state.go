package models

import "time"

// ReminderState tracks one reminder offset for one payment record.
//
// SentAt transitions from null to set exactly once; it is never reset and
// never overwritten. Rows are created together with their payment record,
// one per configured offset.
type ReminderState struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	PaymentRecordID uint64 `gorm:"not null;uniqueIndex:idx_reminders_pair"` // Owning payment record.
	OffsetDays      int    `gorm:"not null;uniqueIndex:idx_reminders_pair"` // Days before the due date this reminder fires.

	SentAt *time.Time // Dispatch confirmation time; null while pending.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName pins the table name independent of GORM pluralization rules.
func (ReminderState) TableName() string { return "reminder_states" }

// Sent reports whether the reminder has been dispatched.
func (r ReminderState) Sent() bool { return r.SentAt != nil }
