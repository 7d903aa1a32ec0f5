package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRecord is one payment obligation extracted from a statement email.
//
// (BankID, CardIdentifier, DueDate) is the natural key: re-scanning the same
// statement updates the existing row instead of inserting a duplicate.
type PaymentRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BankID         string    `gorm:"type:text;not null;uniqueIndex:idx_payments_natural_key"` // Supported bank identifier (chase, discover, ...).
	CardIdentifier string    `gorm:"type:text;not null;uniqueIndex:idx_payments_natural_key"` // Last four digits or masked account string; may be empty.
	DueDate        time.Time `gorm:"type:date;not null;uniqueIndex:idx_payments_natural_key"` // Payment due date, midnight UTC.

	MinimumPayment   decimal.Decimal  `gorm:"type:decimal(12,2);not null"` // Minimum payment due.
	StatementBalance *decimal.Decimal `gorm:"type:decimal(12,2)"`          // Statement balance, when the email carried one.

	SourceMessageID string    `gorm:"type:text;not null"` // Message-ID of the originating email.
	ExtractedAt     time.Time `gorm:"not null"`           // When the record was extracted.

	Reminders []ReminderState `gorm:"foreignKey:PaymentRecordID;constraint:OnDelete:CASCADE"` // Per-offset reminder rows.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the table name independent of GORM pluralization rules.
func (PaymentRecord) TableName() string { return "payment_records" }
