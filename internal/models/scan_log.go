package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScanLog records the outcome of one scan cycle for end-of-cycle reporting.
type ScanLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CycleID    string    `gorm:"type:text;not null;uniqueIndex"` // Correlation ID, also used in cycle logs.
	StartedAt  time.Time `gorm:"not null"`                       // Cycle start.
	FinishedAt time.Time `gorm:"not null"`                       // Cycle end.

	MessagesScanned int `gorm:"not null;default:0"` // Messages fetched this cycle.
	ProfileMatches  int `gorm:"not null;default:0"` // Messages that matched a bank profile.
	RecordsParsed   int `gorm:"not null;default:0"` // Statements parsed and upserted.
	ParseFailures   int `gorm:"not null;default:0"` // Messages skipped due to parse failure.
	RemindersSent   int `gorm:"not null;default:0"` // Reminders dispatched and confirmed.
	SendFailures    int `gorm:"not null;default:0"` // Reminders that failed to dispatch and stay pending.

	Details datatypes.JSON `gorm:"type:json"` // Parse failure details, when any occurred.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName pins the table name independent of GORM pluralization rules.
func (ScanLog) TableName() string { return "scan_logs" }
