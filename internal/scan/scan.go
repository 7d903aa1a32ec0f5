// Package scan runs one scan cycle: fetch mail, extract payment records,
// then dispatch whatever reminders are due.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/duewatch/duewatch/internal/models"
	"github.com/duewatch/duewatch/internal/parser"
	"github.com/duewatch/duewatch/internal/profile"
	"github.com/duewatch/duewatch/internal/store"
)

// MailSource yields the messages for one cycle. A fetch failure aborts only
// the current cycle.
type MailSource interface {
	Fetch(ctx context.Context) ([]parser.RawMessage, error)
}

// Notifier delivers one reminder. A nil return is a confirmed delivery;
// anything else leaves the reminder pending for the next cycle.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// ErrCycleRunning is returned when a cycle is requested while another one is
// still in flight.
var ErrCycleRunning = fmt.Errorf("scan: cycle already running")

// Summary is the end-of-cycle report.
type Summary struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	MessagesScanned int `json:"messages_scanned"`
	ProfileMatches  int `json:"profile_matches"`
	RecordsParsed   int `json:"records_parsed"`
	ParseFailures   int `json:"parse_failures"`
	RemindersSent   int `json:"reminders_sent"`
	SendFailures    int `json:"send_failures"`
}

// parseFailureDetail is one skipped message, kept in the scan log.
type parseFailureDetail struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Kind      string `json:"kind"`
	Field     string `json:"field"`
	Value     string `json:"value,omitempty"`
}

// Orchestrator composes registry, parser, store, mail source and notifier
// into the scan cycle.
type Orchestrator struct {
	source   MailSource
	notifier Notifier
	store    *store.Store
	registry *profile.Registry

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time

	mu sync.Mutex
}

// New builds an Orchestrator.
func New(source MailSource, notifier Notifier, st *store.Store, registry *profile.Registry) *Orchestrator {
	return &Orchestrator{
		source:   source,
		notifier: notifier,
		store:    st,
		registry: registry,
		now:      time.Now,
	}
}

// Cycle runs one scan cycle to completion. Cycles never overlap: if one is
// already running, Cycle returns ErrCycleRunning immediately.
//
// Parse failures and dispatch failures are recovered per item; only store
// unavailability (or a failed fetch) aborts the cycle.
func (o *Orchestrator) Cycle(ctx context.Context) (Summary, error) {
	if !o.mu.TryLock() {
		return Summary{}, ErrCycleRunning
	}
	defer o.mu.Unlock()

	summary := Summary{
		CycleID:   uuid.NewString(),
		StartedAt: o.now().UTC(),
	}
	logger := log.WithField("cycle_id", summary.CycleID)
	logger.Info("scan cycle started")

	messages, errFetch := o.source.Fetch(ctx)
	if errFetch != nil {
		return summary, fmt.Errorf("scan: fetch: %w", errFetch)
	}
	summary.MessagesScanned = len(messages)

	var failures []parseFailureDetail
	for _, msg := range messages {
		prof := o.resolveProfile(msg)
		if prof == nil {
			continue // not statement mail; most inbox traffic lands here
		}
		summary.ProfileMatches++

		rec, errParse := parser.Parse(msg, prof, o.now().UTC())
		if errParse != nil {
			summary.ParseFailures++
			detail := parseFailureDetail{MessageID: msg.MessageID, Sender: msg.Sender}
			if f, ok := parser.AsFailure(errParse); ok {
				detail.Kind = string(f.Kind)
				detail.Field = f.Field
				detail.Value = f.Value
			}
			failures = append(failures, detail)
			logger.WithError(errParse).WithField("message_id", msg.MessageID).Warn("statement parse failed, message skipped")
			continue
		}

		outcome, errUpsert := o.store.Upsert(ctx, &rec)
		if errUpsert != nil {
			return summary, fmt.Errorf("scan: upsert: %w", errUpsert)
		}
		summary.RecordsParsed++
		logger.Infof("stored payment: bank=%s card=%s due=%s (%s)",
			rec.BankID, rec.CardIdentifier, rec.DueDate.Format("2006-01-02"), outcome)
	}

	if errDispatch := o.dispatchDue(ctx, logger, &summary); errDispatch != nil {
		return summary, errDispatch
	}

	summary.FinishedAt = o.now().UTC()
	o.writeScanLog(ctx, logger, summary, failures)
	logger.Infof("scan cycle finished: scanned=%d matched=%d parsed=%d parse_failures=%d reminders_sent=%d send_failures=%d",
		summary.MessagesScanned, summary.ProfileMatches, summary.RecordsParsed,
		summary.ParseFailures, summary.RemindersSent, summary.SendFailures)
	return summary, nil
}

// resolveProfile matches the sender first, then the subject. Some banks put
// the brand only in the display name or subject line.
func (o *Orchestrator) resolveProfile(msg parser.RawMessage) *profile.Profile {
	if p := o.registry.Find(msg.Sender); p != nil {
		return p
	}
	return o.registry.Find(msg.Subject)
}

// dispatchDue sends every due reminder and marks each sent only after the
// notifier confirms. A failed send leaves the row pending for the next
// cycle; a failed mark is a store failure and aborts.
func (o *Orchestrator) dispatchDue(ctx context.Context, logger *log.Entry, summary *Summary) error {
	asOf := o.now().UTC()
	due, errDue := o.store.DueUnsentReminders(ctx, asOf)
	if errDue != nil {
		return fmt.Errorf("scan: due reminders: %w", errDue)
	}

	for _, reminder := range due {
		subject, body := renderReminder(reminder, asOf)
		if errSend := o.notifier.Send(ctx, subject, body); errSend != nil {
			summary.SendFailures++
			logger.WithError(errSend).Warnf("reminder dispatch failed, stays pending: bank=%s card=%s offset=%d",
				reminder.Record.BankID, reminder.Record.CardIdentifier, reminder.OffsetDays)
			continue
		}
		if errMark := o.store.MarkReminderSent(ctx, reminder.Record.ID, reminder.OffsetDays, o.now().UTC()); errMark != nil {
			return fmt.Errorf("scan: mark sent: %w", errMark)
		}
		summary.RemindersSent++
		logger.Infof("reminder sent: bank=%s card=%s due=%s offset=%d",
			reminder.Record.BankID, reminder.Record.CardIdentifier,
			reminder.Record.DueDate.Format("2006-01-02"), reminder.OffsetDays)
	}
	return nil
}

// writeScanLog persists the cycle summary; failure to do so is logged, not
// fatal, since the cycle's real work is already committed.
func (o *Orchestrator) writeScanLog(ctx context.Context, logger *log.Entry, summary Summary, failures []parseFailureDetail) {
	entry := models.ScanLog{
		CycleID:         summary.CycleID,
		StartedAt:       summary.StartedAt,
		FinishedAt:      summary.FinishedAt,
		MessagesScanned: summary.MessagesScanned,
		ProfileMatches:  summary.ProfileMatches,
		RecordsParsed:   summary.RecordsParsed,
		ParseFailures:   summary.ParseFailures,
		RemindersSent:   summary.RemindersSent,
		SendFailures:    summary.SendFailures,
	}
	if len(failures) > 0 {
		if raw, errMarshal := json.Marshal(failures); errMarshal == nil {
			entry.Details = datatypes.JSON(raw)
		}
	}
	if errSave := o.store.SaveScanLog(ctx, &entry); errSave != nil {
		logger.WithError(errSave).Warn("scan log write failed")
	}
}
