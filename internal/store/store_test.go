package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/duewatch/duewatch/internal/db"
	"github.com/duewatch/duewatch/internal/models"
)

func setupStore(t *testing.T, offsets []int) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:store_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return New(conn, offsets)
}

func record(bank, card string, due time.Time, minimum string) models.PaymentRecord {
	return models.PaymentRecord{
		BankID:          bank,
		CardIdentifier:  card,
		DueDate:         due,
		MinimumPayment:  decimal.RequireFromString(minimum),
		SourceMessageID: "<msg@test>",
		ExtractedAt:     time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUpsertInsertCreatesPendingReminderPerOffset(t *testing.T) {
	st := setupStore(t, []int{7, 3, 1})
	ctx := context.Background()

	rec := record("chase", "1234", date(2024, 6, 10), "45.00")
	outcome, errUpsert := st.Upsert(ctx, &rec)
	if errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	if outcome != OutcomeInserted {
		t.Fatalf("outcome = %s, want inserted", outcome)
	}

	var reminders []models.ReminderState
	if errFind := st.DB().Where("payment_record_id = ?", rec.ID).Order("offset_days ASC").Find(&reminders).Error; errFind != nil {
		t.Fatalf("find reminders: %v", errFind)
	}
	if len(reminders) != 3 {
		t.Fatalf("reminder rows = %d, want 3", len(reminders))
	}
	for i, want := range []int{1, 3, 7} {
		if reminders[i].OffsetDays != want {
			t.Fatalf("reminders[%d].OffsetDays = %d, want %d", i, reminders[i].OffsetDays, want)
		}
		if reminders[i].Sent() {
			t.Fatalf("reminders[%d] already sent", i)
		}
	}
}

func TestUpsertSameNaturalKeyUpdatesWithoutDuplicating(t *testing.T) {
	st := setupStore(t, []int{7, 3, 1})
	ctx := context.Background()

	first := record("chase", "1234", date(2024, 6, 10), "45.00")
	if _, errUpsert := st.Upsert(ctx, &first); errUpsert != nil {
		t.Fatalf("first upsert: %v", errUpsert)
	}

	// Mark one reminder sent, then re-scan the same statement.
	sentAt := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	if errMark := st.MarkReminderSent(ctx, first.ID, 7, sentAt); errMark != nil {
		t.Fatalf("mark: %v", errMark)
	}

	second := record("chase", "1234", date(2024, 6, 10), "60.00")
	second.SourceMessageID = "<msg2@test>"
	outcome, errUpsert := st.Upsert(ctx, &second)
	if errUpsert != nil {
		t.Fatalf("second upsert: %v", errUpsert)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %s, want updated", outcome)
	}
	if second.ID != first.ID {
		t.Fatalf("update changed record identity: %d != %d", second.ID, first.ID)
	}

	var count int64
	if errCount := st.DB().Model(&models.PaymentRecord{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count records: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("payment records = %d, want 1", count)
	}

	var stored models.PaymentRecord
	if errFind := st.DB().Preload("Reminders").First(&stored, first.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if !stored.MinimumPayment.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("MinimumPayment = %s, want 60.00", stored.MinimumPayment)
	}
	if stored.SourceMessageID != "<msg2@test>" {
		t.Fatalf("SourceMessageID = %s", stored.SourceMessageID)
	}
	if len(stored.Reminders) != 3 {
		t.Fatalf("reminder rows = %d, want 3 (no duplicates)", len(stored.Reminders))
	}
	for _, r := range stored.Reminders {
		if r.OffsetDays == 7 {
			if r.SentAt == nil || !r.SentAt.Equal(sentAt) {
				t.Fatalf("sent reminder was reset by upsert: %+v", r)
			}
		}
	}
}

func TestMarkReminderSentIsIdempotent(t *testing.T) {
	st := setupStore(t, []int{7})
	ctx := context.Background()

	rec := record("citi", "4321", date(2024, 6, 10), "25.00")
	if _, errUpsert := st.Upsert(ctx, &rec); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}

	firstAt := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	secondAt := firstAt.Add(2 * time.Hour)
	if errMark := st.MarkReminderSent(ctx, rec.ID, 7, firstAt); errMark != nil {
		t.Fatalf("first mark: %v", errMark)
	}
	if errMark := st.MarkReminderSent(ctx, rec.ID, 7, secondAt); errMark != nil {
		t.Fatalf("second mark: %v", errMark)
	}

	var reminder models.ReminderState
	if errFind := st.DB().Where("payment_record_id = ? AND offset_days = ?", rec.ID, 7).First(&reminder).Error; errFind != nil {
		t.Fatalf("find reminder: %v", errFind)
	}
	if reminder.SentAt == nil || !reminder.SentAt.Equal(firstAt) {
		t.Fatalf("SentAt = %v, want first timestamp %v", reminder.SentAt, firstAt)
	}
}

func TestDueUnsentRemindersWindows(t *testing.T) {
	// due_date = 2024-06-10, reminder_days = [7,3,1]
	cases := []struct {
		asOf        time.Time
		wantOffsets []int
	}{
		{date(2024, 6, 3), []int{7}},  // offset 7 window day
		{date(2024, 6, 4), nil},       // offset 7 closed, offset 3 not open
		{date(2024, 6, 7), []int{3}},  // offset 3 window day
		{date(2024, 6, 9), []int{1}},  // offset 1 window day
		{date(2024, 6, 10), nil},      // due date reached
		{date(2024, 6, 11), nil},      // past due, never retried
	}

	for _, tc := range cases {
		t.Run(tc.asOf.Format("2006-01-02"), func(t *testing.T) {
			st := setupStore(t, []int{7, 3, 1})
			ctx := context.Background()

			rec := record("chase", "1234", date(2024, 6, 10), "45.00")
			if _, errUpsert := st.Upsert(ctx, &rec); errUpsert != nil {
				t.Fatalf("upsert: %v", errUpsert)
			}

			due, errDue := st.DueUnsentReminders(ctx, tc.asOf)
			if errDue != nil {
				t.Fatalf("due reminders: %v", errDue)
			}
			if len(due) != len(tc.wantOffsets) {
				t.Fatalf("due = %d reminders, want %d", len(due), len(tc.wantOffsets))
			}
			for i, want := range tc.wantOffsets {
				if due[i].OffsetDays != want {
					t.Fatalf("due[%d].OffsetDays = %d, want %d", i, due[i].OffsetDays, want)
				}
			}
		})
	}
}

func TestDueUnsentRemindersSkipsSent(t *testing.T) {
	st := setupStore(t, []int{7})
	ctx := context.Background()

	rec := record("chase", "1234", date(2024, 6, 10), "45.00")
	if _, errUpsert := st.Upsert(ctx, &rec); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	if errMark := st.MarkReminderSent(ctx, rec.ID, 7, date(2024, 6, 3)); errMark != nil {
		t.Fatalf("mark: %v", errMark)
	}

	due, errDue := st.DueUnsentReminders(ctx, date(2024, 6, 3))
	if errDue != nil {
		t.Fatalf("due reminders: %v", errDue)
	}
	if len(due) != 0 {
		t.Fatalf("due = %d reminders, want 0 after send", len(due))
	}
}

func TestDueUnsentRemindersOrderedByDueDateThenOffset(t *testing.T) {
	st := setupStore(t, []int{7, 3, 1})
	ctx := context.Background()

	// Both windows open on 2024-06-07: offset 3 of the June 10 card and
	// offset 7 of the June 14 card.
	early := record("chase", "1111", date(2024, 6, 10), "45.00")
	late := record("amex", "2222", date(2024, 6, 14), "80.00")
	if _, errUpsert := st.Upsert(ctx, &late); errUpsert != nil {
		t.Fatalf("upsert late: %v", errUpsert)
	}
	if _, errUpsert := st.Upsert(ctx, &early); errUpsert != nil {
		t.Fatalf("upsert early: %v", errUpsert)
	}

	due, errDue := st.DueUnsentReminders(ctx, date(2024, 6, 7))
	if errDue != nil {
		t.Fatalf("due reminders: %v", errDue)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d reminders, want 2", len(due))
	}
	if due[0].Record.BankID != "chase" || due[0].OffsetDays != 3 {
		t.Fatalf("due[0] = %s offset %d, want chase offset 3", due[0].Record.BankID, due[0].OffsetDays)
	}
	if due[1].Record.BankID != "amex" || due[1].OffsetDays != 7 {
		t.Fatalf("due[1] = %s offset %d, want amex offset 7", due[1].Record.BankID, due[1].OffsetDays)
	}
}

func TestUpsertDistinctNaturalKeysCreateSeparateRecords(t *testing.T) {
	st := setupStore(t, []int{7})
	ctx := context.Background()

	a := record("chase", "1234", date(2024, 6, 10), "45.00")
	b := record("chase", "1234", date(2024, 7, 10), "45.00") // next month's statement
	c := record("chase", "9999", date(2024, 6, 10), "45.00") // different card
	for _, rec := range []*models.PaymentRecord{&a, &b, &c} {
		if _, errUpsert := st.Upsert(ctx, rec); errUpsert != nil {
			t.Fatalf("upsert: %v", errUpsert)
		}
	}

	var count int64
	if errCount := st.DB().Model(&models.PaymentRecord{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 3 {
		t.Fatalf("records = %d, want 3", count)
	}
}
