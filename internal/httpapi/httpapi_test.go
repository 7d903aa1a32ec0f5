package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/duewatch/duewatch/internal/db"
	"github.com/duewatch/duewatch/internal/models"
	"github.com/duewatch/duewatch/internal/parser"
	"github.com/duewatch/duewatch/internal/profile"
	"github.com/duewatch/duewatch/internal/scan"
	"github.com/duewatch/duewatch/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSource struct {
	// entered is signalled when Fetch starts; release gates its return.
	entered chan struct{}
	release chan struct{}
}

func (s *stubSource) Fetch(ctx context.Context) ([]parser.RawMessage, error) {
	if s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		<-s.release
	}
	return nil, nil
}

type stubNotifier struct{}

func (stubNotifier) Send(ctx context.Context, subject, body string) error { return nil }

func setupAPI(t *testing.T, source scan.MailSource) (*gin.Engine, *store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:httpapi_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	st := store.New(conn, []int{7, 3, 1})

	var orch *scan.Orchestrator
	if source != nil {
		orch = scan.New(source, stubNotifier{}, st, profile.NewRegistry())
	}
	return NewRouter(conn, st, orch), st
}

func seedPayment(t *testing.T, st *store.Store, bank, card string, due time.Time) {
	t.Helper()
	rec := models.PaymentRecord{
		BankID:          bank,
		CardIdentifier:  card,
		DueDate:         due,
		MinimumPayment:  decimal.RequireFromString("45.00"),
		SourceMessageID: "<seed@test>",
		ExtractedAt:     time.Now().UTC(),
	}
	if _, errUpsert := st.Upsert(context.Background(), &rec); errUpsert != nil {
		t.Fatalf("seed upsert: %v", errUpsert)
	}
}

func doRequest(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router, _ := setupAPI(t, nil)
	res := doRequest(router, http.MethodGet, "/healthz")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
}

func TestListPayments(t *testing.T) {
	router, st := setupAPI(t, nil)
	seedPayment(t, st, "chase", "1234", time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC))

	res := doRequest(router, http.MethodGet, "/v0/payments")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}

	var body struct {
		Payments []struct {
			BankID    string `json:"bank_id"`
			DueDate   string `json:"due_date"`
			Reminders []struct {
				OffsetDays int `json:"offset_days"`
			} `json:"reminders"`
		} `json:"payments"`
	}
	if errDecode := json.Unmarshal(res.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if len(body.Payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(body.Payments))
	}
	if body.Payments[0].BankID != "chase" || body.Payments[0].DueDate != "2030-06-15" {
		t.Fatalf("payment = %+v", body.Payments[0])
	}
	if len(body.Payments[0].Reminders) != 3 {
		t.Fatalf("reminders = %d, want 3", len(body.Payments[0].Reminders))
	}
}

func TestUpcomingPayments(t *testing.T) {
	router, st := setupAPI(t, nil)
	soon := store.DateOf(time.Now()).AddDate(0, 0, 2)
	far := store.DateOf(time.Now()).AddDate(0, 0, 60)
	seedPayment(t, st, "chase", "1234", soon)
	seedPayment(t, st, "amex", "5678", far)

	res := doRequest(router, http.MethodGet, "/v0/payments/upcoming?days=7")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	var body struct {
		Payments []struct {
			BankID  string `json:"bank_id"`
			Urgency string `json:"urgency"`
		} `json:"payments"`
	}
	if errDecode := json.Unmarshal(res.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if len(body.Payments) != 1 || body.Payments[0].BankID != "chase" {
		t.Fatalf("payments = %+v", body.Payments)
	}
	if body.Payments[0].Urgency != store.UrgencyHigh {
		t.Fatalf("urgency = %s, want %s", body.Payments[0].Urgency, store.UrgencyHigh)
	}
}

func TestUpcomingRejectsBadDays(t *testing.T) {
	router, _ := setupAPI(t, nil)
	for _, target := range []string{"/v0/payments/upcoming?days=abc", "/v0/payments/upcoming?days=-1"} {
		if res := doRequest(router, http.MethodGet, target); res.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, res.Code)
		}
	}
}

func TestOverduePayments(t *testing.T) {
	router, st := setupAPI(t, nil)
	seedPayment(t, st, "citi", "4321", store.DateOf(time.Now()).AddDate(0, 0, -3))

	res := doRequest(router, http.MethodGet, "/v0/payments/overdue")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	var body struct {
		Payments []struct {
			BankID           string          `json:"bank_id"`
			DaysOverdue      int             `json:"days_overdue"`
			EstimatedLateFee decimal.Decimal `json:"estimated_late_fee"`
		} `json:"payments"`
	}
	if errDecode := json.Unmarshal(res.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if len(body.Payments) != 1 || body.Payments[0].DaysOverdue != 3 {
		t.Fatalf("payments = %+v", body.Payments)
	}
	if !body.Payments[0].EstimatedLateFee.Equal(decimal.NewFromInt(29)) {
		t.Fatalf("late fee = %s, want 29", body.Payments[0].EstimatedLateFee)
	}
}

func TestScanTrigger(t *testing.T) {
	router, _ := setupAPI(t, &stubSource{})
	res := doRequest(router, http.MethodPost, "/v0/scan")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", res.Code, res.Body.String())
	}
}

func TestScanTriggerConflictsWhileRunning(t *testing.T) {
	source := &stubSource{entered: make(chan struct{}), release: make(chan struct{})}
	router, _ := setupAPI(t, source)

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() { firstDone <- doRequest(router, http.MethodPost, "/v0/scan") }()

	select {
	case <-source.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first scan never started")
	}

	if res := doRequest(router, http.MethodPost, "/v0/scan"); res.Code != http.StatusConflict {
		t.Fatalf("concurrent trigger status = %d, want 409", res.Code)
	}

	close(source.release)
	if res := <-firstDone; res.Code != http.StatusOK {
		t.Fatalf("first trigger status = %d, want 200", res.Code)
	}
}

func TestScanRouteAbsentWithoutOrchestrator(t *testing.T) {
	router, _ := setupAPI(t, nil)
	if res := doRequest(router, http.MethodPost, "/v0/scan"); res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}
