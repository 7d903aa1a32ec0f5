package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/duewatch/duewatch/internal/models"
	"github.com/duewatch/duewatch/internal/store"
)

// PaymentHandler serves payment record views.
type PaymentHandler struct {
	store *store.Store
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(st *store.Store) *PaymentHandler {
	return &PaymentHandler{store: st}
}

// reminderDTO defines the reminder state payload.
type reminderDTO struct {
	OffsetDays int        `json:"offset_days"`
	SentAt     *time.Time `json:"sent_at"`
}

// paymentDTO defines the payment record payload.
type paymentDTO struct {
	ID               uint64           `json:"id"`
	BankID           string           `json:"bank_id"`
	CardIdentifier   string           `json:"card_identifier,omitempty"`
	DueDate          string           `json:"due_date"`
	MinimumPayment   decimal.Decimal  `json:"minimum_payment"`
	StatementBalance *decimal.Decimal `json:"statement_balance,omitempty"`
	SourceMessageID  string           `json:"source_message_id"`
	ExtractedAt      time.Time        `json:"extracted_at"`
	Reminders        []reminderDTO    `json:"reminders,omitempty"`
}

func toPaymentDTO(rec models.PaymentRecord) paymentDTO {
	dto := paymentDTO{
		ID:               rec.ID,
		BankID:           rec.BankID,
		CardIdentifier:   rec.CardIdentifier,
		DueDate:          rec.DueDate.Format("2006-01-02"),
		MinimumPayment:   rec.MinimumPayment,
		StatementBalance: rec.StatementBalance,
		SourceMessageID:  rec.SourceMessageID,
		ExtractedAt:      rec.ExtractedAt,
	}
	for _, r := range rec.Reminders {
		dto.Reminders = append(dto.Reminders, reminderDTO{OffsetDays: r.OffsetDays, SentAt: r.SentAt})
	}
	return dto
}

// List returns all payment records with their reminder states.
func (h *PaymentHandler) List(c *gin.Context) {
	records, errList := h.store.ListPayments(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list payments failed"})
		return
	}
	payments := make([]paymentDTO, 0, len(records))
	for _, rec := range records {
		payments = append(payments, toPaymentDTO(rec))
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// upcomingDTO defines the upcoming payment payload.
type upcomingDTO struct {
	paymentDTO
	DaysUntilDue int    `json:"days_until_due"`
	Urgency      string `json:"urgency"`
}

// Upcoming returns payments due within ?days (default 7).
func (h *PaymentHandler) Upcoming(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a non-negative integer"})
			return
		}
		days = parsed
	}

	rows, errUpcoming := h.store.UpcomingPayments(c.Request.Context(), time.Now(), days)
	if errUpcoming != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upcoming payments failed"})
		return
	}
	payments := make([]upcomingDTO, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, upcomingDTO{
			paymentDTO:   toPaymentDTO(row.Record),
			DaysUntilDue: row.DaysUntilDue,
			Urgency:      row.Urgency,
		})
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// overdueDTO defines the overdue payment payload.
type overdueDTO struct {
	paymentDTO
	DaysOverdue      int             `json:"days_overdue"`
	EstimatedLateFee decimal.Decimal `json:"estimated_late_fee"`
}

// Overdue returns payments whose due date has passed.
func (h *PaymentHandler) Overdue(c *gin.Context) {
	rows, errOverdue := h.store.OverduePayments(c.Request.Context(), time.Now())
	if errOverdue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "overdue payments failed"})
		return
	}
	payments := make([]overdueDTO, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, overdueDTO{
			paymentDTO:       toPaymentDTO(row.Record),
			DaysOverdue:      row.DaysOverdue,
			EstimatedLateFee: row.EstimatedLateFee,
		})
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
