// Package httpapi is the read-only observation surface plus a manual scan
// trigger. It binds loopback by default and carries no authentication; the
// daemon is single-user.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/duewatch/duewatch/internal/scan"
	"github.com/duewatch/duewatch/internal/store"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz checks database connectivity and returns status.
func (h *HealthHandler) Healthz(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ScanHandler triggers scan cycles over HTTP.
type ScanHandler struct {
	orch *scan.Orchestrator
}

// NewScanHandler constructs a ScanHandler.
func NewScanHandler(orch *scan.Orchestrator) *ScanHandler {
	return &ScanHandler{orch: orch}
}

// Trigger runs one cycle now. When a cycle is already in flight the request
// is rejected instead of queued; cycles must not overlap.
func (h *ScanHandler) Trigger(c *gin.Context) {
	summary, errCycle := h.orch.Cycle(c.Request.Context())
	if errCycle != nil {
		if errors.Is(errCycle, scan.ErrCycleRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "scan cycle already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan cycle failed", "summary": summary})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// NewRouter wires all routes.
func NewRouter(db *gorm.DB, st *store.Store, orch *scan.Orchestrator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	health := NewHealthHandler(db)
	payments := NewPaymentHandler(st)

	router.GET("/healthz", health.Healthz)
	router.GET("/v0/payments", payments.List)
	router.GET("/v0/payments/upcoming", payments.Upcoming)
	router.GET("/v0/payments/overdue", payments.Overdue)
	if orch != nil {
		scans := NewScanHandler(orch)
		router.POST("/v0/scan", scans.Trigger)
	}
	return router
}
