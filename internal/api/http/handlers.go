package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/bridge"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/config"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/monitoring"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
)

// Handlers contains the admin HTTP handlers of one node
type Handlers struct {
	bridge  *bridge.Bridge
	tracer  *tracing.Manager
	metrics *monitoring.Metrics
	service config.ServiceConfig
	started time.Time

	// traceMu serializes traced sends: the manager keeps a single context
	// stack, so only one send span may be open at a time.
	traceMu sync.Mutex
}

// NewHandlers creates a new handler set
func NewHandlers(b *bridge.Bridge, tracer *tracing.Manager, metrics *monitoring.Metrics, service config.ServiceConfig) *Handlers {
	return &Handlers{
		bridge:  b,
		tracer:  tracer,
		metrics: metrics,
		service: service,
		started: time.Now(),
	}
}

// Root handles the liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": h.service.Name,
		"version": h.service.Version,
	})
}

// Health reports node health. A bridge that gave up reconnecting makes the
// node degraded.
func (h *Handlers) Health(c *gin.Context) {
	state := h.bridge.State()
	status := "healthy"
	if state == bridge.StateError {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"node_id":        h.bridge.NodeID(),
		"bridge":         state,
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

// BridgeStatus reports connection state, queue, pending requests and tracing
// counters
func (h *Handlers) BridgeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"node_id": h.bridge.NodeID(),
		"stats":   h.bridge.Stats(),
		"pending": h.bridge.Pending(),
		"tracing": h.tracer.Stats(),
		"metrics": h.metrics.Snapshot(),
	})
}

// Connect starts a connection attempt, resetting the reconnect counter
func (h *Handlers) Connect(c *gin.Context) {
	ok := h.bridge.Connect(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success": ok,
		"state":   h.bridge.State(),
	})
}

// Disconnect closes the connection and stops reconnecting
func (h *Handlers) Disconnect(c *gin.Context) {
	h.bridge.Disconnect()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   h.bridge.State(),
	})
}

// ExportTraces flushes buffered spans to the configured sink
func (h *Handlers) ExportTraces(c *gin.Context) {
	n, err := h.tracer.Export(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success":  false,
			"error":    err.Error(),
			"buffered": h.tracer.Stats().Buffered,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"exported": n,
	})
}
