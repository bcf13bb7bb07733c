package presence

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campuspro/internal/queue"
)

// Handler exposes the gate-facing HTTP surface.
type Handler struct {
	svc *Service
	q   queue.Queue
}

// NewHandler creates a handler. q may be nil when no fan-out is wanted.
func NewHandler(svc *Service, q queue.Queue) *Handler {
	return &Handler{svc: svc, q: q}
}

// Register mounts the gate routes.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/v1/gate/events", h.recordEvent)
	r.GET("/v1/gate/status", h.status)
	r.GET("/v1/occupancy", h.occupancy)
}

func (h *Handler) recordEvent(c *gin.Context) {
	var req struct {
		RFIDID    string `json:"rfid_id"`
		EventType string `json:"event_type"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON body"})
		return
	}

	res, err := h.svc.RecordEvent(c.Request.Context(), EventRequest{
		RFIDID:    req.RFIDID,
		EventType: req.EventType,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if h.q != nil {
		evt := queue.Event{RFIDID: req.RFIDID, EventType: req.EventType, At: res.Timestamp}
		if err := h.q.Publish(c.Request.Context(), evt); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	body := gin.H{
		"success":    true,
		"message":    res.Message,
		"timestamp":  res.Timestamp.Format(time.RFC3339),
		"bus_number": res.BusNumber,
	}
	if len(res.Warnings) > 0 {
		body["warnings"] = res.Warnings
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) status(c *gin.Context) {
	inCampus, err := h.svc.Status(c.Request.Context(), c.Query("rfid_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"in_campus": inCampus})
}

func (h *Handler) occupancy(c *gin.Context) {
	n, err := h.svc.Occupancy(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"in_campus_count": n})
}
