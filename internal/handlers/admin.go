package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/dispatch"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
)

// AdminHandler injects role-targeted broadcasts. The stats aggregation
// job normally feeds these through AMQP; this endpoint is the direct
// path used when no broker is configured.
type AdminHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(dispatcher *dispatch.Dispatcher) *AdminHandler {
	return &AdminHandler{dispatcher: dispatcher}
}

// Broadcast pushes a stats_update or therapist_update payload to every
// live channel registered under the target role.
func (h *AdminHandler) Broadcast(c *gin.Context) {
	if c.GetString(middleware.RoleKey) != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	role := c.Param("role")
	if !models.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	var req struct {
		Kind    string          `json:"kind" binding:"required"`
		Payload json.RawMessage `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := models.EventKind(req.Kind)
	if kind != models.EventStatsUpdate && kind != models.EventTherapistUpdate {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be stats_update or therapist_update"})
		return
	}

	h.dispatcher.BroadcastToRole(role, models.NewAdminBroadcast(kind, req.Payload))
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
