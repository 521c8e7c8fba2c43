package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status      string    `json:"status" example:"OK"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      float64   `json:"uptime" example:"3600.5"`
	Environment string    `json:"environment" example:"development"`
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	now := h.now()
	ok(c, http.StatusOK, HealthResponse{
		Status:      "OK",
		Timestamp:   now.UTC(),
		Uptime:      now.Sub(h.startedAt).Seconds(),
		Environment: h.env,
	})
}
