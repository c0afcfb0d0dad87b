package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/velora-crm/outreach-backend/internal/logger"
  "github.com/velora-crm/outreach-backend/internal/services"
)

type BreakerHandler struct {
  log               *logger.Logger
  breakerService    services.BreakerService
  settingsService   services.SettingsService
}

func NewBreakerHandler(log *logger.Logger, breakerService services.BreakerService, settingsService services.SettingsService) *BreakerHandler {
  return &BreakerHandler{
    log:             log.With("handler", "BreakerHandler"),
    breakerService:  breakerService,
    settingsService: settingsService,
  }
}

func (bh *BreakerHandler) Status(c *gin.Context) {
  ctx := c.Request.Context()
  c.JSON(http.StatusOK, gin.H{
    "global_send_enabled": bh.settingsService.GlobalSendEnabled(ctx),
    "consecutive_errors":  bh.breakerService.ConsecutiveErrors(),
  })
}

// Resume is the only way back after a breaker trip: re-enables the global
// toggle and zeroes the error counter.
func (bh *BreakerHandler) Resume(c *gin.Context) {
  operator := c.GetString("operator")
  if err := bh.breakerService.Resume(c.Request.Context(), operator); err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume sending"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": "true"})
}
