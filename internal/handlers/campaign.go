package handlers

import (
  "context"
  "net/http"
  "sync"
  "github.com/gin-gonic/gin"
  "github.com/velora-crm/outreach-backend/internal/logger"
  "github.com/velora-crm/outreach-backend/internal/services"
)

// CampaignHandler starts and stops outreach runs. At most one run is active
// at a time; runs execute detached because pacing stretches them over hours.
type CampaignHandler struct {
  log               *logger.Logger
  campaignService   services.CampaignService

  mu        sync.Mutex
  cancel    context.CancelFunc
}

func NewCampaignHandler(log *logger.Logger, campaignService services.CampaignService) *CampaignHandler {
  return &CampaignHandler{log: log.With("handler", "CampaignHandler"), campaignService: campaignService}
}

func (ch *CampaignHandler) Start(c *gin.Context) {
  var req struct {
    Opener      string      `json:"opener"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.Opener == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "missing opener text"})
    return
  }

  ch.mu.Lock()
  if ch.cancel != nil {
    ch.mu.Unlock()
    c.JSON(http.StatusConflict, gin.H{"error": "a campaign run is already active"})
    return
  }
  ctx, cancel := context.WithCancel(context.Background())
  ch.cancel = cancel
  ch.mu.Unlock()

  go func() {
    defer func() {
      ch.mu.Lock()
      ch.cancel = nil
      ch.mu.Unlock()
    }()
    stats, err := ch.campaignService.RunOpener(ctx, req.Opener)
    if err != nil && ctx.Err() == nil {
      ch.log.Error("Campaign run failed", "error", err)
      return
    }
    ch.log.Info("Campaign run done", "sent", stats.Sent, "skipped", stats.Skipped, "blocked", stats.Blocked)
  }()
  c.JSON(http.StatusAccepted, gin.H{"success": "true"})
}

func (ch *CampaignHandler) Stop(c *gin.Context) {
  ch.mu.Lock()
  cancel := ch.cancel
  ch.mu.Unlock()
  if cancel == nil {
    c.JSON(http.StatusNotFound, gin.H{"error": "no active campaign run"})
    return
  }
  cancel()
  c.JSON(http.StatusOK, gin.H{"success": "true"})
}
