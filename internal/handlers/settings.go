package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/velora-crm/outreach-backend/internal/logger"
  "github.com/velora-crm/outreach-backend/internal/services"
)

type SettingsHandler struct {
  log               *logger.Logger
  settingsService   services.SettingsService
}

func NewSettingsHandler(log *logger.Logger, settingsService services.SettingsService) *SettingsHandler {
  return &SettingsHandler{log: log.With("handler", "SettingsHandler"), settingsService: settingsService}
}

func (sh *SettingsHandler) GetAll(c *gin.Context) {
  settings, err := sh.settingsService.GetAll(c.Request.Context())
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (sh *SettingsHandler) Put(c *gin.Context) {
  var req struct {
    Key       string      `json:"key"`
    Value     any         `json:"value"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  if err := sh.settingsService.Set(c.Request.Context(), req.Key, req.Value); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": "true"})
}
