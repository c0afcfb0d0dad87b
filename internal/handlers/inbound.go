package handlers

import (
  "context"
  "crypto/subtle"
  "net/http"
  "strings"
  "github.com/gin-gonic/gin"
  "github.com/velora-crm/outreach-backend/internal/logger"
  "github.com/velora-crm/outreach-backend/internal/services"
)

// InboundHandler receives transport webhooks for incoming messages. The
// webhook is acknowledged immediately and the pipeline runs detached, since
// handling involves LLM calls that outlive the transport's delivery timeout.
type InboundHandler struct {
  log               *logger.Logger
  pipelineService   services.PipelineService
  sharedSecret      string
}

func NewInboundHandler(log *logger.Logger, pipelineService services.PipelineService, sharedSecret string) *InboundHandler {
  return &InboundHandler{
    log:             log.With("handler", "InboundHandler"),
    pipelineService: pipelineService,
    sharedSecret:    sharedSecret,
  }
}

func (ih *InboundHandler) Receive(c *gin.Context) {
  if ih.sharedSecret != "" {
    provided := c.GetHeader("X-Webhook-Secret")
    if provided == "" {
      provided = c.Query("secret")
    }
    if subtle.ConstantTimeCompare([]byte(provided), []byte(ih.sharedSecret)) != 1 {
      c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
      return
    }
  }

  from := strings.TrimSpace(c.PostForm("From"))
  body := c.PostForm("Body")
  if from == "" {
    var req struct {
      From      string      `json:"from"`
      Body      string      `json:"body"`
    }
    if err := c.ShouldBindJSON(&req); err == nil {
      from = strings.TrimSpace(req.From)
      body = req.Body
    }
  }
  if from == "" || strings.TrimSpace(body) == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "missing sender or body"})
    return
  }

  go func() {
    if err := ih.pipelineService.HandleInbound(context.Background(), from, body); err != nil {
      ih.log.Error("Detached inbound handling failed", "phone", from, "error", err)
    }
  }()
  c.Status(http.StatusNoContent)
}
