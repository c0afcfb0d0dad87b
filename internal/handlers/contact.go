package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/velora-crm/outreach-backend/internal/logger"
  "github.com/velora-crm/outreach-backend/internal/repos"
  "github.com/velora-crm/outreach-backend/internal/services"
  "github.com/velora-crm/outreach-backend/internal/types"
)

type ContactHandler struct {
  log               *logger.Logger
  contactRepo       repos.ContactRepo
  eventRepo         repos.EventRepo
  consentService    services.ConsentService
  escalationService services.EscalationService
}

func NewContactHandler(log *logger.Logger, contactRepo repos.ContactRepo, eventRepo repos.EventRepo, consentService services.ConsentService, escalationService services.EscalationService) *ContactHandler {
  return &ContactHandler{
    log:               log.With("handler", "ContactHandler"),
    contactRepo:       contactRepo,
    eventRepo:         eventRepo,
    consentService:    consentService,
    escalationService: escalationService,
  }
}

func (ch *ContactHandler) List(c *gin.Context) {
  ctx := c.Request.Context()
  var contacts []*types.Contact
  var err error
  switch {
  case c.Query("stage") != "":
    contacts, err = ch.contactRepo.ListByStage(ctx, nil, c.Query("stage"))
  case c.Query("consent") != "":
    contacts, err = ch.contactRepo.ListByConsent(ctx, nil, c.Query("consent"))
  case c.Query("human_required") == "true":
    contacts, err = ch.contactRepo.ListHumanRequired(ctx, nil)
  default:
    contacts, err = ch.contactRepo.ListAll(ctx, nil)
  }
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list contacts"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

func (ch *ContactHandler) Get(c *gin.Context) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
    return
  }
  contact, err := ch.contactRepo.GetByID(c.Request.Context(), nil, id)
  if err != nil {
    c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"contact": contact})
}

func (ch *ContactHandler) Events(c *gin.Context) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
    return
  }
  events, err := ch.eventRepo.GetByContactID(c.Request.Context(), nil, id, 200)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"events": events})
}

// Resume clears human_required after an operator handled the escalation.
func (ch *ContactHandler) Resume(c *gin.Context) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
    return
  }
  ctx := c.Request.Context()
  contact, err := ch.contactRepo.GetByID(ctx, nil, id)
  if err != nil {
    c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
    return
  }
  operator := c.GetString("operator")
  if rErr := ch.escalationService.Resume(ctx, nil, contact, operator, uuid.New()); rErr != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume contact"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"contact": contact})
}

// SetDND force-sets do-not-disturb from the control plane.
func (ch *ContactHandler) SetDND(c *gin.Context) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
    return
  }
  ctx := c.Request.Context()
  contact, err := ch.contactRepo.GetByID(ctx, nil, id)
  if err != nil {
    c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
    return
  }
  if dErr := ch.consentService.ForceDND(ctx, nil, contact, "operator", uuid.New()); dErr != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set dnd"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"contact": contact})
}
