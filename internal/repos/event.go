package repos

import (
  "context"
  "encoding/json"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/velora-crm/outreach-backend/internal/logger"
  "github.com/velora-crm/outreach-backend/internal/types"
)

type EventRepo interface {
  Append(ctx context.Context, tx *gorm.DB, contactID *uuid.UUID, eventType string, payload map[string]any, correlationID uuid.UUID) (*types.Event, error)
  GetByContactID(ctx context.Context, tx *gorm.DB, contactID uuid.UUID, limit int) ([]*types.Event, error)
  GetByType(ctx context.Context, tx *gorm.DB, eventType string, limit int) ([]*types.Event, error)
}

type eventRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
  repoLog := baseLog.With("repo", "EventRepo")
  return &eventRepo{db: db, log: repoLog}
}

// Append never updates or deletes; the event log is the audit trail.
func (r *eventRepo) Append(ctx context.Context, tx *gorm.DB, contactID *uuid.UUID, eventType string, payload map[string]any, correlationID uuid.UUID) (*types.Event, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if payload == nil {
    payload = map[string]any{}
  }
  raw, err := json.Marshal(payload)
  if err != nil {
    return nil, err
  }

  event := &types.Event{
    ID:            uuid.New(),
    ContactID:     contactID,
    Type:          eventType,
    Payload:       datatypes.JSON(raw),
    CorrelationID: correlationID,
  }
  if err := transaction.WithContext(ctx).Create(event).Error; err != nil {
    return nil, err
  }
  return event, nil
}

func (r *eventRepo) GetByContactID(ctx context.Context, tx *gorm.DB, contactID uuid.UUID, limit int) ([]*types.Event, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Event
  if contactID == uuid.Nil {
    return results, nil
  }
  if limit <= 0 {
    limit = 200
  }

  if err := transaction.WithContext(ctx).
    Where("contact_id = ?", contactID).
    Order("created_at DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *eventRepo) GetByType(ctx context.Context, tx *gorm.DB, eventType string, limit int) ([]*types.Event, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Event
  if eventType == "" {
    return results, nil
  }
  if limit <= 0 {
    limit = 200
  }

  if err := transaction.WithContext(ctx).
    Where("type = ?", eventType).
    Order("created_at DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
