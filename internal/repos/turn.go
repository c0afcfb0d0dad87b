package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/velora-crm/outreach-backend/internal/logger"
  "github.com/velora-crm/outreach-backend/internal/types"
)

type TurnRepo interface {
  Append(ctx context.Context, tx *gorm.DB, turns []*types.ConversationTurn) ([]*types.ConversationTurn, error)
  GetRecent(ctx context.Context, tx *gorm.DB, contactID uuid.UUID, limit int) ([]*types.ConversationTurn, error)
  GetRecentOutgoing(ctx context.Context, tx *gorm.DB, contactID uuid.UUID, limit int) ([]*types.ConversationTurn, error)
}

type turnRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewTurnRepo(db *gorm.DB, baseLog *logger.Logger) TurnRepo {
  repoLog := baseLog.With("repo", "TurnRepo")
  return &turnRepo{db: db, log: repoLog}
}

func (r *turnRepo) Append(ctx context.Context, tx *gorm.DB, turns []*types.ConversationTurn) ([]*types.ConversationTurn, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(turns) == 0 {
    return []*types.ConversationTurn{}, nil
  }
  for _, turn := range turns {
    if turn.ID == uuid.Nil {
      turn.ID = uuid.New()
    }
  }

  if err := transaction.WithContext(ctx).Create(&turns).Error; err != nil {
    return nil, err
  }
  return turns, nil
}

// GetRecent returns up to limit turns, newest first. Ordering is by timestamp
// with the insertion sequence breaking ties.
func (r *turnRepo) GetRecent(ctx context.Context, tx *gorm.DB, contactID uuid.UUID, limit int) ([]*types.ConversationTurn, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.ConversationTurn
  if contactID == uuid.Nil {
    return results, nil
  }
  if limit <= 0 {
    limit = 50
  }

  if err := transaction.WithContext(ctx).
    Where("contact_id = ?", contactID).
    Order("created_at DESC").
    Order("seq DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *turnRepo) GetRecentOutgoing(ctx context.Context, tx *gorm.DB, contactID uuid.UUID, limit int) ([]*types.ConversationTurn, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.ConversationTurn
  if contactID == uuid.Nil {
    return results, nil
  }
  if limit <= 0 {
    limit = 50
  }

  if err := transaction.WithContext(ctx).
    Where("contact_id = ? AND direction = ?", contactID, types.DirectionOutgoing).
    Order("created_at DESC").
    Order("seq DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
