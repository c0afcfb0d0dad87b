package repos

import (
  "context"
  "errors"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/velora-crm/outreach-backend/internal/logger"
  apperrors "github.com/velora-crm/outreach-backend/internal/pkg/errors"
  "github.com/velora-crm/outreach-backend/internal/types"
)

type ContactRepo interface {
  Create(ctx context.Context, tx *gorm.DB, contacts []*types.Contact) ([]*types.Contact, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Contact, error)
  GetByPhone(ctx context.Context, tx *gorm.DB, phone string) (*types.Contact, error)
  GetOrCreateByPhone(ctx context.Context, tx *gorm.DB, phone string) (*types.Contact, error)
  ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Contact, error)
  ListByStage(ctx context.Context, tx *gorm.DB, stage string) ([]*types.Contact, error)
  ListByConsent(ctx context.Context, tx *gorm.DB, consent string) ([]*types.Contact, error)
  ListHumanRequired(ctx context.Context, tx *gorm.DB) ([]*types.Contact, error)
  SetStage(ctx context.Context, tx *gorm.DB, id uuid.UUID, stage, reason string) error
  SetConsent(ctx context.Context, tx *gorm.DB, id uuid.UUID, consent string) error
  SetBotPaused(ctx context.Context, tx *gorm.DB, id uuid.UUID, paused bool) error
  SetHumanRequired(ctx context.Context, tx *gorm.DB, id uuid.UUID, required bool) error
  RaiseRiskScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, score int) error
  SetCCB(ctx context.Context, tx *gorm.DB, id uuid.UUID, ccb []byte) error
  IncrementTurnCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int, error)
  TouchLastContacted(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
  TouchLastInbound(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
}

type contactRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewContactRepo(db *gorm.DB, baseLog *logger.Logger) ContactRepo {
  repoLog := baseLog.With("repo", "ContactRepo")
  return &contactRepo{db: db, log: repoLog}
}

func (r *contactRepo) Create(ctx context.Context, tx *gorm.DB, contacts []*types.Contact) ([]*types.Contact, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(contacts) == 0 {
    return []*types.Contact{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&contacts).Error; err != nil {
    return nil, err
  }
  return contacts, nil
}

func (r *contactRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Contact, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var result types.Contact
  if err := transaction.WithContext(ctx).
    Where("id = ?", id).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperrors.ErrNotFound
    }
    return nil, err
  }
  return &result, nil
}

func (r *contactRepo) GetByPhone(ctx context.Context, tx *gorm.DB, phone string) (*types.Contact, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var result types.Contact
  if err := transaction.WithContext(ctx).
    Where("phone = ?", phone).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperrors.ErrNotFound
    }
    return nil, err
  }
  return &result, nil
}

func (r *contactRepo) GetOrCreateByPhone(ctx context.Context, tx *gorm.DB, phone string) (*types.Contact, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  contact := &types.Contact{
    ID:            uuid.New(),
    Phone:         phone,
    ConsentStatus: types.ConsentUnknown,
    PipelineStage: types.StageIntro,
  }
  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
    Create(contact).Error; err != nil {
    return nil, err
  }
  return r.GetByPhone(ctx, tx, phone)
}

func (r *contactRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Contact, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Contact
  if err := transaction.WithContext(ctx).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *contactRepo) ListByStage(ctx context.Context, tx *gorm.DB, stage string) ([]*types.Contact, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Contact
  if stage == "" {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("pipeline_stage = ?", stage).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *contactRepo) ListByConsent(ctx context.Context, tx *gorm.DB, consent string) ([]*types.Contact, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Contact
  if consent == "" {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("consent_status = ?", consent).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *contactRepo) ListHumanRequired(ctx context.Context, tx *gorm.DB) ([]*types.Contact, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Contact
  if err := transaction.WithContext(ctx).
    Where("human_required = ?", true).
    Order("updated_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *contactRepo) SetStage(ctx context.Context, tx *gorm.DB, id uuid.UUID, stage, reason string) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  return transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Updates(map[string]any{"pipeline_stage": stage, "stage_reason": reason}).Error
}

func (r *contactRepo) SetConsent(ctx context.Context, tx *gorm.DB, id uuid.UUID, consent string) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  return transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Update("consent_status", consent).Error
}

func (r *contactRepo) SetBotPaused(ctx context.Context, tx *gorm.DB, id uuid.UUID, paused bool) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  return transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Update("bot_paused", paused).Error
}

func (r *contactRepo) SetHumanRequired(ctx context.Context, tx *gorm.DB, id uuid.UUID, required bool) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  return transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Update("human_required", required).Error
}

// RaiseRiskScore only ever moves the score upward; a lower value is ignored.
func (r *contactRepo) RaiseRiskScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, score int) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if score > 100 {
    score = 100
  }
  return transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ? AND risk_score < ?", id, score).
    Update("risk_score", score).Error
}

func (r *contactRepo) SetCCB(ctx context.Context, tx *gorm.DB, id uuid.UUID, ccb []byte) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  return transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Update("ccb", ccb).Error
}

func (r *contactRepo) IncrementTurnCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if err := transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Update("turn_count", gorm.Expr("turn_count + 1")).Error; err != nil {
    return 0, err
  }

  var count int
  if err := transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Pluck("turn_count", &count).Error; err != nil {
    return 0, err
  }
  return count, nil
}

func (r *contactRepo) TouchLastContacted(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  return transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Update("last_contacted_at", at).Error
}

func (r *contactRepo) TouchLastInbound(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  return transaction.WithContext(ctx).
    Model(&types.Contact{}).
    Where("id = ?", id).
    Update("last_inbound_at", at).Error
}
