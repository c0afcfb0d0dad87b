package repos

import (
  "context"
  "encoding/json"
  "errors"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/velora-crm/outreach-backend/internal/logger"
  apperrors "github.com/velora-crm/outreach-backend/internal/pkg/errors"
  "github.com/velora-crm/outreach-backend/internal/types"
)

type SettingRepo interface {
  Get(ctx context.Context, tx *gorm.DB, key string) (*types.Setting, error)
  GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Setting, error)
  Upsert(ctx context.Context, tx *gorm.DB, key string, value any) (*types.Setting, error)
}

type settingRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewSettingRepo(db *gorm.DB, baseLog *logger.Logger) SettingRepo {
  repoLog := baseLog.With("repo", "SettingRepo")
  return &settingRepo{db: db, log: repoLog}
}

func (r *settingRepo) Get(ctx context.Context, tx *gorm.DB, key string) (*types.Setting, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var result types.Setting
  if err := transaction.WithContext(ctx).
    Where("key = ?", key).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperrors.ErrNotFound
    }
    return nil, err
  }
  return &result, nil
}

func (r *settingRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Setting, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Setting
  if err := transaction.WithContext(ctx).
    Order("key ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *settingRepo) Upsert(ctx context.Context, tx *gorm.DB, key string, value any) (*types.Setting, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  raw, err := json.Marshal(value)
  if err != nil {
    return nil, err
  }

  setting := &types.Setting{Key: key, Value: datatypes.JSON(raw)}
  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "key"}},
      DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
    }).
    Create(setting).Error; err != nil {
    return nil, err
  }
  return setting, nil
}
