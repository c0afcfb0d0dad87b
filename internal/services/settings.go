package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	redisclient "github.com/velora-crm/outreach-backend/internal/clients/redis"
	"github.com/velora-crm/outreach-backend/internal/logger"
	apperrors "github.com/velora-crm/outreach-backend/internal/pkg/errors"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

// SettingsService is the injected configuration provider every gate reads.
// Values live in the setting table, are cached per process, and are
// invalidated across processes through the redis settings bus. Reload policy:
// a Set writes the row, refreshes the local cache, and publishes the key; a
// received bus message evicts the key so the next read hits the store.
type SettingsService interface {
	GlobalSendEnabled(ctx context.Context) bool
	AutoReplyEnabled(ctx context.Context) bool
	MaxFollowupsWithoutReply(ctx context.Context) int
	MaxCharsPerMessage(ctx context.Context) int
	LinkPolicy(ctx context.Context) string

	GetAll(ctx context.Context) (map[string]any, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(key string)
	StartInvalidation(ctx context.Context) error
}

type settingsService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.SettingRepo
	bus  redisclient.SettingsBus

	mu    sync.RWMutex
	cache map[string]json.RawMessage
}

var recognizedSettingKeys = map[string]bool{
	types.SettingGlobalSendEnabled:        true,
	types.SettingAutoReplyEnabled:         true,
	types.SettingMaxFollowupsWithoutReply: true,
	types.SettingMaxCharsPerMessage:       true,
	types.SettingLinkPolicy:               true,
}

// NewSettingsService seeds missing keys with their defaults so every gate can
// rely on a value existing. bus may be nil in single-process setups and tests.
func NewSettingsService(db *gorm.DB, baseLog *logger.Logger, repo repos.SettingRepo, bus redisclient.SettingsBus) (SettingsService, error) {
	s := &settingsService{
		db:    db,
		log:   baseLog.With("service", "SettingsService"),
		repo:  repo,
		bus:   bus,
		cache: map[string]json.RawMessage{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	defaults := map[string]any{
		types.SettingGlobalSendEnabled:        true,
		types.SettingAutoReplyEnabled:         true,
		types.SettingMaxFollowupsWithoutReply: 4,
		types.SettingMaxCharsPerMessage:       600,
		types.SettingLinkPolicy:               types.LinkPolicyNoLinksUntilEngagement,
	}
	for key, val := range defaults {
		if _, err := repo.Get(ctx, nil, key); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				return nil, err
			}
			if _, err := repo.Upsert(ctx, nil, key, val); err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

// StartInvalidation subscribes to cross-process setting changes. Safe to skip
// when no bus is configured.
func (s *settingsService) StartInvalidation(ctx context.Context) error {
	if s.bus == nil {
		return nil
	}
	return s.bus.StartForwarder(ctx, func(c redisclient.SettingChange) {
		s.log.Debug("Setting invalidated by peer", "key", c.Key)
		s.Invalidate(c.Key)
	})
}

func (s *settingsService) raw(ctx context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	setting, err := s.repo.Get(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	val := json.RawMessage(setting.Value)

	s.mu.Lock()
	s.cache[key] = val
	s.mu.Unlock()
	return val, nil
}

func (s *settingsService) boolSetting(ctx context.Context, key string, fallback bool) bool {
	raw, err := s.raw(ctx, key)
	if err != nil {
		s.log.Warn("Setting read failed, using fallback", "key", key, "fallback", fallback, "error", err)
		return fallback
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

func (s *settingsService) intSetting(ctx context.Context, key string, fallback int) int {
	raw, err := s.raw(ctx, key)
	if err != nil {
		s.log.Warn("Setting read failed, using fallback", "key", key, "fallback", fallback, "error", err)
		return fallback
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

func (s *settingsService) stringSetting(ctx context.Context, key string, fallback string) string {
	raw, err := s.raw(ctx, key)
	if err != nil {
		s.log.Warn("Setting read failed, using fallback", "key", key, "fallback", fallback, "error", err)
		return fallback
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

// GlobalSendEnabled fails closed: if the store is unreachable the send gate
// stays shut.
func (s *settingsService) GlobalSendEnabled(ctx context.Context) bool {
	return s.boolSetting(ctx, types.SettingGlobalSendEnabled, false)
}

func (s *settingsService) AutoReplyEnabled(ctx context.Context) bool {
	return s.boolSetting(ctx, types.SettingAutoReplyEnabled, false)
}

func (s *settingsService) MaxFollowupsWithoutReply(ctx context.Context) int {
	return s.intSetting(ctx, types.SettingMaxFollowupsWithoutReply, 4)
}

func (s *settingsService) MaxCharsPerMessage(ctx context.Context) int {
	return s.intSetting(ctx, types.SettingMaxCharsPerMessage, 600)
}

func (s *settingsService) LinkPolicy(ctx context.Context) string {
	return s.stringSetting(ctx, types.SettingLinkPolicy, types.LinkPolicyNoLinksUntilEngagement)
}

func (s *settingsService) GetAll(ctx context.Context) (map[string]any, error) {
	settings, err := s.repo.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(settings))
	for _, setting := range settings {
		var v any
		if err := json.Unmarshal(setting.Value, &v); err != nil {
			continue
		}
		out[setting.Key] = v
	}
	return out, nil
}

func (s *settingsService) Set(ctx context.Context, key string, value any) error {
	if !recognizedSettingKeys[key] {
		return apperrors.ErrInvalidArgument
	}
	if _, err := s.repo.Upsert(ctx, nil, key, value); err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[key] = raw
	s.mu.Unlock()

	if s.bus != nil {
		if err := s.bus.Publish(ctx, redisclient.SettingChange{Key: key, ChangedAt: time.Now().UTC()}); err != nil {
			s.log.Warn("Setting change publish failed", "key", key, "error", err)
		}
	}
	return nil
}

func (s *settingsService) Invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}
