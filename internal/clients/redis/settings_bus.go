package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/velora-crm/outreach-backend/internal/logger"
)

// SettingChange is broadcast whenever the control plane mutates a runtime
// setting, so every process re-reads the row instead of serving a stale cache.
type SettingChange struct {
	Key			string		`json:"key"`
	ChangedAt	time.Time	`json:"changed_at"`
}

type SettingsBus interface {
	Publish(ctx context.Context, change SettingChange) error
	StartForwarder(ctx context.Context, onChange func(c SettingChange)) error
	Close() error
}

type settingsBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewSettingsBus(log *logger.Logger) (SettingsBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_SETTINGS_CHANNEL"))
	if ch == "" {
		ch = "settings"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &settingsBus{
		log:     log.With("service", "RedisSettingsBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *settingsBus) Publish(ctx context.Context, change SettingChange) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("settings bus not initialized")
	}
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *settingsBus) StartForwarder(ctx context.Context, onChange func(c SettingChange)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("settings bus not initialized")
	}
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change SettingChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					b.log.Warn("Dropping malformed settings-change message", "error", err)
					continue
				}
				onChange(change)
			}
		}
	}()
	return nil
}

func (b *settingsBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
