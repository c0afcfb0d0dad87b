package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	redisclient "github.com/velora-crm/outreach-backend/internal/clients/redis"
	"github.com/velora-crm/outreach-backend/internal/clients/twilio"
	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&types.Contact{},
		&types.ConversationTurn{},
		&types.Event{},
		&types.Setting{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeLLM struct {
	jsonFn func(schemaName string) (map[string]any, error)
	textFn func() (string, error)
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if f.jsonFn == nil {
		return nil, fmt.Errorf("llm unavailable")
	}
	return f.jsonFn(schemaName)
}

func (f *fakeLLM) GenerateText(ctx context.Context, system string, user string) (string, error) {
	if f.textFn == nil {
		return "", fmt.Errorf("llm unavailable")
	}
	return f.textFn()
}

type sentMessage struct {
	to   string
	body string
}

type fakeTransport struct {
	sent    []sentMessage
	failErr error
}

func (f *fakeTransport) SendText(ctx context.Context, to string, body string) (*twilio.Message, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return &twilio.Message{SID: fmt.Sprintf("SM%03d", len(f.sent)), To: to, Body: body}, nil
}

type noopBus struct{}

func (noopBus) Publish(ctx context.Context, change redisclient.SettingChange) error { return nil }
func (noopBus) StartForwarder(ctx context.Context, onChange func(c redisclient.SettingChange)) error {
	return nil
}
func (noopBus) Close() error { return nil }

// stack bundles one fully wired decision layer over an in-memory store.
type stack struct {
	db         *gorm.DB
	contacts   repos.ContactRepo
	turns      repos.TurnRepo
	events     repos.EventRepo
	settings   SettingsService
	stages     StageService
	intents    IntentService
	consent    ConsentService
	escalation EscalationService
	validator  ValidatorService
	breaker    BreakerService
	ccb        CCBService
	outbound   OutboundService
	pipeline   PipelineService
	followup   FollowupService
	transport  *fakeTransport
	llm        *fakeLLM
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	policy := DefaultPolicy()

	contacts := repos.NewContactRepo(db, log)
	turns := repos.NewTurnRepo(db, log)
	events := repos.NewEventRepo(db, log)
	settingRepo := repos.NewSettingRepo(db, log)

	settings, err := NewSettingsService(db, log, settingRepo, noopBus{})
	if err != nil {
		t.Fatalf("init settings: %v", err)
	}

	llm := &fakeLLM{}
	transport := &fakeTransport{}

	stages := NewStageService(db, log, contacts, events)
	intents := NewIntentService(log, llm, policy)
	consent := NewConsentService(db, log, contacts, events, stages, policy)
	escalation := NewEscalationService(db, log, contacts, events, policy)
	validator := NewValidatorService(log, settings, policy)
	breaker := NewBreakerService(log, settings, events, 3)
	ccb := NewCCBService(db, log, contacts, turns, events, stages, llm)
	outbound := NewOutboundService(db, log, contacts, turns, events, breaker, validator, transport)
	pipeline := NewPipelineService(db, log, contacts, turns, events, consent, escalation, intents, stages, ccb, settings, outbound, breaker, transport, llm)
	followup := NewFollowupService(db, log, contacts, turns, events, ccb, outbound, settings, policy)

	return &stack{
		db:         db,
		contacts:   contacts,
		turns:      turns,
		events:     events,
		settings:   settings,
		stages:     stages,
		intents:    intents,
		consent:    consent,
		escalation: escalation,
		validator:  validator,
		breaker:    breaker,
		ccb:        ccb,
		outbound:   outbound,
		pipeline:   pipeline,
		followup:   followup,
		transport:  transport,
		llm:        llm,
	}
}

func (s *stack) mustContact(t *testing.T, phone string) *types.Contact {
	t.Helper()
	contact, err := s.contacts.GetOrCreateByPhone(context.Background(), nil, phone)
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	return contact
}

func (s *stack) eventTypes(t *testing.T, contactID uuid.UUID) []string {
	t.Helper()
	evts, err := s.events.GetByContactID(context.Background(), nil, contactID, 100)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

func hasEvent(eventTypes []string, want string) bool {
	for _, e := range eventTypes {
		if e == want {
			return true
		}
	}
	return false
}
