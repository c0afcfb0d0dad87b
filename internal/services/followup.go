package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/repos"
	"github.com/velora-crm/outreach-backend/internal/types"
	"github.com/velora-crm/outreach-backend/internal/utils"
)

const (
	nudgeCeiling      = 3
	followupTurnScan  = 10
	sweepConcurrency  = 4
	defaultNudgeDelay = 20 * time.Minute
	defaultReminder   = 48 * time.Hour
)

// FollowupService nudges contacts who went quiet after our last message.
// The sweep recomputes everything from conversation history, so a missed or
// doubled tick never double-sends: state lives in the turns, not the ticker.
type FollowupService interface {
	Run(ctx context.Context)
	SweepOnce(ctx context.Context) error
}

type followupService struct {
	db       *gorm.DB
	log      *logger.Logger
	contacts repos.ContactRepo
	turns    repos.TurnRepo
	events   repos.EventRepo
	ccb      CCBService
	outbound OutboundService
	settings SettingsService
	policy   Policy
	interval time.Duration
	nudgeGap time.Duration
	reminder time.Duration
	now      func() time.Time
}

func NewFollowupService(db *gorm.DB, baseLog *logger.Logger, contacts repos.ContactRepo, turns repos.TurnRepo, events repos.EventRepo, ccb CCBService, outbound OutboundService, settings SettingsService, policy Policy) FollowupService {
	log := baseLog.With("service", "FollowupService")
	return &followupService{
		db:       db,
		log:      log,
		contacts: contacts,
		turns:    turns,
		events:   events,
		ccb:      ccb,
		outbound: outbound,
		settings: settings,
		policy:   policy,
		interval: time.Duration(utils.GetEnvAsInt("FOLLOWUP_SWEEP_INTERVAL_SECONDS", 60, log)) * time.Second,
		nudgeGap: time.Duration(utils.GetEnvAsInt("FOLLOWUP_NUDGE_MINUTES", int(defaultNudgeDelay/time.Minute), log)) * time.Minute,
		reminder: time.Duration(utils.GetEnvAsInt("FOLLOWUP_REMINDER_HOURS", int(defaultReminder/time.Hour), log)) * time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *followupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("Follow-up sweep started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Follow-up sweep stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.log.Error("Follow-up sweep failed", "error", err)
			}
		}
	}
}

func (s *followupService) SweepOnce(ctx context.Context) error {
	candidates, err := s.contacts.ListAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("list contacts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, contact := range candidates {
		contact := contact
		if !s.eligible(contact) {
			continue
		}
		g.Go(func() error {
			if err := s.sweepContact(gctx, contact); err != nil {
				// One bad contact must not starve the rest of the sweep.
				s.log.Error("Follow-up check failed", "contact_id", contact.ID.String(), "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *followupService) eligible(contact *types.Contact) bool {
	if contact.ConsentStatus == types.ConsentDND {
		return false
	}
	if contact.BotPaused || contact.HumanRequired {
		return false
	}
	if types.TerminalStage(contact.PipelineStage) {
		return false
	}
	return true
}

func (s *followupService) sweepContact(ctx context.Context, contact *types.Contact) error {
	recent, err := s.turns.GetRecent(ctx, nil, contact.ID, followupTurnScan)
	if err != nil {
		return err
	}
	if len(recent) == 0 || recent[0].Direction == types.DirectionIncoming {
		// Contact spoke last; replying is the pipeline's job, not ours.
		return nil
	}

	// Trailing run of our own messages, newest first.
	run := 0
	for _, turn := range recent {
		if turn.Direction != types.DirectionOutgoing {
			break
		}
		run++
	}

	// Operator ceiling first, then the CCB strategy can only tighten it.
	maxRun := s.settings.MaxFollowupsWithoutReply(ctx)
	if maxRun <= 0 || maxRun > nudgeCeiling+1 {
		maxRun = nudgeCeiling + 1
	}
	timing := ""
	if bundle := s.ccb.Current(contact); bundle != nil {
		timing = bundle.Strategy.Followup.Timing
		if bundle.Strategy.Followup.MaxFollowups > 0 && bundle.Strategy.Followup.MaxFollowups < maxRun {
			maxRun = bundle.Strategy.Followup.MaxFollowups
		}
	}
	if timing == "none" || run > maxRun {
		return nil
	}

	elapsed := s.now().Sub(recent[0].CreatedAt)
	var archetype string
	switch {
	case run <= nudgeCeiling:
		if elapsed < s.nudgeDelay(timing, run) {
			return nil
		}
		archetype = fmt.Sprintf("nudge_%d", run)
	default:
		if elapsed < s.reminder {
			return nil
		}
		archetype = "reminder"
	}

	text := s.pickTemplate(archetype, contact)
	if text == "" {
		s.log.Warn("No follow-up template configured", "archetype", archetype)
		return nil
	}

	correlationID := uuid.New()
	if _, err := s.events.Append(ctx, nil, &contact.ID, types.EventFollowupQueued, map[string]any{
		"archetype":       archetype,
		"elapsed_seconds": int(elapsed.Seconds()),
	}, correlationID); err != nil {
		return err
	}

	outcome, err := s.outbound.Send(ctx, nil, contact, text, correlationID)
	if err != nil {
		return err
	}
	if outcome.Blocked {
		s.log.Info("Follow-up blocked by outbound gate", "contact_id", contact.ID.String(), "reason", outcome.Reason)
		return nil
	}
	s.log.Info("Follow-up sent", "contact_id", contact.ID.String(), "archetype", archetype)
	return nil
}

// nudgeDelay stretches or compresses the base gap with the strategy timing.
// Each successive nudge waits progressively longer.
func (s *followupService) nudgeDelay(timing string, run int) time.Duration {
	base := s.nudgeGap * time.Duration(run)
	switch timing {
	case "aggressive":
		return base / 2
	case "gentle":
		return base * 2
	default:
		return base
	}
}

// pickTemplate selects a variant deterministically per contact so retries for
// the same contact and archetype produce the same text.
func (s *followupService) pickTemplate(archetype string, contact *types.Contact) string {
	variants := s.policy.FollowupTemplates[archetype]
	if len(variants) == 0 {
		return ""
	}
	h := fnv.New32a()
	h.Write([]byte(contact.ID.String()))
	return variants[int(h.Sum32())%len(variants)]
}
