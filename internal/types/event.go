package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event types. The event log is append-only and is the sole source of truth
// for KPIs and for reconstructing any pipeline decision.
const (
	EventInboundMessage        = "INBOUND_MESSAGE"
	EventOutboundMessage       = "OUTBOUND_MESSAGE"
	EventIntentClassified      = "INTENT_CLASSIFIED"
	EventStageChanged          = "STAGE_CHANGED"
	EventConsentChanged        = "CONSENT_CHANGED"
	EventCCBGenerated          = "CCB_GENERATED"
	EventEscalationTriggered   = "ESCALATION_TRIGGERED"
	EventSendBlocked           = "SEND_BLOCKED"
	EventValidationFailed      = "VALIDATION_FAILED"
	EventCircuitBreakerTripped = "CIRCUIT_BREAKER_TRIPPED"
	EventDNDSet                = "DND_SET"
	EventHumanTakeover         = "HUMAN_TAKEOVER"
	EventFollowupQueued        = "FOLLOWUP_QUEUED"
	EventSimilarityFlagged     = "SIMILARITY_FLAGGED"
)

type Event struct {
	ID						uuid.UUID			 `gorm:"type:uuid;primaryKey" json:"id"`
	ContactID			*uuid.UUID		 `gorm:"type:uuid;index" json:"contact_id,omitempty"`
	Contact				*Contact			 `gorm:"constraint:OnDelete:CASCADE;foreignKey:ContactID;references:ID" json:"contact,omitempty"`
	Type					string				 `gorm:"not null;index" json:"type"`
	Payload				datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	CorrelationID	uuid.UUID			 `gorm:"type:uuid;index" json:"correlation_id"`
	CreatedAt			time.Time			 `gorm:"not null;index" json:"created_at"`
}

func (Event) TableName() string { return "event" }
