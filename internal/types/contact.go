package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Consent states. DND is terminal: once set it is never auto-cleared.
const (
	ConsentUnknown       = "UNKNOWN"
	ConsentSoftOptinSent = "SOFT_OPTIN_SENT"
	ConsentOptedIn       = "OPTED_IN"
	ConsentDND           = "DND"
)

// Pipeline stages (conversion funnel position).
const (
	StageIntro         = "INTRO"
	StageQualifying    = "QUALIFYING"
	StageValueDelivery = "VALUE_DELIVERY"
	StageBooking       = "BOOKING"
	StageFollowUp      = "FOLLOW_UP"
	StageWon           = "WON"
	StageLost          = "LOST"
	StageDND           = "DND"
)

type Contact struct {
	ID							uuid.UUID			 `gorm:"type:uuid;primaryKey" json:"id"`
	Phone						string				 `gorm:"not null;uniqueIndex" json:"phone"`
	DisplayName			*string				 `gorm:"column:display_name" json:"display_name,omitempty"`
	ConsentStatus		string				 `gorm:"not null;default:'UNKNOWN';index" json:"consent_status"`
	PipelineStage		string				 `gorm:"not null;default:'INTRO';index" json:"pipeline_stage"`
	StageReason			string				 `gorm:"column:stage_reason" json:"stage_reason"`
	BotPaused				bool					 `gorm:"not null;default:false" json:"bot_paused"`
	HumanRequired		bool					 `gorm:"not null;default:false;index" json:"human_required"`
	RiskScore				int						 `gorm:"not null;default:0" json:"risk_score"`
	CCB							datatypes.JSON `gorm:"type:jsonb;column:ccb" json:"ccb,omitempty"`
	TurnCount				int						 `gorm:"not null;default:0" json:"turn_count"`
	LastContactedAt	*time.Time		 `gorm:"column:last_contacted_at" json:"last_contacted_at,omitempty"`
	LastInboundAt		*time.Time		 `gorm:"column:last_inbound_at" json:"last_inbound_at,omitempty"`
	CreatedAt				time.Time			 `gorm:"not null" json:"created_at"`
	UpdatedAt				time.Time			 `gorm:"not null" json:"updated_at"`
}

func (Contact) TableName() string { return "contact" }

// TerminalStage reports whether a stage never produces automated outreach.
func TerminalStage(stage string) bool {
	switch stage {
	case StageWon, StageLost, StageDND:
		return true
	}
	return false
}
