package types

import (
	"time"
	"github.com/google/uuid"
)

const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// ConversationTurn is append-only. Seq breaks ordering ties between turns
// created within the same timestamp.
type ConversationTurn struct {
	ID						uuid.UUID	 `gorm:"type:uuid;primaryKey" json:"id"`
	Seq						int64			 `gorm:"autoIncrement;index" json:"seq"`
	ContactID			uuid.UUID	 `gorm:"type:uuid;not null;index" json:"contact_id"`
	Contact				*Contact	 `gorm:"constraint:OnDelete:CASCADE;foreignKey:ContactID;references:ID" json:"contact,omitempty"`
	Direction			string		 `gorm:"not null;index" json:"direction"`
	Text					string		 `gorm:"not null" json:"text"`
	CorrelationID	uuid.UUID	 `gorm:"type:uuid;index" json:"correlation_id"`
	CreatedAt			time.Time	 `gorm:"not null;index" json:"created_at"`
}

func (ConversationTurn) TableName() string { return "conversation_turn" }
