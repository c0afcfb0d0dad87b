package types

import (
	"time"
	"gorm.io/datatypes"
)

// Recognized setting keys.
const (
	SettingGlobalSendEnabled        = "global_send_enabled"
	SettingAutoReplyEnabled         = "auto_reply_enabled"
	SettingMaxFollowupsWithoutReply = "max_followups_without_reply"
	SettingMaxCharsPerMessage       = "max_chars_per_message"
	SettingLinkPolicy               = "link_policy"
)

// link_policy values.
const (
	LinkPolicyNoLinksUntilEngagement = "no_links_until_engagement"
	LinkPolicyAlwaysAllowed          = "always_allowed"
)

type Setting struct {
	Key				string				 `gorm:"primaryKey" json:"key"`
	Value			datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`
	UpdatedAt	time.Time			 `gorm:"not null" json:"updated_at"`
}

func (Setting) TableName() string { return "setting" }
