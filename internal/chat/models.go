package chat

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Conversation struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"session_id"`
	Title     string            `gorm:"type:varchar(200);not null;default:''" json:"title"`
	LeadID    *uint64           `gorm:"index" json:"lead_id,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.Metadata == nil {
		c.Metadata = datatypes.JSONMap{}
	}
	return nil
}

type Message struct {
	ID             uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64            `gorm:"not null;index:idx_msg_conv_created,priority:1" json:"-"`
	Role           string            `gorm:"type:varchar(16);index;not null" json:"role"`
	Content        string            `gorm:"type:text;not null" json:"content"`
	Metadata       datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt      time.Time         `gorm:"index:idx_msg_conv_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.Metadata == nil {
		m.Metadata = datatypes.JSONMap{}
	}
	return nil
}
