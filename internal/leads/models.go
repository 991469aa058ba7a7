package leads

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Lead struct {
	ID          uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName   string            `gorm:"type:varchar(100);not null" json:"first_name"`
	Email       string            `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone       string            `gorm:"type:varchar(50)" json:"phone"`
	Bucket      string            `gorm:"type:varchar(50)" json:"bucket"`
	MeetingType string            `gorm:"type:varchar(50)" json:"meeting_type"`
	BookingURL  string            `gorm:"type:varchar(500)" json:"booking_url"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CRMSyncedAt *time.Time        `json:"crm_synced_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

func (l *Lead) BeforeCreate(*gorm.DB) error {
	if l.Metadata == nil {
		l.Metadata = datatypes.JSONMap{}
	}
	return nil
}

// ConsentEvent is an append-only audit record of a contact disclosure.
type ConsentEvent struct {
	ID                uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	LeadID            uint64            `gorm:"index;not null" json:"lead_id"`
	ConversationID    *uint64           `gorm:"index" json:"conversation_id,omitempty"`
	EventType         string            `gorm:"type:varchar(50);not null" json:"event_type"`
	IPAddress         string            `gorm:"type:varchar(50)" json:"ip_address"`
	UserAgent         string            `gorm:"type:varchar(500)" json:"user_agent"`
	PageURL           string            `gorm:"type:varchar(1000)" json:"page_url"`
	DisclosureText    string            `gorm:"type:text" json:"disclosure_text"`
	DisclosureVersion string            `gorm:"type:varchar(50)" json:"disclosure_version"`
	Metadata          datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt         time.Time         `json:"created_at"`
}

func (ConsentEvent) TableName() string { return "consent_events" }

func (e *ConsentEvent) BeforeCreate(*gorm.DB) error {
	if e.Metadata == nil {
		e.Metadata = datatypes.JSONMap{}
	}
	return nil
}

// ConsentEvents are never updated.
func (e *ConsentEvent) BeforeUpdate(*gorm.DB) error {
	return ErrConsentImmutable
}
