package leads

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/ai"
	"github.com/suPer8Hu/clarity-chat/internal/chat"
	"github.com/suPer8Hu/clarity-chat/internal/metrics"
	"github.com/suPer8Hu/clarity-chat/internal/routing"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventLeadCaptured = "lead.captured"

	DisclosureText = "By continuing, you agree that Fiat Wealth Management may contact you by phone, " +
		"email, or text regarding your request. Message & data rates may apply. " +
		"Reply STOP to opt out."
	DisclosureVersion = "v1.0"

	consentLeadCapture = "lead_capture"
	previewChars       = 500
)

var (
	ErrLeadNotFound     = errors.New("leads: lead not found")
	ErrConsentImmutable = errors.New("leads: consent events cannot be modified")
)

type CaptureRequest struct {
	SessionID string `json:"session_id" validate:"required,max=64"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"required,phone"`
	PageURL   string `json:"page_url" validate:"omitempty,max=1000"`
	Consent   bool   `json:"consent" validate:"required"`
	IPAddress string `json:"ip_address" validate:"omitempty,max=50"`
	UserAgent string `json:"user_agent" validate:"omitempty,max=500"`
}

type CaptureResult struct {
	LeadID      uint64 `json:"lead_id"`
	Bucket      string `json:"bucket"`
	MeetingType string `json:"meeting_type"`
	BookingURL  string `json:"booking_url"`
}

// CapturedEvent is published once a lead capture commits.
type CapturedEvent struct {
	Type        string    `json:"type"`
	LeadID      uint64    `json:"lead_id"`
	SessionID   string    `json:"session_id"`
	FirstName   string    `json:"first_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Bucket      string    `json:"bucket"`
	MeetingType string    `json:"meeting_type"`
	BookingURL  string    `json:"booking_url"`
	CapturedAt  time.Time `json:"captured_at"`
}

type Publisher interface {
	PublishLeadCaptured(ctx context.Context, ev CapturedEvent) error
}

type Service struct {
	db        *gorm.DB
	publisher Publisher
	log       zerolog.Logger
}

// NewService wires lead capture. publisher may be nil when no broker is
// configured.
func NewService(db *gorm.DB, publisher Publisher, log zerolog.Logger) *Service {
	return &Service{db: db, publisher: publisher, log: log}
}

func normalize(req CaptureRequest) CaptureRequest {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.PageURL = strings.TrimSpace(req.PageURL)
	return req
}

// Capture routes the conversation, upserts the lead by email, links it to
// the conversation and records the consent event in one transaction.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	req = normalize(req)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var (
		lead Lead
		conv chat.Conversation
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", req.SessionID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chat.ErrSessionNotFound
			}
			return err
		}

		transcript, err := transcriptOf(tx, conv.ID)
		if err != nil {
			return err
		}
		route := routing.Classify(transcript)
		preview := truncate(transcript, previewChars)

		err = tx.Where("email = ?", req.Email).First(&lead).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			lead = Lead{
				FirstName:   req.FirstName,
				Email:       req.Email,
				Phone:       req.Phone,
				Bucket:      route.Bucket,
				MeetingType: route.MeetingType,
				BookingURL:  route.BookingURL,
				Metadata: datatypes.JSONMap{
					"first_conversation_id": conv.ID,
					"transcript_preview":    preview,
				},
			}
			if err := tx.Create(&lead).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			meta := datatypes.JSONMap{}
			for k, v := range lead.Metadata {
				meta[k] = v
			}
			meta["last_conversation_id"] = conv.ID
			meta["transcript_preview"] = preview

			lead.FirstName = req.FirstName
			lead.Phone = req.Phone
			lead.Bucket = route.Bucket
			lead.MeetingType = route.MeetingType
			lead.BookingURL = route.BookingURL
			lead.Metadata = meta
			if err := tx.Save(&lead).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&chat.Conversation{}).
			Where("id = ?", conv.ID).
			Update("lead_id", lead.ID).Error; err != nil {
			return err
		}

		convID := conv.ID
		return tx.Create(&ConsentEvent{
			LeadID:            lead.ID,
			ConversationID:    &convID,
			EventType:         consentLeadCapture,
			IPAddress:         req.IPAddress,
			UserAgent:         req.UserAgent,
			PageURL:           req.PageURL,
			DisclosureText:    DisclosureText,
			DisclosureVersion: DisclosureVersion,
			Metadata: datatypes.JSONMap{
				"session_id":     req.SessionID,
				"capture_method": "in_chat_form",
			},
		}).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.LeadsCaptured.WithLabelValues(lead.Bucket).Inc()
	s.log.Info().
		Uint64("lead_id", lead.ID).
		Str("bucket", lead.Bucket).
		Str("meeting_type", lead.MeetingType).
		Msg("lead captured")

	s.publish(ctx, req.SessionID, &lead)

	return &CaptureResult{
		LeadID:      lead.ID,
		Bucket:      lead.Bucket,
		MeetingType: lead.MeetingType,
		BookingURL:  lead.BookingURL,
	}, nil
}

func (s *Service) publish(ctx context.Context, sessionID string, lead *Lead) {
	if s.publisher == nil {
		return
	}
	ev := CapturedEvent{
		Type:        EventLeadCaptured,
		LeadID:      lead.ID,
		SessionID:   sessionID,
		FirstName:   lead.FirstName,
		Email:       lead.Email,
		Phone:       lead.Phone,
		Bucket:      lead.Bucket,
		MeetingType: lead.MeetingType,
		BookingURL:  lead.BookingURL,
		CapturedAt:  time.Now().UTC(),
	}
	if err := s.publisher.PublishLeadCaptured(ctx, ev); err != nil {
		s.log.Warn().Err(err).Uint64("lead_id", lead.ID).Msg("publish lead event failed")
	}
}

func transcriptOf(tx *gorm.DB, conversationID uint64) (string, error) {
	var msgs []chat.Message
	if err := tx.
		Where("conversation_id = ? AND role IN ?", conversationID, []string{ai.RoleUser, ai.RoleAssistant}).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return "", err
	}
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Content
	}
	return strings.Join(parts, " "), nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func (s *Service) Get(ctx context.Context, id uint64) (*Lead, error) {
	var l Lead
	if err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return &l, nil
}

// BookingURL returns the lead's stored link, or the general call link.
func (s *Service) BookingURL(ctx context.Context, leadID uint64) string {
	l, err := s.Get(ctx, leadID)
	if err != nil {
		if !errors.Is(err, ErrLeadNotFound) {
			s.log.Warn().Err(err).Uint64("lead_id", leadID).Msg("booking url lookup failed")
		}
		return routing.DefaultBookingURL
	}
	if l.BookingURL == "" {
		return routing.DefaultBookingURL
	}
	return l.BookingURL
}

func (s *Service) MarkSynced(ctx context.Context, leadID uint64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&Lead{}).
		Where("id = ?", leadID).
		Update("crm_synced_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func (s *Service) ConsentEvents(ctx context.Context, leadID uint64) ([]ConsentEvent, error) {
	var out []ConsentEvent
	err := s.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
