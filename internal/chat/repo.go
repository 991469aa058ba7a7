package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/clarity-chat/internal/ai"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("chat: session not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Begin opens a transaction; the returned Repo writes through it until
// Commit or Rollback.
func (r *Repo) Begin(ctx context.Context) *Repo {
	return &Repo{db: r.db.WithContext(ctx).Begin()}
}

func (r *Repo) Commit() error   { return r.db.Commit().Error }
func (r *Repo) Rollback() error { return r.db.Rollback().Error }

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetOrCreateConversation returns the conversation for sessionID, creating
// it on first use. A concurrent create for the same session resolves to the
// row that won.
func (r *Repo) GetOrCreateConversation(ctx context.Context, sessionID string, metadata map[string]any) (*Conversation, bool, error) {
	c, err := r.GetConversation(ctx, sessionID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, err
	}

	c = &Conversation{SessionID: sessionID, Metadata: datatypes.JSONMap(metadata)}
	createErr := r.CreateConversation(ctx, c)
	if createErr == nil {
		return c, true, nil
	}

	existing, getErr := r.GetConversation(ctx, sessionID)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, ErrSessionNotFound) {
		return nil, false, createErr
	}
	return nil, false, getErr
}

func (r *Repo) UpdateConversationMetadata(ctx context.Context, id uint64, metadata datatypes.JSONMap) error {
	return r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", id).
		Update("metadata", metadata).Error
}

func (r *Repo) TouchConversation(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

func (r *Repo) UpdateTitle(ctx context.Context, sessionID, title string) (*Conversation, error) {
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{"title": title, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionNotFound
	}
	return r.GetConversation(ctx, sessionID)
}

// DeleteConversation removes the conversation and all of its messages.
func (r *Repo) DeleteConversation(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Conversation
		if err := tx.Where("session_id = ?", sessionID).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if err := tx.Where("conversation_id = ?", c.ID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&c).Error
	})
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) CountAssistantMessages(ctx context.Context, conversationID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("conversation_id = ? AND role = ?", conversationID, ai.RoleAssistant).
		Count(&n).Error
	return n, err
}

// ListRecentMessagesDesc returns the newest user/assistant messages first.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, conversationID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 6
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND role IN ?", conversationID, []string{ai.RoleUser, ai.RoleAssistant}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListMessages returns the whole conversation oldest first.
func (r *Repo) ListMessages(ctx context.Context, conversationID uint64) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
