package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/clarity-chat/internal/common"
	"gorm.io/datatypes"
)

const maxTitleLen = 200

var ErrInvalidTitle = errors.New("chat: title must be 1-200 characters")

// Service owns session lifecycle outside of chat turns.
type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateSession(ctx context.Context, title, userID string, metadata map[string]any) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleLen {
		return nil, ErrInvalidTitle
	}

	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	meta := datatypes.JSONMap{}
	for k, v := range metadata {
		meta[k] = v
	}
	if userID != "" {
		meta["user_id"] = userID
	}

	c := &Conversation{SessionID: sid, Title: title, Metadata: meta}
	if err := s.repo.CreateConversation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*Conversation, error) {
	return s.repo.GetConversation(ctx, sessionID)
}

func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	c, err := s.repo.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, c.ID)
}

func (s *Service) RenameSession(ctx context.Context, sessionID, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLen {
		return nil, ErrInvalidTitle
	}
	return s.repo.UpdateTitle(ctx, sessionID, title)
}

func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.repo.DeleteConversation(ctx, sessionID)
}
