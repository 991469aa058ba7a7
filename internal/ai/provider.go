package ai

import (
	"context"
	"errors"

	"github.com/suPer8Hu/clarity-chat/internal/retrieval"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrUnavailable marks a stage that cannot serve the request; the chain moves on.
	ErrUnavailable = errors.New("ai: stage unavailable")
	// ErrGenerationExhausted is returned when no stage could produce a reply.
	ErrGenerationExhausted = errors.New("ai: all generation stages failed")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a stage may use. Stages pick what they need:
// the managed prompt only reads Latest, the raw completion builds its own
// message list from the rest.
type Request struct {
	// Latest is the user's message as typed, plus any uploaded file text.
	Latest       string
	History      []Message
	SystemPrompt string
	Context      []retrieval.Passage
	Files        []string
	Params       Params
}

// Stream is a lazily produced reply. Both channels are closed when the
// producer stops; Errs carries at most one error.
type Stream struct {
	Chunks <-chan string
	Errs   <-chan error
}

// Attempt is the outcome of opening a stage: either a stream or the reason
// the stage could not be used.
type Attempt struct {
	Stream      *Stream
	Unavailable error
}

func Available(s *Stream) Attempt { return Attempt{Stream: s} }

func Unavailable(reason error) Attempt {
	if reason == nil {
		reason = ErrUnavailable
	}
	return Attempt{Unavailable: reason}
}

// Stage is one step of the generation fallback chain.
type Stage interface {
	Name() string
	Open(ctx context.Context, req Request) Attempt
}
