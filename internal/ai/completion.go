package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/suPer8Hu/clarity-chat/internal/retrieval"
)

// CompletionClient is the slice of *openai.Client the raw completion stage needs.
type CompletionClient interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// CompletionStage streams a chat completion built from the system prompt,
// the retrieved context and the recent history.
type CompletionStage struct {
	client CompletionClient
}

func NewCompletionStage(client CompletionClient) *CompletionStage {
	return &CompletionStage{client: client}
}

func (*CompletionStage) Name() string { return "chat_completion" }

func (s *CompletionStage) Open(ctx context.Context, req Request) Attempt {
	if s.client == nil {
		return Unavailable(fmt.Errorf("%w: no completion backend configured", ErrUnavailable))
	}

	params := req.Params.Sanitize()
	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    CompletionMessages(req),
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return Unavailable(err)
	}

	chunks := make(chan string, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case chunks <- delta:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return Available(&Stream{Chunks: chunks, Errs: errs})
}

// CompletionMessages assembles: system prompt, an optional context system
// message, then the history window.
func CompletionMessages(req Request) []openai.ChatCompletionMessage {
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant."
	}
	out := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}}

	var extra []string
	if text := ContextText(req.Context); text != "" {
		extra = append(extra, "KNOWLEDGE BASE CONTEXT:\n\n"+text)
	}
	if len(req.Files) > 0 {
		extra = append(extra, "UPLOADED FILES:\n\n"+strings.Join(req.Files, "\n\n")+
			"\n\nThe user has uploaded these files. Please analyze them and incorporate their content into your response.")
	}
	if len(extra) > 0 {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: strings.Join(extra, "\n\n")})
	}

	for _, m := range req.History {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// ContextText renders passages as "[title]\ncontent" blocks.
func ContextText(passages []retrieval.Passage) string {
	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		title := p.Title
		if title == "" {
			title = "Unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", title, p.Content))
	}
	return strings.Join(blocks, "\n\n")
}
