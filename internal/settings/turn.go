package settings

import (
	"context"
	"math"
)

const (
	minTemperature = 0.0
	maxTemperature = 2.0
	maxTokensCap   = 4096
	maxRAGLimit    = 20
)

// TurnSettings is the snapshot a single chat turn runs with.
type TurnSettings struct {
	Model           string
	Temperature     float32
	MaxTokens       int
	PromptID        string
	PromptVersion   string
	EnableRAG       bool
	RAGChunkLimit   int
	EnableCitations bool
	SystemPrompt    string
	EnableLeadGate  bool
	LeadGateMessage string
}

// TurnSettings resolves every per-turn value. Out of range numbers fall back
// to their defaults instead of failing the turn.
func (s *Store) TurnSettings(ctx context.Context) TurnSettings {
	ts := TurnSettings{
		Model:           s.GetString(ctx, KeyOpenAIModel, "gpt-4-turbo-preview"),
		PromptID:        s.GetString(ctx, KeyOpenAIPromptID, ""),
		PromptVersion:   s.GetString(ctx, KeyOpenAIPromptVersion, "2"),
		EnableRAG:       s.GetBool(ctx, KeyEnableRAG, true),
		EnableCitations: s.GetBool(ctx, KeyEnableCitations, true),
		SystemPrompt:    s.GetString(ctx, KeySystemPrompt, DefaultSystemPrompt),
		EnableLeadGate:  s.GetBool(ctx, KeyEnableLeadGate, false),
		LeadGateMessage: s.GetString(ctx, KeyLeadGateMessage, DefaultLeadGateMessage),
	}

	temp := s.GetFloat(ctx, KeyTemperature, 0.7)
	if math.IsNaN(temp) || temp < minTemperature || temp > maxTemperature {
		s.log.Warn().Float64("temperature", temp).Msg("temperature out of range, using default")
		temp = 0.7
	}
	ts.Temperature = float32(temp)

	ts.MaxTokens = s.GetInt(ctx, KeyMaxTokens, 1000)
	if ts.MaxTokens < 1 || ts.MaxTokens > maxTokensCap {
		s.log.Warn().Int("max_tokens", ts.MaxTokens).Msg("max_tokens out of range, using default")
		ts.MaxTokens = 1000
	}

	ts.RAGChunkLimit = s.GetInt(ctx, KeyRAGChunkLimit, 3)
	if ts.RAGChunkLimit < 1 || ts.RAGChunkLimit > maxRAGLimit {
		ts.RAGChunkLimit = 3
	}

	if ts.Model == "" {
		ts.Model = "gpt-4-turbo-preview"
	}
	if ts.LeadGateMessage == "" {
		ts.LeadGateMessage = DefaultLeadGateMessage
	}
	return ts
}
