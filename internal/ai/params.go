package ai

import "math"

const (
	DefaultModel       = "gpt-4-turbo-preview"
	DefaultTemperature = float32(0.7)
	DefaultMaxTokens   = 1000

	maxTemperature = 2.0
	maxOutputCap   = 4096
)

// Params are the per-turn model settings.
type Params struct {
	Model         string
	Temperature   float32
	MaxTokens     int
	PromptID      string
	PromptVersion string
}

// Sanitize replaces out of range values with their defaults.
func (p Params) Sanitize() Params {
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Temperature < 0 || p.Temperature > maxTemperature || math.IsNaN(float64(p.Temperature)) {
		p.Temperature = DefaultTemperature
	}
	if p.MaxTokens <= 0 || p.MaxTokens > maxOutputCap {
		p.MaxTokens = DefaultMaxTokens
	}
	return p
}
