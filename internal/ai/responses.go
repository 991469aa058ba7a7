package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const responseHeaderTimeout = 30 * time.Second

// ManagedPromptStage streams from a hosted prompt through the Responses API.
// The hosted prompt owns its instructions and retrieval, so only the latest
// user message is sent.
type ManagedPromptStage struct {
	BaseURL       string
	APIKey        string
	PromptID      string
	PromptVersion string
	Client        *http.Client
}

type responsesPrompt struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

type responsesReq struct {
	Prompt responsesPrompt `json:"prompt"`
	Input  string          `json:"input"`
	Stream bool            `json:"stream"`
}

type responsesEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func NewManagedPromptStage(baseURL, apiKey, promptID, promptVersion string) *ManagedPromptStage {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if promptVersion == "" {
		promptVersion = "latest"
	}
	return &ManagedPromptStage{
		BaseURL:       baseURL,
		APIKey:        apiKey,
		PromptID:      promptID,
		PromptVersion: promptVersion,
		// no global timeout; the turn context bounds the stream body
		Client: &http.Client{Transport: newResponsesTransport(responseHeaderTimeout)},
	}
}

func newResponsesTransport(headerTimeout time.Duration) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	return tr
}

func (*ManagedPromptStage) Name() string { return "managed_prompt" }

func (p *ManagedPromptStage) prompt(params Params) responsesPrompt {
	if id := strings.TrimSpace(params.PromptID); id != "" {
		return responsesPrompt{ID: id, Version: params.PromptVersion}
	}
	return responsesPrompt{ID: strings.TrimSpace(p.PromptID), Version: p.PromptVersion}
}

func (p *ManagedPromptStage) Open(ctx context.Context, req Request) Attempt {
	if p.Client == nil {
		return Unavailable(fmt.Errorf("%w: http client is nil", ErrUnavailable))
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return Unavailable(fmt.Errorf("%w: api key is not configured", ErrUnavailable))
	}
	prompt := p.prompt(req.Params)
	if prompt.ID == "" {
		return Unavailable(fmt.Errorf("%w: no managed prompt configured", ErrUnavailable))
	}

	b, err := json.Marshal(responsesReq{Prompt: prompt, Input: req.Latest, Stream: true})
	if err != nil {
		return Unavailable(err)
	}

	url := fmt.Sprintf("%s/responses", strings.TrimRight(p.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return Unavailable(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return Unavailable(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		resp.Body.Close()
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return Unavailable(fmt.Errorf("responses: %s", msg))
	}

	chunks := make(chan string, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer resp.Body.Close()

		if err := readResponsesStream(ctx, resp.Body, chunks); err != nil {
			errs <- err
		}
	}()
	return Available(&Stream{Chunks: chunks, Errs: errs})
}

// readResponsesStream forwards output text deltas. A final done event fills
// in any tail the deltas missed.
func readResponsesStream(ctx context.Context, body io.Reader, chunks chan<- string) error {
	sc := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	var seen strings.Builder
	emit := func(s string) error {
		seen.WriteString(s)
		select {
		case chunks <- s:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var ev responsesEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return err
		}

		switch ev.Type {
		case "response.output_text.delta":
			if ev.Delta != "" {
				if err := emit(ev.Delta); err != nil {
					return err
				}
			}
		case "response.output_text.done":
			have := seen.String()
			if len(ev.Text) > len(have) && strings.HasPrefix(ev.Text, have) {
				if err := emit(ev.Text[len(have):]); err != nil {
					return err
				}
			}
		case "response.completed":
			return nil
		case "response.failed", "error":
			msg := ev.Message
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Message
			}
			if msg == "" {
				msg = ev.Type
			}
			return errors.New("responses: " + msg)
		}
	}
	return sc.Err()
}
