package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/clarity-chat/internal/retrieval"
)

type scriptedStage struct {
	name    string
	reason  error    // returned as unavailable when set
	chunks  []string // emitted before err
	err     error
	opened  int
	lastReq Request
}

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Open(ctx context.Context, req Request) Attempt {
	s.opened++
	s.lastReq = req
	if s.reason != nil {
		return Unavailable(s.reason)
	}
	// unbuffered so the error can never overtake a chunk
	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		for _, c := range s.chunks {
			chunks <- c
		}
		close(chunks)
		if s.err != nil {
			errs <- s.err
		}
	}()
	return Available(&Stream{Chunks: chunks, Errs: errs})
}

func drain(t *testing.T, g *Generation) (string, error) {
	t.Helper()
	var b strings.Builder
	timeout := time.After(2 * time.Second)
	chunks, errs := g.Chunks, g.Errs
	var err error
	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			b.WriteString(c)
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			err = e
		case <-timeout:
			t.Fatal("generation did not finish")
		}
	}
	return b.String(), err
}

func TestChain_FirstAvailableStageWins(t *testing.T) {
	managed := &scriptedStage{name: "managed_prompt", chunks: []string{"Hello", " there"}}
	raw := &scriptedStage{name: "chat_completion", chunks: []string{"unused"}}
	c := NewChain(zerolog.Nop(), managed, raw)

	g, err := c.Generate(context.Background(), Request{Latest: "hi"})
	require.NoError(t, err)
	require.Equal(t, "managed_prompt", g.Stage)

	text, err := drain(t, g)
	require.NoError(t, err)
	require.Equal(t, "Hello there", text)
	require.Zero(t, raw.opened)
}

func TestChain_AdvancesOnUnavailableAndEarlyError(t *testing.T) {
	managed := &scriptedStage{name: "managed_prompt", reason: errors.New("no prompt id")}
	raw := &scriptedStage{name: "chat_completion", err: errors.New("429 rate limited")}
	c := NewChain(zerolog.Nop(), managed, raw, NewOfflineStage())

	g, err := c.Generate(context.Background(), Request{Latest: "Tell me about Roth conversions"})
	require.NoError(t, err)
	require.Equal(t, "offline", g.Stage)

	text, err := drain(t, g)
	require.NoError(t, err)
	require.Equal(t, rothReply, text)
	require.Equal(t, 1, managed.opened)
	require.Equal(t, 1, raw.opened)
}

func TestChain_OfflineIsDeterministic(t *testing.T) {
	req := Request{
		Latest:  "When should I claim social security?",
		Context: []retrieval.Passage{{Title: "SS Guide", PublishedDate: "2024-05-01"}, {Title: "Break-even"}, {Title: "Third"}},
	}
	newChain := func() *Chain {
		return NewChain(zerolog.Nop(),
			&scriptedStage{name: "managed_prompt", reason: errors.New("boom")},
			&scriptedStage{name: "chat_completion", err: errors.New("boom")},
			NewOfflineStage(),
		)
	}

	var outputs []string
	for i := 0; i < 3; i++ {
		g, err := newChain().Generate(context.Background(), req)
		require.NoError(t, err)
		text, err := drain(t, g)
		require.NoError(t, err)
		outputs = append(outputs, text)
	}
	require.Equal(t, outputs[0], outputs[1])
	require.Equal(t, outputs[1], outputs[2])
	require.True(t, strings.HasPrefix(outputs[0], socialSecurityReply))
	require.True(t, strings.HasSuffix(outputs[0], "**Sources:**\n- SS Guide (2024-05-01)\n- Break-even (N/A)"))
}

func TestChain_Exhausted(t *testing.T) {
	c := NewChain(zerolog.Nop(),
		&scriptedStage{name: "managed_prompt", reason: errors.New("no key")},
		&scriptedStage{name: "chat_completion"}, // closes without text
	)

	g, err := c.Generate(context.Background(), Request{Latest: "hi"})
	require.Nil(t, g)
	require.ErrorIs(t, err, ErrGenerationExhausted)
	require.Contains(t, err.Error(), "no key")
	require.Contains(t, err.Error(), "empty response")
}

func TestChain_ErrorAfterFirstChunkIsNotRetried(t *testing.T) {
	raw := &scriptedStage{name: "chat_completion", chunks: []string{"partial"}, err: errors.New("connection reset")}
	offline := NewOfflineStage()
	c := NewChain(zerolog.Nop(), raw, offline)

	g, err := c.Generate(context.Background(), Request{Latest: "hi"})
	require.NoError(t, err)
	require.Equal(t, "chat_completion", g.Stage)

	_, err = drain(t, g)
	require.EqualError(t, err, "connection reset")
}

func TestChain_SanitizesParams(t *testing.T) {
	raw := &scriptedStage{name: "chat_completion", chunks: []string{"ok"}}
	c := NewChain(zerolog.Nop(), raw)

	g, err := c.Generate(context.Background(), Request{Params: Params{Temperature: 9, MaxTokens: -1}})
	require.NoError(t, err)
	_, _ = drain(t, g)

	require.Equal(t, DefaultTemperature, raw.lastReq.Params.Temperature)
	require.Equal(t, DefaultMaxTokens, raw.lastReq.Params.MaxTokens)
	require.Equal(t, DefaultModel, raw.lastReq.Params.Model)
}

func TestChain_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewChain(zerolog.Nop(), NewOfflineStage())

	_, err := c.Generate(ctx, Request{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParamsSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   Params
		want Params
	}{
		{"defaults", Params{}, Params{Model: DefaultModel, Temperature: 0, MaxTokens: DefaultMaxTokens}},
		{"in range kept", Params{Model: "gpt-4o", Temperature: 1.2, MaxTokens: 500}, Params{Model: "gpt-4o", Temperature: 1.2, MaxTokens: 500}},
		{"negative temperature", Params{Model: "m", Temperature: -1, MaxTokens: 10}, Params{Model: "m", Temperature: DefaultTemperature, MaxTokens: 10}},
		{"too many tokens", Params{Model: "m", Temperature: 0.2, MaxTokens: 100000}, Params{Model: "m", Temperature: 0.2, MaxTokens: DefaultMaxTokens}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.in.Sanitize())
		})
	}
}

// stallingStage never answers on its own; it gives up only when its context ends.
type stallingStage struct {
	name     string
	stream   bool
	released chan struct{}
}

func (s *stallingStage) Name() string { return s.name }

func (s *stallingStage) Open(ctx context.Context, _ Request) Attempt {
	if !s.stream {
		<-ctx.Done()
		close(s.released)
		return Unavailable(ctx.Err())
	}
	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(chunks)
		<-ctx.Done()
		close(s.released)
		errs <- ctx.Err()
	}()
	return Available(&Stream{Chunks: chunks, Errs: errs})
}

func TestChain_StageTimeoutFallsBackToOffline(t *testing.T) {
	for _, streaming := range []bool{false, true} {
		hung := &stallingStage{name: "managed_prompt", stream: streaming, released: make(chan struct{})}
		c := NewChain(zerolog.Nop(), hung, NewOfflineStage()).WithStageTimeout(50 * time.Millisecond)

		start := time.Now()
		g, err := c.Generate(context.Background(), Request{Latest: "roth conversion?"})
		require.NoError(t, err)
		require.Equal(t, "offline", g.Stage)
		require.Less(t, time.Since(start), 2*time.Second)

		text, err := drain(t, g)
		require.NoError(t, err)
		require.Equal(t, OfflineReply(Request{Latest: "roth conversion?"}), text)

		select {
		case <-hung.released:
		case <-time.After(time.Second):
			t.Fatal("timed out stage was not released")
		}
	}
}

func TestChain_ParentDeadlineStillAborts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	hung := &stallingStage{name: "managed_prompt", released: make(chan struct{})}
	c := NewChain(zerolog.Nop(), hung, NewOfflineStage()).WithStageTimeout(time.Minute)

	_, err := c.Generate(ctx, Request{Latest: "hi"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
