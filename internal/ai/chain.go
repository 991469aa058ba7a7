package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/metrics"
)

// Generation is the reply of the first stage that produced output.
type Generation struct {
	Stage  string
	Chunks <-chan string
	Errs   <-chan error
}

// DefaultStageTimeout bounds how long a stage may take to produce its first
// chunk before the chain moves on.
const DefaultStageTimeout = 30 * time.Second

var ErrStageTimeout = errors.New("ai: stage produced no output in time")

// Chain tries stages in order. A stage counts as failed when it is
// unavailable, errors or times out before its first chunk; after that the
// stream is committed and later errors surface on Generation.Errs.
type Chain struct {
	stages       []Stage
	stageTimeout time.Duration
	log          zerolog.Logger
}

func NewChain(log zerolog.Logger, stages ...Stage) *Chain {
	return &Chain{stages: stages, stageTimeout: DefaultStageTimeout, log: log}
}

// WithStageTimeout sets the time-to-first-chunk budget of each stage. A
// non-positive d keeps the default.
func (c *Chain) WithStageTimeout(d time.Duration) *Chain {
	if d > 0 {
		c.stageTimeout = d
	}
	return c
}

func (c *Chain) Stages() []string {
	out := make([]string, 0, len(c.stages))
	for _, s := range c.stages {
		out = append(out, s.Name())
	}
	return out
}

func (c *Chain) Generate(ctx context.Context, req Request) (*Generation, error) {
	req.Params = req.Params.Sanitize()

	var causes []error
	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gen, err := c.try(ctx, stage, req)
		if err == nil {
			return gen, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		causes = append(causes, fmt.Errorf("%s: %w", stage.Name(), err))
	}

	return nil, fmt.Errorf("%w: %w", ErrGenerationExhausted, errors.Join(causes...))
}

// try opens one stage under its own context. The stage timer only runs until
// the first chunk; a committed stream lives as long as ctx.
func (c *Chain) try(ctx context.Context, stage Stage, req Request) (*Generation, error) {
	sctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.stageTimeout, func() { cancel(ErrStageTimeout) })

	att := stage.Open(sctx, req)
	if att.Stream == nil {
		timer.Stop()
		reason := att.Unavailable
		if reason == nil {
			reason = ErrUnavailable
		}
		if cause := context.Cause(sctx); cause != nil {
			reason = cause
		}
		cancel(reason)
		c.advance(stage.Name(), "unavailable", reason)
		return nil, reason
	}

	first, ok, err := prime(sctx, att.Stream)
	if !timer.Stop() && ok {
		// the timer fired as the first chunk arrived
		ok, err = false, ErrStageTimeout
	}
	if err != nil || !ok {
		if err == nil {
			err = errors.New("empty response")
		}
		if cause := context.Cause(sctx); cause != nil {
			err = cause
		}
		cancel(err)
		c.advance(stage.Name(), "failed", err)
		return nil, err
	}

	metrics.GenerationAttempts.WithLabelValues(stage.Name(), "ok").Inc()
	chunks, errs := forward(ctx, first, att.Stream, func() { cancel(nil) })
	return &Generation{Stage: stage.Name(), Chunks: chunks, Errs: errs}, nil
}

func (c *Chain) advance(stage, result string, reason error) {
	metrics.GenerationAttempts.WithLabelValues(stage, result).Inc()
	c.log.Warn().Err(reason).Str("stage", stage).Str("result", result).Msg("generation stage skipped")
}

// prime waits for the first non-empty chunk. ok is false when the stream
// ended without producing text.
func prime(ctx context.Context, s *Stream) (first string, ok bool, err error) {
	chunks, errs := s.Chunks, s.Errs
	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case ch, open := <-chunks:
			if !open {
				chunks = nil
				if errs == nil {
					return "", false, nil
				}
				continue
			}
			if ch != "" {
				return ch, true, nil
			}
		case e, open := <-errs:
			if !open {
				errs = nil
				if chunks == nil {
					return "", false, nil
				}
				continue
			}
			if e != nil {
				return "", false, e
			}
		}
	}
}

// forward re-emits the primed chunk followed by the rest of the stream.
// release runs once the stream is done and frees the stage context.
func forward(ctx context.Context, first string, s *Stream, release func()) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	outErrs := make(chan error, 1)

	go func() {
		defer release()
		defer close(out)
		defer close(outErrs)

		select {
		case out <- first:
		case <-ctx.Done():
			outErrs <- ctx.Err()
			return
		}

		chunks, errs := s.Chunks, s.Errs
		for chunks != nil || errs != nil {
			select {
			case <-ctx.Done():
				outErrs <- ctx.Err()
				return
			case ch, open := <-chunks:
				if !open {
					chunks = nil
					continue
				}
				if ch == "" {
					continue
				}
				select {
				case out <- ch:
				case <-ctx.Done():
					outErrs <- ctx.Err()
					return
				}
			case e, open := <-errs:
				if !open {
					errs = nil
					continue
				}
				if e != nil {
					outErrs <- e
					return
				}
			}
		}
	}()

	return out, outErrs
}
