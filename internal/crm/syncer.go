package crm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/leads"
	"github.com/suPer8Hu/clarity-chat/internal/metrics"
)

// Outcome tells the consumer what to do with a delivery.
type Outcome int

const (
	Ack Outcome = iota
	Retry
	DeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	default:
		return "dead_letter"
	}
}

type Forwarder interface {
	Forward(ctx context.Context, ev leads.CapturedEvent) error
}

type SyncMarker interface {
	MarkSynced(ctx context.Context, leadID uint64, at time.Time) error
}

type Syncer struct {
	forward     Forwarder
	leads       SyncMarker
	maxAttempts int
	log         zerolog.Logger
}

func NewSyncer(f Forwarder, m SyncMarker, maxAttempts int, log zerolog.Logger) *Syncer {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Syncer{forward: f, leads: m, maxAttempts: maxAttempts, log: log}
}

// Handle forwards one lead.captured delivery. attempt starts at 1.
func (s *Syncer) Handle(ctx context.Context, body []byte, attempt int) Outcome {
	out := s.handle(ctx, body, attempt)
	metrics.CRMSyncs.WithLabelValues(out.String()).Inc()
	return out
}

func (s *Syncer) handle(ctx context.Context, body []byte, attempt int) Outcome {
	var ev leads.CapturedEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.LeadID == 0 {
		s.log.Error().Err(err).Msg("bad lead event")
		return DeadLetter
	}
	if ev.Type != "" && ev.Type != leads.EventLeadCaptured {
		s.log.Warn().Str("type", ev.Type).Uint64("lead_id", ev.LeadID).Msg("unexpected event type")
		return DeadLetter
	}

	log := s.log.With().Uint64("lead_id", ev.LeadID).Int("attempt", attempt).Logger()
	start := time.Now()
	if err := s.forward.Forward(ctx, ev); err != nil {
		var se *StatusError
		if errors.Is(err, ErrNoWebhook) || (errors.As(err, &se) && se.Permanent()) {
			log.Error().Err(err).Msg("crm rejected lead")
			return DeadLetter
		}
		if attempt >= s.maxAttempts {
			log.Error().Err(err).Dur("cost", time.Since(start)).Msg("crm forward failed, giving up")
			return DeadLetter
		}
		log.Warn().Err(err).Dur("cost", time.Since(start)).Msg("crm forward failed, will retry")
		return Retry
	}

	if err := s.leads.MarkSynced(ctx, ev.LeadID, time.Now()); err != nil {
		// the CRM already has the lead; a redelivery would duplicate it
		log.Error().Err(err).Msg("mark synced failed")
	}
	log.Info().Dur("cost", time.Since(start)).Msg("lead forwarded to crm")
	return Ack
}
