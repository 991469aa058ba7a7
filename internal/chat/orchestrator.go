package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qmuntal/stateless"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/ai"
	"github.com/suPer8Hu/clarity-chat/internal/citation"
	"github.com/suPer8Hu/clarity-chat/internal/metrics"
	"github.com/suPer8Hu/clarity-chat/internal/retrieval"
	"github.com/suPer8Hu/clarity-chat/internal/settings"
	"gorm.io/datatypes"
)

const (
	StateReceived        = "RECEIVED"
	StateGateCheck       = "GATE_CHECK"
	StateGated           = "GATED"
	StateContextGather   = "CONTEXT_GATHER"
	StateGenerate        = "GENERATE"
	StateCitationExtract = "CITATION_EXTRACT"
	StatePersist         = "PERSIST"
	StateDone            = "DONE"
	StateError           = "ERROR"
)

const (
	triggerCheckGate = "check_gate"
	triggerGate      = "gate"
	triggerGather    = "gather"
	triggerGenerate  = "generate"
	triggerExtract   = "extract"
	triggerPersist   = "persist"
	triggerComplete  = "complete"
	triggerFail      = "fail"
)

// GenericFailure is the only error text a client ever sees for a failed turn.
const GenericFailure = "Sorry, something went wrong while generating a response. Please try again."

var ErrTurnFailed = errors.New("chat: turn failed")

// siteLimit caps live-site passages per turn.
const siteLimit = 3

type SettingsSource interface {
	TurnSettings(ctx context.Context) settings.TurnSettings
}

type ContextGatherer interface {
	Gather(ctx context.Context, query string, limits retrieval.Limits) (site, docs []retrieval.Passage)
}

type Generator interface {
	Generate(ctx context.Context, req ai.Request) (*ai.Generation, error)
}

// BookingLookup resolves the scheduling link of a linked lead.
type BookingLookup interface {
	BookingURL(ctx context.Context, leadID uint64) string
}

type OrchestratorConfig struct {
	ContextWindow     int
	PassageMaxChars   int
	GenerationTimeout time.Duration
}

type TurnRequest struct {
	SessionID string
	Message   string
	UserID    string
	Metadata  map[string]any
	Files     []Attachment
}

type TurnResult struct {
	Response     string              `json:"response"`
	SessionID    string              `json:"session_id"`
	ShowLeadGate bool                `json:"show_lead_gate"`
	Citations    []citation.Citation `json:"citations"`
	BookingURL   *string             `json:"booking_url"`
	MessageID    uint64              `json:"message_id,omitempty"`
}

type Orchestrator struct {
	repo     *Repo
	settings SettingsSource
	context  ContextGatherer
	chain    Generator
	bookings BookingLookup
	cfg      OrchestratorConfig
	log      zerolog.Logger
}

func NewOrchestrator(repo *Repo, st SettingsSource, cg ContextGatherer, chain Generator, bookings BookingLookup, cfg OrchestratorConfig, log zerolog.Logger) *Orchestrator {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 6
	}
	if cfg.PassageMaxChars <= 0 {
		cfg.PassageMaxChars = 1000
	}
	return &Orchestrator{
		repo:     repo,
		settings: st,
		context:  cg,
		chain:    chain,
		bookings: bookings,
		cfg:      cfg,
		log:      log,
	}
}

// Stream runs one turn and emits its frames. The channel is closed when the
// turn reaches DONE, GATED or ERROR, or when ctx is cancelled.
func (o *Orchestrator) Stream(ctx context.Context, req TurnRequest) <-chan Event {
	return o.start(ctx, req, false)
}

func (o *Orchestrator) start(ctx context.Context, req TurnRequest, sync bool) <-chan Event {
	events := make(chan Event, 32)
	t := &turn{o: o, req: req, sync: sync, events: events, log: o.log.With().Str("session_id", req.SessionID).Logger()}
	t.fsm = t.machine()

	go func() {
		defer close(events)
		t.run(ctx)
	}()
	return events
}

// Reply runs one turn and collects it into a single response. When the reply
// text carries no resource list, the citations name the context passages.
func (o *Orchestrator) Reply(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	res := &TurnResult{SessionID: req.SessionID, Citations: []citation.Citation{}}
	var b strings.Builder
	done := false

	for ev := range o.start(ctx, req, true) {
		switch ev.Type {
		case EventContent:
			b.WriteString(ev.Content)
		case EventLeadGate:
			res.ShowLeadGate = true
			b.WriteString(ev.Content)
		case EventCitations:
			res.Citations = ev.Citations
		case EventError:
			return nil, ErrTurnFailed
		case EventDone:
			done = true
			res.MessageID = ev.MessageID
			if ev.BookingURL != "" {
				u := ev.BookingURL
				res.BookingURL = &u
			}
		}
	}
	if !done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrTurnFailed
	}
	res.Response = b.String()
	return res, nil
}

type turn struct {
	o      *Orchestrator
	req    TurnRequest
	sync   bool
	events chan<- Event
	fsm    *stateless.StateMachine
	log    zerolog.Logger

	conv      *Conversation
	settings  settings.TurnSettings
	site      []retrieval.Passage
	docs      []retrieval.Passage
	stage     string
	reply     strings.Builder
	citations []citation.Citation
	tx        *Repo
	messageID uint64
	failedIn  string
}

func (t *turn) machine() *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateReceived)

	sm.Configure(StateReceived).
		Permit(triggerCheckGate, StateGateCheck).
		Permit(triggerFail, StateError)
	sm.Configure(StateGateCheck).
		Permit(triggerGate, StateGated).
		Permit(triggerGather, StateContextGather).
		Permit(triggerFail, StateError)
	sm.Configure(StateContextGather).
		Permit(triggerGenerate, StateGenerate).
		Permit(triggerFail, StateError)
	sm.Configure(StateGenerate).
		Permit(triggerExtract, StateCitationExtract).
		Permit(triggerFail, StateError)
	sm.Configure(StateCitationExtract).
		Permit(triggerPersist, StatePersist).
		Permit(triggerFail, StateError)
	sm.Configure(StatePersist).
		Permit(triggerComplete, StateDone).
		Permit(triggerFail, StateError)
	sm.Configure(StateError).
		OnEntry(t.onError)

	sm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
		t.log.Debug().
			Str("from", fmt.Sprint(tr.Source)).
			Str("to", fmt.Sprint(tr.Destination)).
			Msg("turn transition")
	})
	return sm
}

func (t *turn) run(ctx context.Context) {
	start := time.Now()
	outcome := t.execute(ctx)
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()

	mode := t.stage
	if mode == "" {
		mode = outcome
	}
	metrics.TurnDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// execute walks the machine and returns the terminal state name.
func (t *turn) execute(ctx context.Context) string {
	if err := t.receive(ctx); err != nil {
		return t.fail(ctx, err)
	}

	if err := t.advance(ctx, triggerCheckGate); err != nil {
		return t.fail(ctx, err)
	}
	gate, err := t.checkGate(ctx)
	if err != nil {
		return t.fail(ctx, err)
	}
	if gate != nil {
		if err := t.advance(ctx, triggerGate); err != nil {
			return t.fail(ctx, err)
		}
		t.emit(ctx, Event{Type: EventLeadGate, Content: gate.Content})
		t.emit(ctx, Event{Type: EventDone, SessionID: t.req.SessionID, MessageID: gate.ID})
		return StateGated
	}

	steps := []struct {
		trigger string
		run     func(context.Context) error
	}{
		{triggerGather, t.gather},
		{triggerGenerate, t.generate},
		{triggerExtract, t.extract},
		{triggerPersist, t.persist},
	}
	for _, s := range steps {
		if err := t.advance(ctx, s.trigger); err != nil {
			return t.fail(ctx, err)
		}
		if err := s.run(ctx); err != nil {
			return t.fail(ctx, err)
		}
	}

	if err := t.advance(ctx, triggerComplete); err != nil {
		return t.fail(ctx, err)
	}
	t.finish(ctx)
	return StateDone
}

func (t *turn) advance(ctx context.Context, trigger string) error {
	return t.fsm.FireCtx(ctx, trigger)
}

func (t *turn) fail(ctx context.Context, cause error) string {
	t.failedIn = fmt.Sprint(t.fsm.MustState())
	if err := t.fsm.FireCtx(ctx, triggerFail, cause); err != nil {
		// the machine refused the transition; clean up by hand
		t.onError(ctx, cause)
	}
	return StateError
}

// onError rolls back any open assistant write and tells the client the turn
// failed. The user message committed in RECEIVED stays.
func (t *turn) onError(ctx context.Context, args ...any) error {
	var cause error
	if len(args) > 0 {
		cause, _ = args[0].(error)
	}

	if t.tx != nil {
		if err := t.tx.Rollback(); err != nil {
			t.log.Error().Err(err).Msg("rollback assistant message failed")
		}
		t.tx = nil
	}

	ev := t.log.Error()
	if errors.Is(cause, context.Canceled) {
		ev = t.log.Info()
	}
	ev.Err(cause).Str("state", t.failedIn).Str("stage", t.stage).Msg("turn failed")

	t.emit(ctx, ErrorEvent(GenericFailure))
	return nil
}

func (t *turn) emit(ctx context.Context, ev Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// receive stores the user message and snapshots the turn settings.
func (t *turn) receive(ctx context.Context) error {
	repo := t.o.repo

	initial := map[string]any{}
	for k, v := range t.req.Metadata {
		initial[k] = v
	}
	if t.req.UserID != "" {
		initial["user_id"] = t.req.UserID
	}

	conv, _, err := repo.GetOrCreateConversation(ctx, t.req.SessionID, initial)
	if err != nil {
		return err
	}
	if t.req.UserID != "" {
		if _, ok := conv.Metadata["user_id"]; !ok {
			merged := datatypes.JSONMap{}
			for k, v := range conv.Metadata {
				merged[k] = v
			}
			merged["user_id"] = t.req.UserID
			if err := repo.UpdateConversationMetadata(ctx, conv.ID, merged); err != nil {
				return err
			}
			conv.Metadata = merged
		}
	}
	t.conv = conv

	meta := datatypes.JSONMap{}
	for k, v := range t.req.Metadata {
		meta[k] = v
	}
	if len(t.req.Files) > 0 {
		meta["files"] = t.req.Files
	}
	user := &Message{
		ConversationID: conv.ID,
		Role:           ai.RoleUser,
		Content:        t.req.Message + attachedSuffix(t.req.Files),
		Metadata:       meta,
	}
	if err := repo.InsertMessage(ctx, user); err != nil {
		return err
	}

	t.settings = t.o.settings.TurnSettings(ctx)
	return nil
}

// checkGate persists the gate prompt when the gate fires and returns it.
func (t *turn) checkGate(ctx context.Context) (*Message, error) {
	count, err := t.o.repo.CountAssistantMessages(ctx, t.conv.ID)
	if err != nil {
		return nil, err
	}
	if !ShouldGate(t.conv, count, t.settings.EnableLeadGate) {
		return nil, nil
	}

	gate := &Message{
		ConversationID: t.conv.ID,
		Role:           ai.RoleAssistant,
		Content:        t.settings.LeadGateMessage,
		Metadata:       datatypes.JSONMap{"type": "lead_gate"},
	}
	if err := t.o.repo.InsertMessage(ctx, gate); err != nil {
		return nil, err
	}
	if err := t.o.repo.TouchConversation(ctx, t.conv.ID); err != nil {
		t.log.Warn().Err(err).Msg("touch conversation failed")
	}
	return gate, nil
}

func (t *turn) gather(ctx context.Context) error {
	t.site, t.docs = t.o.context.Gather(ctx, t.req.Message, retrieval.Limits{
		SiteLimit:        siteLimit,
		DocumentLimit:    t.settings.RAGChunkLimit,
		MaxChars:         t.o.cfg.PassageMaxChars,
		IncludeDocuments: t.settings.EnableRAG,
	})
	return ctx.Err()
}

func (t *turn) request(ctx context.Context) (ai.Request, error) {
	recent, err := t.o.repo.ListRecentMessagesDesc(ctx, t.conv.ID, t.o.cfg.ContextWindow)
	if err != nil {
		return ai.Request{}, err
	}
	history := make([]ai.Message, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		history = append(history, ai.Message{Role: recent[i].Role, Content: recent[i].Content})
	}

	files := make([]string, 0, len(t.req.Files))
	for _, f := range t.req.Files {
		files = append(files, f.Text)
	}
	latest := t.req.Message
	if len(files) > 0 {
		latest += "\n\n[User uploaded files]:\n" + strings.Join(files, "\n\n")
	}

	return ai.Request{
		Latest:       latest,
		History:      history,
		SystemPrompt: t.settings.SystemPrompt,
		Context:      retrieval.Concat(t.site, t.docs),
		Files:        files,
		Params: ai.Params{
			Model:         t.settings.Model,
			Temperature:   t.settings.Temperature,
			MaxTokens:     t.settings.MaxTokens,
			PromptID:      t.settings.PromptID,
			PromptVersion: t.settings.PromptVersion,
		},
	}, nil
}

func (t *turn) generate(ctx context.Context) error {
	req, err := t.request(ctx)
	if err != nil {
		return err
	}

	genCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.o.cfg.GenerationTimeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, t.o.cfg.GenerationTimeout)
	}
	defer cancel()

	gen, err := t.o.chain.Generate(genCtx, req)
	if err != nil {
		return err
	}
	t.stage = gen.Stage

	for chunk := range gen.Chunks {
		t.reply.WriteString(chunk)
		if !t.emit(ctx, Event{Type: EventContent, Content: chunk}) {
			return ctx.Err()
		}
	}
	if err := <-gen.Errs; err != nil {
		return err
	}
	return ctx.Err()
}

// extractingStages are the stages whose text may carry a resource list.
// The managed prompt renders its own sources.
var extractingStages = map[string]bool{
	"chat_completion": true,
	"offline":         true,
}

func (t *turn) extract(context.Context) error {
	if !t.settings.EnableCitations {
		return nil
	}
	if extractingStages[t.stage] {
		t.citations = citation.Extract(t.reply.String())
	}
	if len(t.citations) == 0 && t.sync {
		t.citations = passageCitations(retrieval.Concat(t.site, t.docs))
	}
	return nil
}

// passageCitations lists every titled passage as a source.
func passageCitations(passages []retrieval.Passage) []citation.Citation {
	var out []citation.Citation
	for _, p := range passages {
		if p.Title == "" {
			continue
		}
		c := citation.Citation{Title: p.Title}
		if p.SourceURL != "" {
			u := p.SourceURL
			c.URL = &u
		}
		if p.PublishedDate != "" {
			d := p.PublishedDate
			c.Date = &d
		}
		out = append(out, c)
	}
	return out
}

func (t *turn) persist(ctx context.Context) error {
	meta := datatypes.JSONMap{
		"stage":            t.stage,
		"context_passages": len(t.site) + len(t.docs),
		"site_passages":    len(t.site),
	}
	if len(t.citations) > 0 {
		meta["citations"] = t.citations
	}
	msg := &Message{
		ConversationID: t.conv.ID,
		Role:           ai.RoleAssistant,
		Content:        t.reply.String(),
		Metadata:       meta,
	}

	t.tx = t.o.repo.Begin(ctx)
	if err := t.tx.db.Error; err != nil {
		t.tx = nil
		return err
	}
	if err := t.tx.InsertMessage(ctx, msg); err != nil {
		return err
	}
	if err := t.tx.TouchConversation(ctx, t.conv.ID); err != nil {
		return err
	}
	if err := t.tx.Commit(); err != nil {
		return err
	}
	t.tx = nil
	t.messageID = msg.ID
	return nil
}

func (t *turn) finish(ctx context.Context) {
	if len(t.citations) > 0 {
		t.emit(ctx, Event{Type: EventCitations, Citations: t.citations})
	}

	done := Event{Type: EventDone, SessionID: t.req.SessionID, MessageID: t.messageID}
	if t.conv.LeadID != nil && t.o.bookings != nil {
		done.BookingURL = t.o.bookings.BookingURL(ctx, *t.conv.LeadID)
	}
	t.emit(ctx, done)
}
