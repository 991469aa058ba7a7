package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/clarity-chat/internal/leads"
)

type markRecorder struct {
	mu  sync.Mutex
	ids []uint64
	err error
}

func (m *markRecorder) MarkSynced(_ context.Context, id uint64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return m.err
}

func eventBody(t *testing.T, id uint64) []byte {
	t.Helper()
	b, err := json.Marshal(leads.CapturedEvent{
		Type:      leads.EventLeadCaptured,
		LeadID:    id,
		Email:     "dana@example.com",
		Bucket:    "income",
		SessionID: "s-1",
	})
	require.NoError(t, err)
	return b
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got leads.CapturedEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	require.NoError(t, wh.Forward(context.Background(), leads.CapturedEvent{LeadID: 7, Email: "a@b.co"}))
	require.Equal(t, uint64(7), got.LeadID)
}

func TestWebhook_StatusErrors(t *testing.T) {
	code := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", code)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	err := wh.Forward(context.Background(), leads.CapturedEvent{LeadID: 1})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.True(t, se.Permanent())
	require.Equal(t, "nope", se.Body)

	code = http.StatusTooManyRequests
	err = wh.Forward(context.Background(), leads.CapturedEvent{LeadID: 1})
	require.True(t, errors.As(err, &se))
	require.False(t, se.Permanent())

	require.ErrorIs(t, NewWebhook("  ", 0).Forward(context.Background(), leads.CapturedEvent{}), ErrNoWebhook)
}

func TestSyncer_Outcomes(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	marks := &markRecorder{}
	s := NewSyncer(NewWebhook(srv.URL, time.Second), marks, 3, zerolog.Nop())
	ctx := context.Background()

	require.Equal(t, Ack, s.Handle(ctx, eventBody(t, 11), 1))
	require.Equal(t, []uint64{11}, marks.ids)

	status = http.StatusBadGateway
	require.Equal(t, Retry, s.Handle(ctx, eventBody(t, 12), 1))
	require.Equal(t, Retry, s.Handle(ctx, eventBody(t, 12), 2))
	require.Equal(t, DeadLetter, s.Handle(ctx, eventBody(t, 12), 3))

	status = http.StatusUnprocessableEntity
	require.Equal(t, DeadLetter, s.Handle(ctx, eventBody(t, 13), 1))

	require.Equal(t, DeadLetter, s.Handle(ctx, []byte("{oops"), 1))
	require.Equal(t, DeadLetter, s.Handle(ctx, []byte(`{"type":"lead.deleted","lead_id":4}`), 1))
	require.Equal(t, []uint64{11}, marks.ids)
}

func TestSyncer_MarkFailureStillAcks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	marks := &markRecorder{err: leads.ErrLeadNotFound}
	s := NewSyncer(NewWebhook(srv.URL, time.Second), marks, 3, zerolog.Nop())
	require.Equal(t, Ack, s.Handle(context.Background(), eventBody(t, 21), 1))
}
