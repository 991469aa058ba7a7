package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, status int, events []string, seen *responsesReq) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/responses", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"prompt not found"}}`, status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "event: x\ndata: %s\n\n", e)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, att Attempt) (string, error) {
	t.Helper()
	require.NotNil(t, att.Stream, "unexpected unavailable: %v", att.Unavailable)
	var out string
	for c := range att.Stream.Chunks {
		out += c
	}
	return out, <-att.Stream.Errs
}

func TestManagedPrompt_StreamsDeltas(t *testing.T) {
	var seen responsesReq
	srv := sseServer(t, http.StatusOK, []string{
		`{"type":"response.created"}`,
		`{"type":"response.output_text.delta","delta":"Roth "}`,
		`{"type":"response.output_text.delta","delta":"basics"}`,
		`{"type":"response.output_text.done","text":"Roth basics."}`,
		`{"type":"response.completed"}`,
	}, &seen)

	st := NewManagedPromptStage(srv.URL+"/v1", "sk-test", "pmpt_env", "")
	text, err := collect(t, st.Open(context.Background(), Request{Latest: "what is a roth?", History: []Message{{Role: RoleUser, Content: "old"}}}))
	require.NoError(t, err)
	require.Equal(t, "Roth basics.", text)

	require.True(t, seen.Stream)
	require.Equal(t, "what is a roth?", seen.Input)
	require.Equal(t, responsesPrompt{ID: "pmpt_env", Version: "latest"}, seen.Prompt)
}

func TestManagedPrompt_SettingsPromptOverridesDefault(t *testing.T) {
	var seen responsesReq
	srv := sseServer(t, http.StatusOK, []string{`{"type":"response.output_text.delta","delta":"hi"}`}, &seen)

	st := NewManagedPromptStage(srv.URL+"/v1", "sk-test", "pmpt_env", "")
	_, err := collect(t, st.Open(context.Background(), Request{Params: Params{PromptID: "pmpt_admin", PromptVersion: "2"}}))
	require.NoError(t, err)
	require.Equal(t, responsesPrompt{ID: "pmpt_admin", Version: "2"}, seen.Prompt)
}

func TestManagedPrompt_FailedEvent(t *testing.T) {
	srv := sseServer(t, http.StatusOK, []string{`{"type":"response.failed","error":{"message":"quota"}}`}, nil)

	st := NewManagedPromptStage(srv.URL+"/v1", "sk-test", "pmpt", "")
	_, err := collect(t, st.Open(context.Background(), Request{}))
	require.EqualError(t, err, "responses: quota")
}

func TestManagedPrompt_Unavailable(t *testing.T) {
	srv := sseServer(t, http.StatusNotFound, nil, nil)

	cases := map[string]*ManagedPromptStage{
		"no key":     NewManagedPromptStage(srv.URL+"/v1", "", "pmpt", ""),
		"no prompt":  NewManagedPromptStage(srv.URL+"/v1", "sk-test", "", ""),
		"bad status": NewManagedPromptStage(srv.URL+"/v1", "sk-test", "pmpt", ""),
	}
	for name, st := range cases {
		att := st.Open(context.Background(), Request{})
		require.Nil(t, att.Stream, name)
		require.Error(t, att.Unavailable, name)
	}
}

func TestManagedPrompt_SlowHeadersAreUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	st := NewManagedPromptStage(srv.URL+"/v1", "sk-test", "pmpt", "")
	st.Client = &http.Client{Transport: newResponsesTransport(50 * time.Millisecond)}

	start := time.Now()
	att := st.Open(context.Background(), Request{})
	require.Nil(t, att.Stream)
	require.Error(t, att.Unavailable)
	require.Less(t, time.Since(start), 5*time.Second)
}
