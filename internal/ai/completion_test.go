package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/clarity-chat/internal/retrieval"
)

func completionServer(t *testing.T, deltas []string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, d := range deltas {
			b, _ := json.Marshal(map[string]any{
				"id":      fmt.Sprintf("chunk-%d", i),
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "gpt-test",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": d}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testBackend(t *testing.T, url string) Backend {
	t.Helper()
	reg := NewRegistry()
	reg.Register("openai", OpenAICompatible(url+"/v1", "sk-test", false))
	b, err := reg.Get("OpenAI")
	require.NoError(t, err)
	return b
}

func TestCompletionStage_Streams(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := completionServer(t, []string{"Waiting ", "to 70 ", "helps."}, &seen)
	st := NewCompletionStage(testBackend(t, srv.URL))

	req := Request{
		SystemPrompt: "You are Clarity.",
		Context:      []retrieval.Passage{{Title: "SS", Content: "Delay credits."}},
		History: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "when to claim?"},
		},
		Params: Params{Model: "gpt-test", Temperature: 0.3, MaxTokens: 200},
	}
	text, err := collect(t, st.Open(context.Background(), req))
	require.NoError(t, err)
	require.Equal(t, "Waiting to 70 helps.", text)

	require.Equal(t, "gpt-test", seen.Model)
	require.True(t, seen.Stream)
	require.Equal(t, 200, seen.MaxTokens)
	require.InDelta(t, 0.3, seen.Temperature, 1e-6)
	require.Len(t, seen.Messages, 5)
	require.Equal(t, "KNOWLEDGE BASE CONTEXT:\n\n[SS]\nDelay credits.", seen.Messages[1].Content)
	require.Equal(t, "when to claim?", seen.Messages[4].Content)
}

func TestCompletionStage_UnavailableWithoutClient(t *testing.T) {
	att := NewCompletionStage(nil).Open(context.Background(), Request{})
	require.Nil(t, att.Stream)
	require.ErrorIs(t, att.Unavailable, ErrUnavailable)
}

func TestCompletionStage_HTTPErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	att := NewCompletionStage(testBackend(t, srv.URL)).Open(context.Background(), Request{})
	require.Nil(t, att.Stream)
	require.Error(t, att.Unavailable)
}

func TestCompletionMessages(t *testing.T) {
	t.Run("no context", func(t *testing.T) {
		msgs := CompletionMessages(Request{History: []Message{{Role: RoleUser, Content: "q"}, {Role: "system", Content: "skip"}}})
		require.Len(t, msgs, 2)
		require.Equal(t, "You are a helpful assistant.", msgs[0].Content)
		require.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
	})

	t.Run("context and files", func(t *testing.T) {
		msgs := CompletionMessages(Request{
			SystemPrompt: "sys",
			Context:      []retrieval.Passage{{Title: "A", Content: "a"}, {Content: "b"}},
			Files:        []string{"File: notes.txt\nhello"},
		})
		require.Len(t, msgs, 2)
		require.Equal(t, "KNOWLEDGE BASE CONTEXT:\n\n[A]\na\n\n[Unknown]\nb\n\n"+
			"UPLOADED FILES:\n\nFile: notes.txt\nhello\n\n"+
			"The user has uploaded these files. Please analyze them and incorporate their content into your response.",
			msgs[1].Content)
	})
}

type fakeEmbeddings struct {
	resp openai.EmbeddingResponse
	err  error
}

func (f fakeEmbeddings) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return f.resp, f.err
}

func TestOpenAIEmbedder(t *testing.T) {
	ok := NewOpenAIEmbedder(fakeEmbeddings{resp: openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: []float32{0.1, 0.2}}}}}, "")
	vec, err := ok.Embed(context.Background(), "roth")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2}, vec)

	failing := NewOpenAIEmbedder(fakeEmbeddings{err: fmt.Errorf("503")}, "")
	_, err = failing.Embed(context.Background(), "roth")
	require.ErrorIs(t, err, ErrNoEmbedding)

	var missing *OpenAIEmbedder
	_, err = missing.Embed(context.Background(), "roth")
	require.ErrorIs(t, err, ErrNoEmbedding)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("openai", OpenAICompatible("", "", false))
	reg.Register("ollama", OpenAICompatible("http://localhost:11434/v1", "", true))

	_, err := reg.Get("openai")
	require.ErrorIs(t, err, ErrUnavailable)

	b, err := reg.Get(" Ollama ")
	require.NoError(t, err)
	require.NotNil(t, b)

	_, err = reg.Get("anthropic")
	require.Error(t, err)
}
