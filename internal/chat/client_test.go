package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completionsServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards the conversation and returns the first choice", func(t *testing.T) {
		var got completionRequest
		server := completionsServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"choices": [
				{"message": {"role": "assistant", "content": "Try the Running Pro Max."}},
				{"message": {"role": "assistant", "content": "ignored"}}
			]}`)
		})
		client := NewClient(server.URL+"/", "sk-test", "gpt-3.5-turbo", server.Client(), discardLogger())

		message, err := client.Complete(ctx, []Message{{Role: "user", Content: "I need running shoes"}})
		require.NoError(t, err)

		assert.Equal(t, Message{Role: "assistant", Content: "Try the Running Pro Max."}, message)
		assert.Equal(t, "gpt-3.5-turbo", got.Model)
		assert.InDelta(t, 0.7, got.Temperature, 1e-9)
		assert.Equal(t, []Message{{Role: "user", Content: "I need running shoes"}}, got.Messages)
	})

	t.Run("non-200 answers are status errors", func(t *testing.T) {
		server := completionsServer(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
		})
		client := NewClient(server.URL, "bad", "gpt-3.5-turbo", server.Client(), discardLogger())

		_, err := client.Complete(ctx, []Message{{Role: "user", Content: "hi"}})

		var status *StatusError
		require.ErrorAs(t, err, &status)
		assert.Equal(t, http.StatusUnauthorized, status.Code)
		assert.Contains(t, status.Body, "invalid api key")
	})

	t.Run("empty choices", func(t *testing.T) {
		server := completionsServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"choices": []}`)
		})
		client := NewClient(server.URL, "", "gpt-3.5-turbo", server.Client(), discardLogger())

		_, err := client.Complete(ctx, []Message{{Role: "user", Content: "hi"}})
		assert.ErrorIs(t, err, ErrNoChoices)
	})
}

func TestClient_CircuitBreaker(t *testing.T) {
	ctx := context.Background()

	t.Run("opens after consecutive server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := completionsServer(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		client := NewClient(server.URL, "", "gpt-3.5-turbo", server.Client(), discardLogger(),
			WithTripAfter(2), WithBreakerTimeout(time.Minute))

		for range 2 {
			_, err := client.Complete(ctx, []Message{{Role: "user", Content: "hi"}})
			require.Error(t, err)
		}

		_, err := client.Complete(ctx, []Message{{Role: "user", Content: "hi"}})
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("client errors do not trip it", func(t *testing.T) {
		var calls atomic.Int32
		server := completionsServer(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		})
		client := NewClient(server.URL, "", "gpt-3.5-turbo", server.Client(), discardLogger(), WithTripAfter(2))

		for range 4 {
			_, err := client.Complete(ctx, []Message{{Role: "user", Content: "hi"}})
			var status *StatusError
			require.ErrorAs(t, err, &status)
		}
		assert.Equal(t, int32(4), calls.Load())
	})
}

type stubCompleter struct {
	message Message
	err     error
}

func (s stubCompleter) Complete(context.Context, []Message) (Message, error) {
	return s.message, s.err
}

func TestHandler_HandleChat(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		completer  stubCompleter
		wantStatus int
		wantBody   string
	}{
		{
			name:       "returns the assistant message",
			body:       `{"messages": [{"role": "user", "content": "hello"}]}`,
			completer:  stubCompleter{message: Message{Role: "assistant", Content: "Hi there"}},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":{"role":"assistant","content":"Hi there"}}`,
		},
		{
			name:       "rejects an empty history",
			body:       `{"messages": []}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"messages are required"}`,
		},
		{
			name:       "rejects malformed bodies",
			body:       `messages`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid request body"}`,
		},
		{
			name:       "open breaker",
			body:       `{"messages": [{"role": "user", "content": "hello"}]}`,
			completer:  stubCompleter{err: gobreaker.ErrOpenState},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"error":"chat service temporarily unavailable"}`,
		},
		{
			name:       "upstream failure",
			body:       `{"messages": [{"role": "user", "content": "hello"}]}`,
			completer:  stubCompleter{err: &StatusError{Code: 500}},
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":"failed to process chat request"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.completer, discardLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.HandleChat(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
