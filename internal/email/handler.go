package email

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one email accepted by the sink.
type Message struct {
	ID      string    `json:"id"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

type Option func(*Handler)

// WithLatency makes every send take a random duration in [lo, hi].
func WithLatency(lo, hi time.Duration) Option {
	return func(h *Handler) {
		h.minLatency = lo
		h.maxLatency = hi
	}
}

// WithCapacity bounds how many messages the outbox retains.
func WithCapacity(n int) Option {
	return func(h *Handler) {
		h.capacity = n
	}
}

// Handler is a mock mail sink: it logs and keeps the most recent messages
// instead of delivering them.
type Handler struct {
	logger     *slog.Logger
	minLatency time.Duration
	maxLatency time.Duration
	capacity   int

	mu     sync.Mutex
	outbox []Message
}

func NewHandler(logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:   logger,
		capacity: 100,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !strings.Contains(req.To, "@") {
		h.writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		h.writeError(w, http.StatusBadRequest, "missing subject")
		return
	}

	if delay := h.latency(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	msg := Message{
		ID:      uuid.NewString(),
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
		SentAt:  time.Now().UTC(),
	}
	h.store(msg)

	h.logger.Info("email sent", "id", msg.ID, "to", msg.To, "subject", msg.Subject)

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent", ID: msg.ID})
}

// HandleOutbox lists retained messages, newest first.
func (h *Handler) HandleOutbox(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Sent())
}

func (h *Handler) Sent() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, len(h.outbox))
	for i, msg := range h.outbox {
		out[len(h.outbox)-1-i] = msg
	}
	return out
}

func (h *Handler) store(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.outbox = append(h.outbox, msg)
	if over := len(h.outbox) - h.capacity; over > 0 {
		h.outbox = append(h.outbox[:0:0], h.outbox[over:]...)
	}
}

func (h *Handler) latency() time.Duration {
	if h.maxLatency <= h.minLatency {
		return h.minLatency
	}
	return h.minLatency + rand.N(h.maxLatency-h.minLatency+1)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
