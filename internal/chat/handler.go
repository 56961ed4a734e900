package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

type Completer interface {
	Complete(ctx context.Context, messages []Message) (Message, error)
}

type Handler struct {
	client Completer
	logger *slog.Logger
}

func NewHandler(client Completer, logger *slog.Logger) *Handler {
	return &Handler{
		client: client,
		logger: logger,
	}
}

type chatRequest struct {
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Message Message `json:"message"`
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Messages) == 0 {
		h.writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	message, err := h.client.Complete(r.Context(), req.Messages)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		h.logger.Warn("chat request rejected by circuit breaker", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "chat service temporarily unavailable")
		return
	}
	if err != nil {
		h.logger.Error("failed to complete chat", "error", err, "messages", len(req.Messages))
		h.writeError(w, http.StatusBadGateway, "failed to process chat request")
		return
	}

	h.writeJSON(w, http.StatusOK, chatResponse{Message: message})
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
