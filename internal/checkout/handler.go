package checkout

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/identity"
)

type Handler struct {
	sequencer *Sequencer
	logger    *slog.Logger
}

func NewHandler(sequencer *Sequencer, logger *slog.Logger) *Handler {
	return &Handler{
		sequencer: sequencer,
		logger:    logger,
	}
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	profile := identity.FromContext(r.Context())
	result := h.sequencer.Checkout(r.Context(), profile, cart.KeyFromRequest(r))

	h.writeJSON(w, statusFor(result), result)
}

func statusFor(result Result) int {
	if result.Success {
		return http.StatusCreated
	}

	switch result.Reason {
	case domain.ReasonUnauthenticated:
		return http.StatusUnauthorized
	case domain.ReasonEmptyCart:
		return http.StatusUnprocessableEntity
	case domain.ReasonUnavailableProduct:
		return http.StatusConflict
	case domain.ReasonRemoteRequestFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
