package identity

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type Handler struct {
	holder *Holder
	logger *slog.Logger
}

func NewHandler(holder *Holder, logger *slog.Logger) *Handler {
	return &Handler{
		holder: holder,
		logger: logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	result := h.holder.Login(r.Context(), req.Email, req.Password)
	if !result.Success {
		h.writeJSON(w, http.StatusUnauthorized, result)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		h.writeError(w, http.StatusBadRequest, "Name, email and password are required")
		return
	}

	result := h.holder.Register(r.Context(), req.Email, req.Password, strings.TrimSpace(req.Name))
	if !result.Success {
		h.writeJSON(w, http.StatusBadRequest, result)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token == "" {
		h.writeJSON(w, http.StatusOK, domain.OK())
		return
	}

	result := h.holder.Logout(r.Context(), token)
	if !result.Success {
		h.writeJSON(w, http.StatusBadGateway, result)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	profile := FromContext(r.Context())
	if profile == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var update domain.ProfileUpdate
	if err := decoder.Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "only name and avatar can be changed")
		return
	}

	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		h.writeError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}

	result := h.holder.UpdateProfile(r.Context(), TokenFromRequest(r), update)
	if !result.Success {
		status := http.StatusBadGateway
		if result.Reason == domain.ReasonUnauthenticated {
			status = http.StatusUnauthorized
		}
		h.writeJSON(w, status, result)
		return
	}

	h.logger.Info("profile updated", "user_id", result.Profile.ID)
	h.writeJSON(w, http.StatusOK, result)
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
