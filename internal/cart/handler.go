package cart

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront/internal/domain"
)

const (
	KeyHeader  = "X-Cart-ID"
	keyCookie  = "cart_id"
	cookieLife = 30 * 24 * time.Hour
)

// KeyFromRequest returns the cart key the client presented, or "" if none.
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(KeyHeader); key != "" {
		return key
	}
	if cookie, err := r.Cookie(keyCookie); err == nil {
		return cookie.Value
	}
	return ""
}

type Handler struct {
	carts  *Manager
	logger *slog.Logger
}

func NewHandler(carts *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		carts:  carts,
		logger: logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := h.ensureKey(w, r)
	h.writeJSON(w, http.StatusOK, h.carts.Get(r.Context(), key))
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}
	if req.Quantity < 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	key := h.ensureKey(w, r)
	view := h.carts.AddItem(r.Context(), key, domain.Product{ID: req.ProductID}, req.Quantity)

	h.logger.Info("cart item added", "cart_id", key, "product_id", req.ProductID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, view)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := h.ensureKey(w, r)
	view := h.carts.UpdateQuantity(r.Context(), key, productID, req.Quantity)

	h.logger.Info("cart quantity updated", "cart_id", key, "product_id", productID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	key := h.ensureKey(w, r)
	view := h.carts.RemoveItem(r.Context(), key, productID)

	h.logger.Info("cart item removed", "cart_id", key, "product_id", productID)
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	key := h.ensureKey(w, r)
	view := h.carts.Clear(r.Context(), key)

	h.logger.Info("cart cleared", "cart_id", key)
	h.writeJSON(w, http.StatusOK, view)
}

// ensureKey returns the request's cart key, minting one and handing it back
// to the client when the request carries none.
func (h *Handler) ensureKey(w http.ResponseWriter, r *http.Request) string {
	if key := KeyFromRequest(r); key != "" {
		return key
	}

	key := uuid.NewString()
	w.Header().Set(KeyHeader, key)
	http.SetCookie(w, &http.Cookie{
		Name:     keyCookie,
		Value:    key,
		Path:     "/",
		MaxAge:   int(cookieLife.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return key
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
