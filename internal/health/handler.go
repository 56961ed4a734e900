package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type table struct {
	key   string
	name  string
	label string
}

var checkedTables = []table{
	{key: "products", name: "products", label: "Products"},
	{key: "reviews", name: "reviews", label: "Reviews"},
	{key: "orders", name: "orders", label: "Orders"},
	{key: "orderItems", name: "order_items", label: "Order items"},
	{key: "profiles", name: "profiles", label: "Profiles"},
}

type Database interface {
	PingContext(ctx context.Context) error
	CountRows(ctx context.Context, table string) (int64, error)
}

// SQLDatabase counts rows through database/sql.
type SQLDatabase struct {
	*sql.DB
}

// CountRows must only be called with table names from checkedTables.
func (d SQLDatabase) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count)
	return count, err
}

type Handler struct {
	db     Database
	logger *slog.Logger
}

func NewHandler(db Database, logger *slog.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: logger,
	}
}

type checkResponse struct {
	Success bool             `json:"success"`
	Tables  map[string]int64 `json:"tables,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (h *Handler) HandleCheckDatabase(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int64, len(checkedTables))

	for _, t := range checkedTables {
		count, err := h.db.CountRows(r.Context(), t.name)
		if err != nil {
			h.logger.Error("database check failed", "error", err, "table", t.name)
			h.writeJSON(w, http.StatusInternalServerError, checkResponse{
				Error: t.label + " table error: " + err.Error(),
			})
			return
		}
		counts[t.key] = count
	}

	h.writeJSON(w, http.StatusOK, checkResponse{Success: true, Tables: counts})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error("health check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
