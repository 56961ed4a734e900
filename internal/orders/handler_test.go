package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/identity"
)

type fakeReader struct {
	orders []domain.Order
	err    error
}

func (f *fakeReader) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []domain.Order{}
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeReader) GetByID(_ context.Context, id string) (*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, o := range f.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, nil
}

func newOrdersRouter(repo Reader) http.Handler {
	h := NewHandler(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Get("/orders", h.HandleList)
	r.Get("/orders/{id}", h.HandleGet)
	return r
}

func doOrdersRequest(t *testing.T, router http.Handler, path string, profile *domain.Profile) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if profile != nil {
		req = req.WithContext(identity.WithProfile(req.Context(), profile))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_HandleList(t *testing.T) {
	alice := &domain.Profile{ID: "alice", Email: "alice@example.com"}
	repo := &fakeReader{orders: []domain.Order{
		{ID: "o-2", UserID: "alice", CreatedAt: time.Now()},
		{ID: "o-1", UserID: "alice", CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "o-3", UserID: "bob", CreatedAt: time.Now()},
	}}

	t.Run("lists only the caller's orders", func(t *testing.T) {
		rec := doOrdersRequest(t, newOrdersRouter(repo), "/orders", alice)
		require.Equal(t, http.StatusOK, rec.Code)

		var orders []domain.Order
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&orders))
		require.Len(t, orders, 2)
		assert.Equal(t, "o-2", orders[0].ID)
		assert.Equal(t, "o-1", orders[1].ID)
	})

	t.Run("anonymous callers are rejected", func(t *testing.T) {
		rec := doOrdersRequest(t, newOrdersRouter(repo), "/orders", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("store failures are internal errors", func(t *testing.T) {
		rec := doOrdersRequest(t, newOrdersRouter(&fakeReader{err: errors.New("db down")}), "/orders", alice)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandler_HandleGet(t *testing.T) {
	alice := &domain.Profile{ID: "alice"}
	bob := &domain.Profile{ID: "bob"}
	repo := &fakeReader{orders: []domain.Order{
		{ID: "o-1", UserID: "alice", Items: []domain.OrderLineItem{{ID: "li-1", OrderID: "o-1", ProductID: "1", Quantity: 2}}},
	}}

	t.Run("owner sees the order", func(t *testing.T) {
		rec := doOrdersRequest(t, newOrdersRouter(repo), "/orders/o-1", alice)
		require.Equal(t, http.StatusOK, rec.Code)

		var order domain.Order
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&order))
		assert.Equal(t, "o-1", order.ID)
		require.Len(t, order.Items, 1)
		assert.Equal(t, 2, order.Items[0].Quantity)
	})

	t.Run("other users get not found", func(t *testing.T) {
		rec := doOrdersRequest(t, newOrdersRouter(repo), "/orders/o-1", bob)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		rec := doOrdersRequest(t, newOrdersRouter(repo), "/orders/missing", alice)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
