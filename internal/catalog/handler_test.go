package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memWriter struct {
	products map[string]domain.Product
}

func (m *memWriter) Create(_ context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = "new-id"
	}
	m.products[p.ID] = *p
	return nil
}

func (m *memWriter) Update(_ context.Context, p *domain.Product) error {
	if _, ok := m.products[p.ID]; !ok {
		return domain.ErrNotFound
	}
	m.products[p.ID] = *p
	return nil
}

func (m *memWriter) Delete(_ context.Context, id string) error {
	if _, ok := m.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func newCatalogRouter(store *fakeStore, writer Writer) http.Handler {
	h := NewHandler(newTestService(store), discardLogger())
	admin := NewAdminHandler(writer, discardLogger())

	r := chi.NewRouter()
	r.Get("/products", h.HandleList)
	r.Get("/products/{id}", h.HandleGet)
	r.Get("/products/{id}/reviews", h.HandleReviews)
	r.Get("/categories", h.HandleCategories)
	r.Get("/recommendations", h.HandleRecommend)
	r.Get("/recommendations/home", h.HandleHome)
	r.Post("/admin/products", admin.HandleCreate)
	r.Put("/admin/products/{id}", admin.HandleUpdate)
	r.Delete("/admin/products/{id}", admin.HandleDelete)
	return r
}

func doCatalogRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_PublicRoutes(t *testing.T) {
	store := shoeStore()
	store.reviews = []domain.Review{{ID: "rv-1", ProductID: "1", Rating: 5, Comment: "Great cushioning"}}
	router := newCatalogRouter(store, &memWriter{})

	t.Run("search", func(t *testing.T) {
		rec := doCatalogRequest(router, http.MethodGet, "/products?q=hiking", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var products []domain.Product
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&products))
		require.Len(t, products, 1)
		assert.Equal(t, "Hiking Explorer", products[0].Name)
		assert.True(t, decimal.RequireFromString("149.99").Equal(products[0].Price))
	})

	t.Run("product by id", func(t *testing.T) {
		rec := doCatalogRequest(router, http.MethodGet, "/products/2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Casual Comfort")
	})

	t.Run("missing product", func(t *testing.T) {
		rec := doCatalogRequest(router, http.MethodGet, "/products/99", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reviews", func(t *testing.T) {
		rec := doCatalogRequest(router, http.MethodGet, "/products/1/reviews", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var reviews []domain.Review
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&reviews))
		require.Len(t, reviews, 1)
		assert.Equal(t, 5, reviews[0].Rating)
	})

	t.Run("categories", func(t *testing.T) {
		rec := doCatalogRequest(router, http.MethodGet, "/categories", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var categories []string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&categories))
		assert.Equal(t, []string{"casual", "fashion", "hiking", "running", "sport", "work"}, categories)
	})

	t.Run("recommendations", func(t *testing.T) {
		rec := doCatalogRequest(router, http.MethodGet, "/recommendations?input=stylish+shoes", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Fashion Trend")
	})

	t.Run("recommendations need input or category", func(t *testing.T) {
		rec := doCatalogRequest(router, http.MethodGet, "/recommendations", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("home", func(t *testing.T) {
		rec := doCatalogRequest(router, http.MethodGet, "/recommendations/home?category=work", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var products []domain.Product
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&products))
		require.Len(t, products, 1)
		assert.Equal(t, "6", products[0].ID)
	})
}

func TestAdminHandler(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		router := newCatalogRouter(shoeStore(), &memWriter{products: map[string]domain.Product{}})

		tests := []struct {
			name    string
			body    string
			wantErr string
		}{
			{name: "malformed", body: `{`, wantErr: "invalid request body"},
			{name: "blank name", body: `{"name": "  ", "price": "10.00"}`, wantErr: "Product name is required"},
			{name: "zero price", body: `{"name": "Trail Blazer", "price": "0"}`, wantErr: "Price must be greater than zero"},
			{name: "negative price", body: `{"name": "Trail Blazer", "price": -5}`, wantErr: "Price must be greater than zero"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := doCatalogRequest(router, http.MethodPost, "/admin/products", tt.body)
				require.Equal(t, http.StatusBadRequest, rec.Code)

				var body map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, tt.wantErr, body["error"])
			})
		}
	})

	t.Run("create, update and delete", func(t *testing.T) {
		writer := &memWriter{products: map[string]domain.Product{}}
		router := newCatalogRouter(shoeStore(), writer)

		rec := doCatalogRequest(router, http.MethodPost, "/admin/products", `{"name": "Trail Blazer", "price": "139.50", "category": "hiking"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Contains(t, writer.products, "new-id")
		assert.True(t, decimal.RequireFromString("139.5").Equal(writer.products["new-id"].Price))

		rec = doCatalogRequest(router, http.MethodPut, "/admin/products/new-id", `{"name": "Trail Blazer 2", "price": 149}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Trail Blazer 2", writer.products["new-id"].Name)

		rec = doCatalogRequest(router, http.MethodDelete, "/admin/products/new-id", "")
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, writer.products)

		rec = doCatalogRequest(router, http.MethodDelete, "/admin/products/new-id", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("update of a missing product", func(t *testing.T) {
		router := newCatalogRouter(shoeStore(), &memWriter{products: map[string]domain.Product{}})

		rec := doCatalogRequest(router, http.MethodPut, "/admin/products/ghost", `{"name": "Ghost", "price": 1}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
