package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/identity"
)

func TestHandler_HandleCheckout(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		signedIn   bool
		lines      int
		unknown    bool
		itemsErr   error
		wantStatus int
		wantReason string
	}{
		{name: "anonymous", signedIn: false, lines: 1, wantStatus: http.StatusUnauthorized, wantReason: "unauthenticated"},
		{name: "empty cart", signedIn: true, lines: 0, wantStatus: http.StatusUnprocessableEntity, wantReason: "empty_cart"},
		{name: "store failure", signedIn: true, lines: 1, itemsErr: errors.New("boom"), wantStatus: http.StatusBadGateway, wantReason: "remote_request_failed"},
		{name: "unknown product", signedIn: true, lines: 1, unknown: true, wantStatus: http.StatusConflict, wantReason: "unavailable_product"},
		{name: "success", signedIn: true, lines: 2, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := newFakeOrders()
			orders.itemsErr = tt.itemsErr
			carts := newCarts(t)
			fillCart(ctx, carts, "cart-1", tt.lines)
			if tt.unknown {
				carts.AddItem(ctx, "cart-1", domain.Product{ID: "does-not-exist"}, 2)
			}
			h := NewHandler(NewSequencer(orders, carts, discardLogger()), discardLogger())

			req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
			req.Header.Set(cart.KeyHeader, "cart-1")
			if tt.signedIn {
				req = req.WithContext(identity.WithProfile(req.Context(), randomProfile()))
			}
			rec := httptest.NewRecorder()

			h.HandleCheckout(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			if tt.wantReason == "" {
				assert.Equal(t, true, body["success"])
				assert.NotEmpty(t, body["order_id"])
				return
			}
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantReason, body["reason"])
			assert.NotEmpty(t, body["error"])
		})
	}
}
