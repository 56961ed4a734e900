package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func placedEvent() domain.OrderPlacedEvent {
	return domain.OrderPlacedEvent{
		OrderID: "order-1",
		UserID:  "user-1",
		Email:   "ada@example.com",
		Items: []domain.OrderLineItem{
			{ProductID: "1", Quantity: 2, Product: &domain.Product{ID: "1", Name: "Running Pro Max", Price: decimal.RequireFromString("129.99")}},
			{ProductID: "4", Quantity: 1, Product: &domain.Product{ID: "4", Name: "Trail Blazer", Price: decimal.RequireFromString("10.01")}},
		},
	}
}

func TestConfirmation(t *testing.T) {
	email := Confirmation(placedEvent())

	assert.Equal(t, "ada@example.com", email.To)
	assert.Equal(t, "Order Confirmation: order-1", email.Subject)
	assert.Contains(t, email.Body, "- 2 x Running Pro Max")
	assert.Contains(t, email.Body, "- 1 x Trail Blazer")
	assert.Contains(t, email.Body, "Total: 269.99")
}

func TestConfirmation_UnpricedItemsOmitTotal(t *testing.T) {
	event := placedEvent()
	event.Items = append(event.Items, domain.OrderLineItem{ProductID: "9", Quantity: 1})

	email := Confirmation(event)

	assert.Contains(t, email.Body, "- 1 x 9")
	assert.NotContains(t, email.Body, "Total:")
}

func TestNotifier_Handle(t *testing.T) {
	var got Email
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(server.URL+"/", server.Client(), discardLogger())

	payload, err := json.Marshal(placedEvent())
	require.NoError(t, err)

	require.NoError(t, n.Handle(context.Background(), payload))
	assert.Equal(t, "ada@example.com", got.To)
}

func TestNotifier_Handle_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, server.Client(), discardLogger())

	t.Run("malformed payload", func(t *testing.T) {
		assert.Error(t, n.Handle(context.Background(), []byte("{")))
	})

	t.Run("email service error", func(t *testing.T) {
		payload, err := json.Marshal(placedEvent())
		require.NoError(t, err)

		err = n.Handle(context.Background(), payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 502")
	})

	t.Run("missing email is skipped", func(t *testing.T) {
		event := placedEvent()
		event.Email = ""
		payload, err := json.Marshal(event)
		require.NoError(t, err)

		assert.NoError(t, n.Handle(context.Background(), payload))
	})
}
