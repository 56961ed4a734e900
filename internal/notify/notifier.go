package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// Notifier turns order.placed events into confirmation emails.
type Notifier struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotifier(emailServiceURL string, client *http.Client, logger *slog.Logger) *Notifier {
	return &Notifier{
		emailServiceURL: strings.TrimRight(emailServiceURL, "/"),
		httpClient:      client,
		logger:          logger,
	}
}

type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (n *Notifier) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	if event.Email == "" {
		n.logger.Warn("order has no contact email, skipping confirmation", "order_id", event.OrderID, "user_id", event.UserID)
		return nil
	}

	n.logger.Info("sending order confirmation", "order_id", event.OrderID, "user_id", event.UserID)

	if err := n.send(ctx, Confirmation(event)); err != nil {
		return fmt.Errorf("send confirmation for order %s: %w", event.OrderID, err)
	}

	return nil
}

// Confirmation renders the email sent after an order is placed.
func Confirmation(event domain.OrderPlacedEvent) Email {
	var body strings.Builder
	fmt.Fprintf(&body, "Thanks for your order! Order %s contains:\n", event.OrderID)

	total := decimal.Zero
	priced := true
	for _, item := range event.Items {
		name := item.ProductID
		if item.Product != nil && item.Product.Name != "" {
			name = item.Product.Name
		}
		fmt.Fprintf(&body, "- %d x %s\n", item.Quantity, name)

		if item.Product.Resolved() {
			total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		} else {
			priced = false
		}
	}
	if priced && len(event.Items) > 0 {
		fmt.Fprintf(&body, "Total: %s\n", total.StringFixed(2))
	}

	return Email{
		To:      event.Email,
		Subject: "Order Confirmation: " + event.OrderID,
		Body:    body.String(),
	}
}

func (n *Notifier) send(ctx context.Context, email Email) error {
	data, err := json.Marshal(email)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
