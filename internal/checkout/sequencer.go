package checkout

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/domain"
)

const (
	msgUnauthenticated = "You must be logged in to checkout"
	msgEmptyCart       = "Your cart is empty"
	msgUnavailable     = "Some items in your cart are no longer available"

	defaultPlacementTimeout = 15 * time.Second
)

// OrderStore creates an order and then its line items as two separate writes.
type OrderStore interface {
	CreateOrder(ctx context.Context, userID string) (domain.Order, error)
	CreateLineItems(ctx context.Context, orderID string, items []domain.OrderLineItem) error
}

// AtomicOrderStore places an order together with its line items in a single
// transaction. Stores implementing it never leave an order without items.
type AtomicOrderStore interface {
	PlaceOrder(ctx context.Context, userID string, items []domain.OrderLineItem) (domain.Order, error)
}

type Carts interface {
	Get(ctx context.Context, key string) cart.View
	Clear(ctx context.Context, key string) cart.View
	Enrich(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Recorder interface {
	RecordCheckout(ctx context.Context, outcome string)
	RecordOrphanedOrder(ctx context.Context)
}

type Result struct {
	domain.Result
	OrderID string `json:"order_id,omitempty"`
}

type Option func(*Sequencer)

func WithPublisher(publisher Publisher) Option {
	return func(s *Sequencer) {
		s.publisher = publisher
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Sequencer) {
		s.recorder = recorder
	}
}

// WithPlacementTimeout bounds a shared checkout run. The run is detached from
// the caller that started it, so this is its only deadline.
func WithPlacementTimeout(timeout time.Duration) Option {
	return func(s *Sequencer) {
		s.timeout = timeout
	}
}

type Sequencer struct {
	orders    OrderStore
	carts     Carts
	publisher Publisher
	recorder  Recorder
	logger    *slog.Logger
	timeout   time.Duration
	flight    singleflight.Group
}

func NewSequencer(orders OrderStore, carts Carts, logger *slog.Logger, opts ...Option) *Sequencer {
	s := &Sequencer{
		orders:  orders,
		carts:   carts,
		logger:  logger,
		timeout: defaultPlacementTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Checkout turns the cart into an order owned by profile. Concurrent calls for
// the same cart share one execution and one result.
func (s *Sequencer) Checkout(ctx context.Context, profile *domain.Profile, cartKey string) Result {
	if profile == nil {
		return s.fail(ctx, domain.ErrUnauthenticated, msgUnauthenticated)
	}
	if cartKey == "" {
		return s.fail(ctx, domain.ErrEmptyCart, msgEmptyCart)
	}

	v, _, shared := s.flight.Do(cartKey, func() (any, error) {
		// Coalesced callers wait on this run, so one of them going away must
		// not cancel it for the rest.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.checkout(runCtx, profile, cartKey), nil
	})
	if shared {
		s.logger.Info("coalesced concurrent checkout", "cart_id", cartKey, "user_id", profile.ID)
	}

	return v.(Result)
}

func (s *Sequencer) checkout(ctx context.Context, profile *domain.Profile, cartKey string) Result {
	view := s.carts.Get(ctx, cartKey)
	if view.Empty() {
		return s.fail(ctx, domain.ErrEmptyCart, msgEmptyCart)
	}

	if !resolved(view) {
		if err := s.carts.Enrich(ctx, cartKey); err != nil {
			return s.fail(ctx, err, err.Error())
		}
		view = s.carts.Get(ctx, cartKey)
		if view.Empty() {
			return s.fail(ctx, domain.ErrEmptyCart, msgEmptyCart)
		}
		if missing := unresolvedIDs(view); len(missing) > 0 {
			s.logger.Warn("cart holds products missing from the catalog", "cart_id", cartKey, "product_ids", missing)
			return s.fail(ctx, domain.ErrUnavailableProduct, msgUnavailable)
		}
	}

	items := make([]domain.OrderLineItem, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, domain.OrderLineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Product:   item.Product,
		})
	}

	order, err := s.placeOrder(ctx, profile.ID, items)
	if err != nil {
		return s.fail(ctx, err, err.Error())
	}

	s.carts.Clear(ctx, cartKey)

	if s.publisher != nil {
		event := domain.OrderPlacedEvent{
			OrderID:   order.ID,
			UserID:    profile.ID,
			Email:     profile.Email,
			Items:     items,
			Timestamp: order.CreatedAt,
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
			s.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
		}
	}

	s.record(ctx, "success")
	s.logger.Info("order placed", "order_id", order.ID, "user_id", profile.ID, "lines", len(items))

	return Result{Result: domain.OK(), OrderID: order.ID}
}

func (s *Sequencer) placeOrder(ctx context.Context, userID string, items []domain.OrderLineItem) (domain.Order, error) {
	if atomic, ok := s.orders.(AtomicOrderStore); ok {
		order, err := atomic.PlaceOrder(ctx, userID, items)
		if err != nil {
			return domain.Order{}, domain.Remote("place order", err)
		}
		return order, nil
	}

	order, err := s.orders.CreateOrder(ctx, userID)
	if err != nil {
		return domain.Order{}, domain.Remote("create order", err)
	}

	if err := s.orders.CreateLineItems(ctx, order.ID, items); err != nil {
		// The order row stays behind with no line items; nothing rolls it back.
		s.logger.Error("order left without line items", "error", err, "order_id", order.ID, "user_id", userID)
		if s.recorder != nil {
			s.recorder.RecordOrphanedOrder(ctx)
		}
		return domain.Order{}, domain.Remote("create order items", err)
	}

	order.Items = items
	return order, nil
}

func resolved(view cart.View) bool {
	return len(unresolvedIDs(view)) == 0
}

func unresolvedIDs(view cart.View) []string {
	var ids []string
	for _, item := range view.Items {
		if !item.Product.Resolved() {
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

func (s *Sequencer) fail(ctx context.Context, err error, message string) Result {
	result := domain.FailWith(err, message)
	s.record(ctx, string(result.Reason))
	s.logger.Warn("checkout failed", "reason", result.Reason, "error", err)
	return Result{Result: result}
}

func (s *Sequencer) record(ctx context.Context, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordCheckout(ctx, outcome)
	}
}
