package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateOrder(ctx context.Context, userID string) (domain.Order, error) {
	return insertOrder(ctx, r.db, userID)
}

// CreateLineItems inserts every item for orderID in one statement.
func (r *Repository) CreateLineItems(ctx context.Context, orderID string, items []domain.OrderLineItem) error {
	_, err := insertLineItems(ctx, r.db, orderID, items)
	return err
}

// PlaceOrder writes the order and its line items in one transaction.
func (r *Repository) PlaceOrder(ctx context.Context, userID string, items []domain.OrderLineItem) (domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := insertOrder(ctx, tx, userID)
	if err != nil {
		return domain.Order{}, err
	}

	order.Items, err = insertLineItems(ctx, tx, order.ID, items)
	if err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func insertOrder(ctx context.Context, db execer, userID string) (domain.Order, error) {
	order := domain.Order{
		ID:     uuid.New().String(),
		UserID: userID,
		Items:  []domain.OrderLineItem{},
	}

	err := db.QueryRowContext(ctx, `
		INSERT INTO orders (id, user_id)
		VALUES ($1, $2)
		RETURNING created_at
	`, order.ID, order.UserID).Scan(&order.CreatedAt)
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func insertLineItems(ctx context.Context, db execer, orderID string, items []domain.OrderLineItem) ([]domain.OrderLineItem, error) {
	if len(items) == 0 {
		return []domain.OrderLineItem{}, nil
	}

	out := make([]domain.OrderLineItem, len(items))
	ids := make([]string, len(items))
	productIDs := make([]string, len(items))
	quantities := make([]int64, len(items))

	for i, item := range items {
		item.ID = uuid.New().String()
		item.OrderID = orderID
		out[i] = item

		ids[i] = item.ID
		productIDs[i] = item.ProductID
		quantities[i] = int64(item.Quantity)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity)
		SELECT t.id, $2, t.product_id, t.quantity
		FROM unnest($1::text[], $3::text[], $4::int[]) AS t(id, product_id, quantity)
	`, pq.Array(ids), orderID, pq.Array(productIDs), pq.Array(quantities))
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ListByUser returns the user's orders, newest first, with line items joined
// to the product's id, name and price.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderLineItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	items, err := r.lineItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// GetByID returns nil when no order has the given id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	order.Items, err = r.lineItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *Repository) lineItems(ctx context.Context, orderIDs []string) ([]domain.OrderLineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, p.name, p.price
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.OrderLineItem{}
	for rows.Next() {
		var (
			item  domain.OrderLineItem
			name  sql.NullString
			price decimal.NullDecimal
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &name, &price); err != nil {
			return nil, err
		}
		if name.Valid {
			item.Product = &domain.Product{
				ID:    item.ProductID,
				Name:  name.String,
				Price: price.Decimal,
			}
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
