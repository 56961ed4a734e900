package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// ProductSource resolves product ids against the catalog in one batched read.
type ProductSource interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

// EnrichmentRecorder observes enrichment outcomes: applied, stale or failed.
type EnrichmentRecorder interface {
	RecordEnrichment(ctx context.Context, outcome string)
}

const defaultIdleTimeout = 15 * time.Minute

const (
	EnrichmentApplied = "applied"
	EnrichmentStale   = "stale"
	EnrichmentFailed  = "failed"
)

type View struct {
	Key       string                `json:"cart_id"`
	Items     []domain.CartLineItem `json:"items"`
	ItemCount int                   `json:"item_count"`
	Subtotal  decimal.Decimal       `json:"subtotal"`
	Currency  string                `json:"currency"`
	IsLoading bool                  `json:"is_loading"`
}

func (v View) Empty() bool {
	return len(v.Items) == 0
}

type cartState struct {
	items []domain.CartLineItem
	// generation changes whenever the set of distinct product ids changes.
	generation uint64
	enriching  bool
	// synced is when items last matched the snapshot store. A dirty state
	// failed to save and is the only copy of its items.
	synced time.Time
	dirty  bool
}

type Option func(*Manager)

func WithCurrency(unit currency.Unit) Option {
	return func(m *Manager) {
		m.currency = unit
	}
}

func WithRecorder(recorder EnrichmentRecorder) Option {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// WithIdleTimeout sets how long a cart is served from memory after it was last
// loaded or saved. Past that it is dropped and re-read from the snapshot store,
// which is how store-side expiry and writes from other instances show up.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.idleTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns every cart's line items. Mutations are applied under a single
// lock and persisted before the lock is released; enrichment fetches happen
// outside the lock and are merged only if the cart's product set is unchanged.
type Manager struct {
	store    SnapshotStore
	products ProductSource
	logger   *slog.Logger
	currency currency.Unit
	recorder EnrichmentRecorder

	idleTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	carts  map[string]*cartState
	queued map[string]struct{}
	wake   chan struct{}
}

func NewManager(store SnapshotStore, products ProductSource, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		products: products,
		logger:   logger,
		currency:    currency.USD,
		idleTimeout: defaultIdleTimeout,
		now:         time.Now,
		carts:       make(map[string]*cartState),
		queued:      make(map[string]struct{}),
		wake:        make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) Get(ctx context.Context, key string) View {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(ctx, key)
	defer m.release(key, st)

	return m.view(key, st)
}

func (m *Manager) AddItem(ctx context.Context, key string, product domain.Product, quantity int) View {
	if quantity < 1 {
		quantity = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(ctx, key)
	if product.ID == "" {
		m.release(key, st)
		return m.view(key, st)
	}

	for i := range st.items {
		if st.items[i].ProductID == product.ID {
			st.items[i].Quantity += quantity
			m.commit(ctx, key, st, false)
			return m.view(key, st)
		}
	}

	item := domain.CartLineItem{
		ID:        uuid.NewString(),
		ProductID: product.ID,
		Quantity:  quantity,
	}
	if product.Resolved() {
		snapshot := product
		item.Product = &snapshot
	}
	st.items = append(st.items, item)
	m.commit(ctx, key, st, true)

	return m.view(key, st)
}

func (m *Manager) RemoveItem(ctx context.Context, key, productID string) View {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(ctx, key)
	defer m.release(key, st)
	m.remove(ctx, key, st, productID)

	return m.view(key, st)
}

func (m *Manager) UpdateQuantity(ctx context.Context, key, productID string, quantity int) View {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(ctx, key)
	defer m.release(key, st)
	if quantity <= 0 {
		m.remove(ctx, key, st, productID)
		return m.view(key, st)
	}

	for i := range st.items {
		if st.items[i].ProductID == productID {
			st.items[i].Quantity = quantity
			m.commit(ctx, key, st, false)
			break
		}
	}

	return m.view(key, st)
}

func (m *Manager) Clear(ctx context.Context, key string) View {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Dropping the state makes any in-flight enrichment for it stale.
	delete(m.carts, key)
	delete(m.queued, key)

	if err := m.store.Remove(ctx, key); err != nil {
		m.logger.Error("failed to remove cart snapshot", "error", err, "cart_id", key)
	}

	return m.view(key, &cartState{})
}

// Enrich fetches catalog data for every product in the cart and merges it into
// the line items. A response is dropped when the cart's product set changed
// while the fetch was in flight.
func (m *Manager) Enrich(ctx context.Context, key string) error {
	m.mu.Lock()
	st := m.state(ctx, key)
	generation := st.generation
	ids := productIDs(st.items)
	if len(ids) == 0 {
		st.enriching = false
		m.release(key, st)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	products, err := m.products.ProductsByIDs(ctx, ids)

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.carts[key] == st && st.generation == generation
	if err != nil {
		if current {
			st.enriching = false
		}
		m.record(ctx, EnrichmentFailed)
		m.logger.Error("failed to fetch cart products", "error", err, "cart_id", key)
		return domain.Remote("fetch cart products", err)
	}

	if !current {
		m.record(ctx, EnrichmentStale)
		m.logger.Debug("dropping stale cart enrichment", "cart_id", key, "generation", generation)
		return nil
	}

	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for i := range st.items {
		if p, ok := byID[st.items[i].ProductID]; ok {
			st.items[i].Product = &p
		} else {
			st.items[i].Product = nil
		}
	}
	st.enriching = false
	m.persist(ctx, key, st)
	m.record(ctx, EnrichmentApplied)

	return nil
}

// Run drains queued enrichment requests until ctx is cancelled. Requests for
// the same cart that pile up while a fetch is running collapse into one. It
// also evicts carts that have sat idle past the idle timeout.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sweep()
			continue
		case <-m.wake:
		}

		for _, key := range m.drain() {
			if err := m.Enrich(ctx, key); err != nil && ctx.Err() == nil {
				m.logger.Warn("cart enrichment failed", "error", err, "cart_id", key)
			}
		}
	}
}

func (m *Manager) drain() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.queued))
	for key := range m.queued {
		keys = append(keys, key)
	}
	clear(m.queued)

	return keys
}

// sweep drops idle carts from memory. Their snapshots stay in the store.
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key, st := range m.carts {
		if m.idle(key, st) {
			delete(m.carts, key)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Debug("evicted idle carts", "count", evicted, "remaining", len(m.carts))
	}
}

// idle reports whether st can be dropped and later re-read from the store
// without losing anything. m.mu must be held.
func (m *Manager) idle(key string, st *cartState) bool {
	if st.enriching || st.dirty {
		return false
	}
	if _, ok := m.queued[key]; ok {
		return false
	}
	return m.now().Sub(st.synced) >= m.idleTimeout
}

// release drops st from memory once it holds nothing; an empty cart reads the
// same from the store. m.mu must be held.
func (m *Manager) release(key string, st *cartState) {
	if len(st.items) > 0 || st.enriching || st.dirty || m.carts[key] != st {
		return
	}
	if _, ok := m.queued[key]; ok {
		return
	}
	delete(m.carts, key)
}

// state returns the in-memory cart for key, hydrating it from the snapshot
// store on first access or once the cached copy has gone idle. m.mu must be
// held.
func (m *Manager) state(ctx context.Context, key string) *cartState {
	if st, ok := m.carts[key]; ok {
		if !m.idle(key, st) {
			return st
		}
		delete(m.carts, key)
	}

	st := &cartState{synced: m.now()}
	m.carts[key] = st

	data, err := m.store.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			m.logger.Error("failed to load cart snapshot", "error", err, "cart_id", key)
		}
		return st
	}

	var items []domain.CartLineItem
	if err := json.Unmarshal(data, &items); err != nil {
		m.logger.Error("failed to parse cart snapshot", "error", err, "cart_id", key)
		return st
	}

	st.items = normalize(items)
	if len(st.items) > 0 {
		st.generation++
		st.enriching = true
		m.enqueue(key)
	}

	return st
}

func (m *Manager) remove(ctx context.Context, key string, st *cartState, productID string) {
	for i := range st.items {
		if st.items[i].ProductID == productID {
			st.items = append(st.items[:i], st.items[i+1:]...)
			m.commit(ctx, key, st, true)
			return
		}
	}
}

// commit persists st and, when the product set changed, schedules enrichment.
// m.mu must be held.
func (m *Manager) commit(ctx context.Context, key string, st *cartState, productsChanged bool) {
	if productsChanged {
		st.generation++
		st.enriching = len(st.items) > 0
		if st.enriching {
			m.enqueue(key)
		}
	}
	m.persist(ctx, key, st)
}

func (m *Manager) persist(ctx context.Context, key string, st *cartState) {
	data, err := json.Marshal(st.items)
	if err != nil {
		m.logger.Error("failed to encode cart snapshot", "error", err, "cart_id", key)
		return
	}

	if err := m.store.Save(ctx, key, data); err != nil {
		m.logger.Error("failed to save cart snapshot", "error", err, "cart_id", key)
		st.dirty = true
		return
	}
	st.synced = m.now()
	st.dirty = false
}

func (m *Manager) enqueue(key string) {
	m.queued[key] = struct{}{}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) record(ctx context.Context, outcome string) {
	if m.recorder != nil {
		m.recorder.RecordEnrichment(ctx, outcome)
	}
}

func (m *Manager) view(key string, st *cartState) View {
	v := View{
		Key:       key,
		Items:     make([]domain.CartLineItem, len(st.items)),
		Subtotal:  decimal.Zero,
		Currency:  m.currency.String(),
		IsLoading: st.enriching,
	}
	copy(v.Items, st.items)

	for _, item := range st.items {
		v.ItemCount += item.Quantity
		if item.Product.Resolved() {
			v.Subtotal = v.Subtotal.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	return v
}

func productIDs(items []domain.CartLineItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// normalize repairs a snapshot that breaks the cart invariants: it drops
// non-positive quantities and folds duplicate products into one line.
func normalize(items []domain.CartLineItem) []domain.CartLineItem {
	out := make([]domain.CartLineItem, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}

	return out
}
