package catalog

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/joao-fontenele/storefront/internal/domain"
)

const (
	homeLimit     = 4
	fallbackLimit = 3
)

// anyCategory is what clients send when no category is chosen.
const anyCategory = "any"

var ErrEmptyQuery = errors.New("input or category is required")

var shoeKeywords = []string{
	"running", "casual", "formal", "sports", "athletic", "walking", "hiking",
	"outdoor", "sneakers", "boots", "sandals", "comfortable", "leather",
	"canvas", "waterproof", "breathable", "lightweight", "durable", "stylish",
	"fashion", "trendy", "classic", "modern", "work", "office", "gym",
	"training", "jogging", "trail",
}

type Store interface {
	List(ctx context.Context, category string, limit int) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Reviews(ctx context.Context, productID string) ([]domain.Review, error)
}

type Service struct {
	store Store

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(store Store, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Service{store: store, rng: rng}
}

// ExtractKeywords returns the known shoe keywords contained in input, in
// vocabulary order.
func ExtractKeywords(input string) []string {
	input = strings.ToLower(input)

	var keywords []string
	for _, keyword := range shoeKeywords {
		if strings.Contains(input, keyword) {
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}

// Search matches query case-insensitively against product names and
// descriptions. An empty query matches everything.
func (s *Service) Search(ctx context.Context, query, category string) ([]domain.Product, error) {
	products, err := s.store.List(ctx, normalizeCategory(category), 0)
	if err != nil {
		return nil, domain.Remote("list products", err)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return products, nil
	}

	return filter(products, func(p domain.Product) bool {
		return matchesAny(p, []string{query})
	}), nil
}

// Recommend picks products for a free-text request. Products of the chosen
// category are narrowed by keyword; with no category the keywords alone
// decide. When nothing matches it falls back to the whole category and then
// to a few random products.
func (s *Service) Recommend(ctx context.Context, input, category string) ([]domain.Product, error) {
	category = normalizeCategory(category)
	if strings.TrimSpace(input) == "" && category == "" {
		return nil, ErrEmptyQuery
	}

	products, err := s.store.List(ctx, "", 0)
	if err != nil {
		return nil, domain.Remote("list products", err)
	}

	keywords := ExtractKeywords(input)
	inCategory := func(p domain.Product) bool { return p.Category == category }
	matchesKeywords := func(p domain.Product) bool { return matchesAny(p, keywords) }

	var matched []domain.Product
	switch {
	case category != "":
		matched = filter(products, inCategory)
		if len(keywords) > 0 {
			matched = filter(matched, matchesKeywords)
		}
	case len(keywords) > 0:
		matched = filter(products, matchesKeywords)
	}

	if len(matched) == 0 && category != "" {
		matched = filter(products, inCategory)
	}
	if len(matched) == 0 {
		matched = s.shuffled(products)
		if len(matched) > fallbackLimit {
			matched = matched[:fallbackLimit]
		}
	}

	return matched, nil
}

// Home returns up to four products of category, or four random products when
// no category is given.
func (s *Service) Home(ctx context.Context, category string) ([]domain.Product, error) {
	category = normalizeCategory(category)
	if category != "" {
		products, err := s.store.List(ctx, category, homeLimit)
		if err != nil {
			return nil, domain.Remote("list products", err)
		}
		return products, nil
	}

	products, err := s.store.List(ctx, "", 0)
	if err != nil {
		return nil, domain.Remote("list products", err)
	}

	products = s.shuffled(products)
	if len(products) > homeLimit {
		products = products[:homeLimit]
	}
	return products, nil
}

func (s *Service) Product(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.Remote("get product", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.store.Categories(ctx)
	if err != nil {
		return nil, domain.Remote("list categories", err)
	}
	return categories, nil
}

func (s *Service) Reviews(ctx context.Context, productID string) ([]domain.Review, error) {
	reviews, err := s.store.Reviews(ctx, productID)
	if err != nil {
		return nil, domain.Remote("list reviews", err)
	}
	return reviews, nil
}

func (s *Service) shuffled(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	copy(out, products)

	s.mu.Lock()
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.mu.Unlock()

	return out
}

func normalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if strings.EqualFold(category, anyCategory) {
		return ""
	}
	return category
}

func matchesAny(p domain.Product, terms []string) bool {
	name := strings.ToLower(p.Name)
	description := strings.ToLower(p.Description)
	for _, term := range terms {
		if strings.Contains(name, term) || strings.Contains(description, term) {
			return true
		}
	}
	return false
}

func filter(products []domain.Product, keep func(domain.Product) bool) []domain.Product {
	out := []domain.Product{}
	for _, p := range products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
