package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"golang.org/x/sync/errgroup"
)

const DefaultPageSize = 10

var ErrProductNotFound = errors.New("product not found")

// ProductPage is one window of a filtered product listing.
type ProductPage struct {
	Products []models.Product `json:"products"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int              `json:"total"`
	HasMore  bool             `json:"has_more"`
}

// CatalogService keeps the browsing state of one catalog screen: the loaded
// products, the search and category filters and how many pages are shown.
type CatalogService struct {
	repo     repositories.CatalogRepository
	pageSize int

	mu         sync.RWMutex
	products   []models.Product
	categories []string
	query      string
	category   string
	page       int
	filtered   []models.Product
}

func NewCatalogService(repo repositories.CatalogRepository, pageSize int) *CatalogService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &CatalogService{
		repo:     repo,
		pageSize: pageSize,
		page:     1,
	}
}

// Load fetches products and categories and reapplies the current filters.
func (s *CatalogService) Load(ctx context.Context) error {
	var products []models.Product
	var categories []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.repo.ListProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.repo.ListCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
	s.categories = categories
	s.page = 1
	s.filtered = FilterProducts(s.products, s.query, s.category)
	return nil
}

// SetSearchQuery filters by a case-insensitive title substring and goes
// back to the first page.
func (s *CatalogService) SetSearchQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
	s.page = 1
	s.filtered = FilterProducts(s.products, s.query, s.category)
}

// SetCategory filters by exact category; "" shows every category.
func (s *CatalogService) SetCategory(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.category = category
	s.page = 1
	s.filtered = FilterProducts(s.products, s.query, s.category)
}

// LoadMore reveals the next page. It reports false when everything matching
// the filters is already visible.
func (s *CatalogService) LoadMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page*s.pageSize >= len(s.filtered) {
		return false
	}
	s.page++
	return true
}

func (s *CatalogService) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page*s.pageSize < len(s.filtered)
}

// Visible returns the filtered products of every page revealed so far.
func (s *CatalogService) Visible() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := min(s.page*s.pageSize, len(s.filtered))
	out := make([]models.Product, n)
	copy(out, s.filtered[:n])
	return out
}

func (s *CatalogService) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.categories...)
}

// Product returns a loaded product, falling back to the upstream catalog.
func (s *CatalogService) Product(ctx context.Context, id int) (*models.Product, error) {
	s.mu.RLock()
	for i := range s.products {
		if s.products[i].ID == id {
			p := s.products[i]
			s.mu.RUnlock()
			return &p, nil
		}
	}
	s.mu.RUnlock()

	p, err := s.repo.GetProduct(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Search fetches the catalog and returns a single page of it. It keeps no
// state and is what the HTTP API serves.
func (s *CatalogService) Search(ctx context.Context, query, category string, page int) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	filtered := FilterProducts(products, query, category)

	// Pages past the last one are empty; compare page counts so a huge page
	// number cannot overflow the offset.
	start, end := len(filtered), len(filtered)
	if pages := (len(filtered) + s.pageSize - 1) / s.pageSize; page <= pages {
		start = (page - 1) * s.pageSize
		end = min(start+s.pageSize, len(filtered))
	}

	return &ProductPage{
		Products: filtered[start:end],
		Page:     page,
		PageSize: s.pageSize,
		Total:    len(filtered),
		HasMore:  end < len(filtered),
	}, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func FilterProducts(products []models.Product, query, category string) []models.Product {
	query = strings.ToLower(query)
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if query != "" && !strings.Contains(strings.ToLower(p.Title), query) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	return out
}
