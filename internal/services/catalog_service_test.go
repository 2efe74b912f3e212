package services

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogRepo struct {
	products   []models.Product
	categories []string
	listErr    error
	lookups    int
}

func (r *fakeCatalogRepo) ListProducts(ctx context.Context) ([]models.Product, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.products, nil
}

func (r *fakeCatalogRepo) ListCategories(ctx context.Context) ([]string, error) {
	return r.categories, nil
}

func (r *fakeCatalogRepo) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	r.lookups++
	if id == 999 {
		p := models.Product{ID: 999, Title: "Upstream only"}
		return &p, nil
	}
	return nil, fmt.Errorf("failed to get product %d: %w", id, repositories.ErrNotFound)
}

// 25 products: odd ids are "jewelery", even ids "electronics". Every fifth
// title mentions a backpack.
func newFakeCatalog() *fakeCatalogRepo {
	repo := &fakeCatalogRepo{categories: []string{"electronics", "jewelery"}}
	for i := 1; i <= 25; i++ {
		title := fmt.Sprintf("Item %d", i)
		if i%5 == 0 {
			title = fmt.Sprintf("Fjallraven BackPack %d", i)
		}
		category := "electronics"
		if i%2 == 1 {
			category = "jewelery"
		}
		repo.products = append(repo.products, models.Product{
			ID:       i,
			Title:    title,
			Category: category,
			Price:    decimal.NewFromFloat(9.95).Add(decimal.NewFromInt(int64(i))),
		})
	}
	return repo
}

func TestCatalogService_PagingAndLoadMore(t *testing.T) {
	svc := NewCatalogService(newFakeCatalog(), 10)
	require.NoError(t, svc.Load(context.Background()))

	assert.Len(t, svc.Visible(), 10)
	assert.True(t, svc.HasMore())

	assert.True(t, svc.LoadMore())
	assert.Len(t, svc.Visible(), 20)

	assert.True(t, svc.LoadMore())
	assert.Len(t, svc.Visible(), 25)

	assert.False(t, svc.LoadMore())
	assert.False(t, svc.HasMore())
	assert.Equal(t, []string{"electronics", "jewelery"}, svc.Categories())
}

func TestCatalogService_FiltersResetPaging(t *testing.T) {
	svc := NewCatalogService(newFakeCatalog(), 2)
	require.NoError(t, svc.Load(context.Background()))
	require.True(t, svc.LoadMore())

	svc.SetSearchQuery("backpack")
	visible := svc.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, 5, visible[0].ID)
	assert.Equal(t, 10, visible[1].ID)

	require.True(t, svc.LoadMore())
	require.True(t, svc.LoadMore())
	assert.Len(t, svc.Visible(), 5)

	// Search and category combine.
	svc.SetCategory("jewelery")
	visible = svc.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, 5, visible[0].ID)
	assert.Equal(t, 15, visible[1].ID)
	require.True(t, svc.LoadMore())
	assert.Len(t, svc.Visible(), 3)
	assert.False(t, svc.LoadMore())

	svc.SetCategory("")
	svc.SetSearchQuery("")
	assert.Len(t, svc.Visible(), 2)
	assert.True(t, svc.HasMore())
}

func TestCatalogService_NoMatches(t *testing.T) {
	svc := NewCatalogService(newFakeCatalog(), 10)
	require.NoError(t, svc.Load(context.Background()))

	svc.SetSearchQuery("does not exist")
	assert.Empty(t, svc.Visible())
	assert.False(t, svc.LoadMore())
}

func TestCatalogService_DefaultPageSize(t *testing.T) {
	svc := NewCatalogService(newFakeCatalog(), 0)
	require.NoError(t, svc.Load(context.Background()))
	assert.Len(t, svc.Visible(), DefaultPageSize)

	page, err := svc.Search(context.Background(), "", "", 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.PageSize)
}

func TestCatalogService_LoadError(t *testing.T) {
	repo := newFakeCatalog()
	repo.listErr = errBoom
	svc := NewCatalogService(repo, 10)

	err := svc.Load(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, svc.Visible())
}

func TestCatalogService_Product(t *testing.T) {
	repo := newFakeCatalog()
	svc := NewCatalogService(repo, 10)
	ctx := context.Background()
	require.NoError(t, svc.Load(ctx))

	p, err := svc.Product(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Item 3", p.Title)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.95")))
	assert.Zero(t, repo.lookups)

	p, err = svc.Product(ctx, 999)
	require.NoError(t, err)
	assert.Equal(t, "Upstream only", p.Title)

	_, err = svc.Product(ctx, 1000)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCatalogService_Search(t *testing.T) {
	svc := NewCatalogService(newFakeCatalog(), 10)
	ctx := context.Background()

	page, err := svc.Search(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Products, 10)
	assert.Equal(t, 25, page.Total)
	assert.True(t, page.HasMore)

	page, err = svc.Search(ctx, "", "", 3)
	require.NoError(t, err)
	assert.Len(t, page.Products, 5)
	assert.Equal(t, 21, page.Products[0].ID)
	assert.False(t, page.HasMore)

	page, err = svc.Search(ctx, "", "", 4)
	require.NoError(t, err)
	assert.Empty(t, page.Products)
	assert.False(t, page.HasMore)

	for _, n := range []int{math.MaxInt / 5, math.MaxInt / 10, math.MaxInt} {
		page, err = svc.Search(ctx, "", "", n)
		require.NoError(t, err)
		assert.Equal(t, n, page.Page)
		assert.Empty(t, page.Products)
		assert.Equal(t, 25, page.Total)
		assert.False(t, page.HasMore)
	}

	page, err = svc.Search(ctx, "BACKPACK", "electronics", 1)
	require.NoError(t, err)
	require.Len(t, page.Products, 2)
	assert.Equal(t, 10, page.Products[0].ID)
	assert.Equal(t, 20, page.Products[1].ID)
}
