package repositories

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogServer(t *testing.T) *HTTPCatalogRepository {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":1,"title":"Backpack","price":109.95,"category":"men's clothing","rating":{"rate":3.9,"count":120}},
			{"id":2,"title":"Ring","price":"9.99","category":"jewelery","rating":{"rate":4.1,"count":3}}
		]`))
	})
	mux.HandleFunc("/products/categories", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["electronics","jewelery"]`))
	})
	mux.HandleFunc("/products/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":1,"title":"Backpack","price":109.95}`))
	})
	mux.HandleFunc("/products/99", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/products/500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewHTTPCatalogRepository(srv.Client(), *u)
}

func TestCatalogRepository_ListProducts(t *testing.T) {
	repo := newCatalogServer(t)

	products, err := repo.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Backpack", products[0].Title)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("109.95")))
	assert.True(t, products[1].Price.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, 120, products[0].Rating.Count)
}

func TestCatalogRepository_ListCategories(t *testing.T) {
	repo := newCatalogServer(t)

	categories, err := repo.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"electronics", "jewelery"}, categories)
}

func TestCatalogRepository_GetProduct(t *testing.T) {
	repo := newCatalogServer(t)
	ctx := context.Background()

	product, err := repo.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Backpack", product.Title)

	_, err = repo.GetProduct(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetProduct(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetProduct(ctx, 500)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
