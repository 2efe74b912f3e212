package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/prudhvinik1/storefront/internal/models"
)

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPCatalogRepository reads the product catalog from a fakestore-compatible API.
type HTTPCatalogRepository struct {
	client  httpClient
	baseURL url.URL
}

func NewHTTPCatalogRepository(client httpClient, baseURL url.URL) *HTTPCatalogRepository {
	return &HTTPCatalogRepository{
		client:  client,
		baseURL: baseURL,
	}
}

func (r *HTTPCatalogRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.getJSON(ctx, r.baseURL.JoinPath("products"), &products); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (r *HTTPCatalogRepository) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := r.getJSON(ctx, r.baseURL.JoinPath("products", "categories"), &categories); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// GetProduct returns ErrNotFound for unknown ids. The upstream API answers
// those with either 404 or an empty 200 body.
func (r *HTTPCatalogRepository) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	var product *models.Product
	if err := r.getJSON(ctx, r.baseURL.JoinPath("products", strconv.Itoa(id)), &product); err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	if product == nil {
		return nil, ErrNotFound
	}
	return product, nil
}

func (r *HTTPCatalogRepository) getJSON(ctx context.Context, u *url.URL, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		// An empty body decodes as "not found" for single-item lookups.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
