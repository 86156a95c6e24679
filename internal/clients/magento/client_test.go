package magento

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/models"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:           server.URL,
		AccessToken:       "token-123",
		RequestsPerSecond: 1000,
	})
}

func TestCreateProduct_Success(t *testing.T) {
	var captured map[string]interface{}
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/V1/products", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":42,"sku":"WB-01"}`))
	}))

	product := &models.Product{
		SKU:            "WB-01",
		Name:           "Backpack",
		Type:           models.ProductTypeSimple,
		AttributeSetID: 9,
		Price:          36,
		Status:         models.ProductStatusEnabled,
		Visibility:     models.VisibilityCatalogAndSearch,
		StockQty:       5,
		InStock:        true,
		ManageStock:    true,
		CustomAttributes: map[string]string{
			"brand": "Driven",
		},
		CategoryRefs: []models.CategoryRef{{ID: 3}, {Path: "Unresolved/Path"}},
	}

	result, err := client.CreateProduct(context.Background(), product)
	require.NoError(t, err)
	assert.Equal(t, 42, result.ID)
	assert.Equal(t, "WB-01", result.SKU)

	payload := captured["product"].(map[string]interface{})
	assert.Equal(t, "WB-01", payload["sku"])
	assert.Equal(t, "simple", payload["type_id"])
	assert.Equal(t, float64(1), payload["status"])
	assert.Equal(t, float64(4), payload["visibility"])

	extension := payload["extension_attributes"].(map[string]interface{})
	stock := extension["stock_item"].(map[string]interface{})
	assert.Equal(t, float64(5), stock["qty"])
	assert.Equal(t, true, stock["is_in_stock"])

	// Only resolved category ids go on the wire.
	links := extension["category_links"].([]interface{})
	require.Len(t, links, 1)
	assert.Equal(t, "3", links[0].(map[string]interface{})["category_id"])

	attrs := payload["custom_attributes"].([]interface{})
	require.Len(t, attrs, 1)
	assert.Equal(t, "brand", attrs[0].(map[string]interface{})["attribute_code"])
}

func TestCreateProduct_BadRequestIsTerminal(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid attribute set"}`))
	}))

	_, err := client.CreateProduct(context.Background(), &models.Product{SKU: "WB-01"})
	require.Error(t, err)

	var remoteErr *clients.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadRequest, remoteErr.StatusCode)
	assert.Equal(t, "Invalid attribute set", remoteErr.Message)
	assert.False(t, clients.IsTransient(err))
}

func TestCreateProduct_RateLimitedIsTransient(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"Too many requests"}`))
	}))

	_, err := client.CreateProduct(context.Background(), &models.Product{SKU: "WB-01"})
	require.Error(t, err)
	assert.True(t, clients.IsTransient(err))
}

func TestCreateProduct_ConnectionErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // connection refused from here on
	client := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 1000})

	_, err := client.CreateProduct(context.Background(), &models.Product{SKU: "WB-01"})
	require.Error(t, err)

	var remoteErr *clients.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 0, remoteErr.StatusCode)
	assert.True(t, clients.IsTransient(err))
}

func TestLinkConfigurableChildren_OneCallPerChild(t *testing.T) {
	var calls []string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, r.URL.Path+":"+body["childSku"])
		w.Write([]byte(`true`))
	}))

	err := client.LinkConfigurableChildren(context.Background(), "WB-CFG", []string{"WB-S", "WB-M"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/rest/V1/configurable-products/WB-CFG/child:WB-S",
		"/rest/V1/configurable-products/WB-CFG/child:WB-M",
	}, calls)
}

func TestLinkConfigurableChildren_StopsOnFailure(t *testing.T) {
	count := 0
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"no such attribute"}`))
	}))

	err := client.LinkConfigurableChildren(context.Background(), "WB-CFG", []string{"WB-S", "WB-M"})
	require.Error(t, err)
	assert.Equal(t, 1, count)
	assert.Contains(t, err.Error(), "WB-S")
}

func TestGetBrands(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/V1/products/attributes/brand/options", r.URL.Path)
		w.Write([]byte(`[{"label":" ","value":""},{"label":"Driven","value":"12"},{"label":"Atlas","value":"13"}]`))
	}))

	brands, err := client.GetBrands(context.Background())
	require.NoError(t, err)
	// The placeholder empty option is skipped.
	require.Len(t, brands, 2)
	assert.Equal(t, "Driven", brands[0].Label)
	assert.Equal(t, "12", brands[0].ID)
}

func TestResolveCategoryPath(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/V1/categories/list", r.URL.Path)
		assert.Equal(t, "Bags", r.URL.Query().Get("searchCriteria[filter_groups][0][filters][0][value]"))
		w.Write([]byte(`{"items":[{"id":7}]}`))
	}))

	id, err := client.ResolveCategoryPath(context.Background(), "Default Category/Gear/Bags")
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestResolveCategoryPath_NotFound(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))

	_, err := client.ResolveCategoryPath(context.Background(), "Nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nowhere")
}

func TestDeleteProduct(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/rest/V1/products/WB-01", r.URL.Path)
		w.Write([]byte(`true`))
	}))

	assert.NoError(t, client.DeleteProduct(context.Background(), "WB-01"))
}
