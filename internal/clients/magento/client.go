// Package magento implements the CommerceClient contract against the
// Magento 2 REST API.
package magento

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/models"
)

const defaultTimeout = 30 * time.Second

// Config carries the connection settings of the Magento client.
type Config struct {
	BaseURL     string
	AccessToken string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// RequestsPerSecond bounds the request rate. Defaults to 10.
	RequestsPerSecond float64
	// BrandAttributeCode is the attribute whose options form the brand
	// vocabulary. Defaults to "brand".
	BrandAttributeCode string
}

// Client talks to the Magento Admin REST API with bearer token auth.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	brandAttr   string
	rateLimiter *rate.Limiter
}

// NewClient builds a Magento client from config.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	brandAttr := cfg.BrandAttributeCode
	if brandAttr == "" {
		brandAttr = "brand"
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		brandAttr:   brandAttr,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

var _ clients.CommerceClient = (*Client)(nil)

// CreateProduct creates one product via POST /rest/V1/products.
func (c *Client) CreateProduct(ctx context.Context, product *models.Product) (*clients.CreateResult, error) {
	payload := map[string]interface{}{"product": buildProductPayload(product)}

	body, err := c.doRequest(ctx, http.MethodPost, "/rest/V1/products", nil, payload)
	if err != nil {
		return nil, err
	}

	var created struct {
		ID  int    `json:"id"`
		SKU string `json:"sku"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, &clients.RemoteError{Message: fmt.Sprintf("failed to parse create response: %v", err)}
	}
	return &clients.CreateResult{ID: created.ID, SKU: created.SKU}, nil
}

// LinkConfigurableChildren attaches children one by one via
// POST /rest/V1/configurable-products/{sku}/child. The remote API links a
// single child per call.
func (c *Client) LinkConfigurableChildren(ctx context.Context, parentSKU string, childSKUs []string) error {
	for _, child := range childSKUs {
		path := fmt.Sprintf("/rest/V1/configurable-products/%s/child", url.PathEscape(parentSKU))
		if _, err := c.doRequest(ctx, http.MethodPost, path, nil, map[string]string{"childSku": child}); err != nil {
			return fmt.Errorf("failed to link %s to %s: %w", child, parentSKU, err)
		}
	}
	return nil
}

// DeleteProduct removes a product via DELETE /rest/V1/products/{sku}.
func (c *Client) DeleteProduct(ctx context.Context, sku string) error {
	path := fmt.Sprintf("/rest/V1/products/%s", url.PathEscape(sku))
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// GetBrands fetches the options of the brand attribute.
func (c *Client) GetBrands(ctx context.Context) ([]clients.Brand, error) {
	path := fmt.Sprintf("/rest/V1/products/attributes/%s/options", url.PathEscape(c.brandAttr))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var options []struct {
		Label string `json:"label"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(body, &options); err != nil {
		return nil, &clients.RemoteError{Message: fmt.Sprintf("failed to parse brand options: %v", err)}
	}

	brands := make([]clients.Brand, 0, len(options))
	for _, o := range options {
		if o.Label == "" || o.Label == " " {
			continue
		}
		brands = append(brands, clients.Brand{ID: o.Value, Label: o.Label})
	}
	return brands, nil
}

// ResolveCategoryPath resolves a category path token to an id by querying the
// categories list for the last path segment. It satisfies the normalizer's
// CategoryResolver contract.
func (c *Client) ResolveCategoryPath(ctx context.Context, path string) (int, error) {
	segments := strings.Split(path, "/")
	name := strings.TrimSpace(segments[len(segments)-1])
	if name == "" {
		return 0, fmt.Errorf("empty category path")
	}

	params := url.Values{}
	params.Set("searchCriteria[filter_groups][0][filters][0][field]", "name")
	params.Set("searchCriteria[filter_groups][0][filters][0][value]", name)
	params.Set("searchCriteria[filter_groups][0][filters][0][condition_type]", "eq")
	params.Set("searchCriteria[page_size]", "1")

	body, err := c.doRequest(ctx, http.MethodGet, "/rest/V1/categories/list", params, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Items []struct {
			ID int `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse categories response: %w", err)
	}
	if len(result.Items) == 0 {
		return 0, fmt.Errorf("no category named %q", name)
	}
	return result.Items[0].ID, nil
}

// doRequest performs an authenticated request. Non-2xx responses and network
// failures come back as *clients.RemoteError so the uploader can classify
// them.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &clients.RemoteError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &clients.RemoteError{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &clients.RemoteError{
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(respBody),
		}
	}
	return respBody, nil
}

// remoteMessage extracts Magento's error message field when present.
func remoteMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return string(body)
}

// buildProductPayload maps the canonical product to the Magento product
// entity.
func buildProductPayload(p *models.Product) map[string]interface{} {
	status := 1
	if p.Status == models.ProductStatusDisabled {
		status = 2
	}

	payload := map[string]interface{}{
		"sku":              p.SKU,
		"name":             p.Name,
		"type_id":          string(p.Type),
		"attribute_set_id": p.AttributeSetID,
		"price":            p.Price,
		"weight":           p.Weight,
		"status":           status,
		"visibility":       models.VisibilityID(p.Visibility),
	}

	extension := map[string]interface{}{
		"stock_item": map[string]interface{}{
			"qty":          p.StockQty,
			"is_in_stock":  p.InStock,
			"manage_stock": p.ManageStock,
		},
	}
	// Only resolved ids make it onto the wire; path tokens stay with the
	// caller for external resolution.
	var categoryLinks []map[string]interface{}
	for i, ref := range p.CategoryRefs {
		if !ref.Resolved() {
			continue
		}
		categoryLinks = append(categoryLinks, map[string]interface{}{
			"category_id": strconv.Itoa(ref.ID),
			"position":    i,
		})
	}
	if len(categoryLinks) > 0 {
		extension["category_links"] = categoryLinks
	}
	payload["extension_attributes"] = extension

	if len(p.CustomAttributes) > 0 {
		codes := make([]string, 0, len(p.CustomAttributes))
		for code := range p.CustomAttributes {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		attrs := make([]map[string]interface{}, 0, len(codes))
		for _, code := range codes {
			attrs = append(attrs, map[string]interface{}{
				"attribute_code": code,
				"value":          p.CustomAttributes[code],
			})
		}
		payload["custom_attributes"] = attrs
	}

	return payload
}
