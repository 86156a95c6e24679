// Package clients defines the remote commerce boundary the uploader drives.
// HTTP concerns (base URL, auth, serialization) belong to implementations.
package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"catalog-import-service/internal/models"
)

// CreateResult is the remote identity assigned to a created product.
type CreateResult struct {
	ID  int    `json:"id"`
	SKU string `json:"sku"`
}

// Brand is an entry of the remote brand vocabulary.
type Brand struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// CommerceClient is the injected remote boundary. Implementations must be
// safe for concurrent use up to the uploader's declared concurrency.
type CommerceClient interface {
	// CreateProduct creates one product. Re-creating an existing sku fails
	// with a conflict; no upsert is assumed.
	CreateProduct(ctx context.Context, product *models.Product) (*CreateResult, error)

	// LinkConfigurableChildren attaches previously created simples as the
	// children of a configurable parent.
	LinkConfigurableChildren(ctx context.Context, parentSKU string, childSKUs []string) error

	// DeleteProduct removes a product by sku. Unused on the happy path;
	// available for cleanup.
	DeleteProduct(ctx context.Context, sku string) error

	// GetBrands returns the remote brand vocabulary, used to warn on unknown
	// brands during normalization.
	GetBrands(ctx context.Context) ([]Brand, error)
}

// RemoteError is how remote failures cross the client boundary. StatusCode 0
// means the request never completed (network error or timeout).
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote error: %s", e.Message)
	}
	return fmt.Sprintf("remote error (status %d): %s", e.StatusCode, e.Message)
}

// Transient reports whether a retry is expected to help: network failures,
// timeouts, 408, 429 and any 5xx.
func (e *RemoteError) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsTransient classifies any error from the client boundary.
func IsTransient(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
