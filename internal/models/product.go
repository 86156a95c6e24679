package models

import (
	"database/sql/driver"
	"encoding/json"
)

// ProductType is the catalog type of a product row.
type ProductType string

const (
	ProductTypeSimple       ProductType = "simple"
	ProductTypeConfigurable ProductType = "configurable"
	ProductTypeVirtual      ProductType = "virtual"
	ProductTypeDownloadable ProductType = "downloadable"
)

// KnownProductTypes lists the types the pipeline understands. Rows with other
// types are forwarded with a warning.
var KnownProductTypes = map[ProductType]bool{
	ProductTypeSimple:       true,
	ProductTypeConfigurable: true,
	ProductTypeVirtual:      true,
	ProductTypeDownloadable: true,
}

// ProductStatus mirrors the remote catalog's enabled/disabled flag.
type ProductStatus string

const (
	ProductStatusEnabled  ProductStatus = "enabled"
	ProductStatusDisabled ProductStatus = "disabled"
)

// Visibility controls where a product shows up in the remote catalog.
type Visibility string

const (
	VisibilityNotVisible       Visibility = "not-visible"
	VisibilityCatalog          Visibility = "catalog"
	VisibilitySearch           Visibility = "search"
	VisibilityCatalogAndSearch Visibility = "catalog-and-search"
)

// VisibilityID maps a visibility to the remote catalog's integer code.
func VisibilityID(v Visibility) int {
	switch v {
	case VisibilityNotVisible:
		return 1
	case VisibilityCatalog:
		return 2
	case VisibilitySearch:
		return 3
	default:
		return 4
	}
}

// DefaultAttributeSets is the built-in attribute-set code table. Pipelines may
// override it through Options; unknown codes fall back to Default (id 4).
var DefaultAttributeSets = map[string]int{
	"Default": 4,
	"Bag":     9,
	"Bottom":  10,
	"Gear":    11,
	"Top":     12,
}

// DefaultAttributeSetID is the fallback id for unknown attribute-set codes.
const DefaultAttributeSetID = 4

// CategoryRef is a category reference from the source file. Either ID is set
// (resolved) or Path carries the original token for external resolution.
type CategoryRef struct {
	ID   int    `json:"id,omitempty"`
	Path string `json:"path,omitempty"`
}

// Resolved reports whether the reference carries a usable category id.
func (c CategoryRef) Resolved() bool { return c.ID > 0 }

// Variation declares one child of a configurable parent together with the
// axis attribute values that select it.
type Variation struct {
	ChildSKU   string            `json:"childSku"`
	AxisValues map[string]string `json:"axisValues"`
	// AxisOrder preserves the attribute order from the source cell.
	AxisOrder []string `json:"axisOrder,omitempty"`
}

// Product is the canonical, read-only form a row takes after normalization.
type Product struct {
	SKU            string        `json:"sku"`
	Name           string        `json:"name"`
	Type           ProductType   `json:"type"`
	AttributeSetID int           `json:"attributeSetId"`
	Price          float64       `json:"price"`
	Weight         float64       `json:"weight"`
	Status         ProductStatus `json:"status"`
	Visibility     Visibility    `json:"visibility"`
	StockQty       int           `json:"stockQty"`
	InStock        bool          `json:"inStock"`
	ManageStock    bool          `json:"manageStock"`

	CustomAttributes map[string]string `json:"customAttributes,omitempty"`
	CategoryRefs     []CategoryRef     `json:"categoryRefs,omitempty"`
	Variations       []Variation       `json:"variations,omitempty"`

	// SourceRow is the 1-based line the row came from, used for reporting.
	SourceRow int `json:"sourceRow,omitempty"`
}

// IsConfigurable reports whether the product is a configurable parent.
func (p *Product) IsConfigurable() bool { return p.Type == ProductTypeConfigurable }

// ConfigurableGroup pairs a configurable parent with its promoted children in
// variation order.
type ConfigurableGroup struct {
	Parent   *Product   `json:"parent"`
	Children []*Product `json:"children"`
}

// JSON type for PostgreSQL JSONB (object/map)
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}
