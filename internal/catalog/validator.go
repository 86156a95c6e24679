package catalog

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/models"
)

// Validator runs the two-pass check over the normalized stream. Errors drop
// the offending row; warnings keep it. The run itself never aborts here.
type Validator struct {
	log *logrus.Entry
}

func NewValidator(logger *logrus.Logger) *Validator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Validator{log: logger.WithField("component", "validator")}
}

// Validate filters the normalized stream. The returned slice preserves input
// order and contains only rows that passed.
func (v *Validator) Validate(products []*models.Product) ([]*models.Product, *models.ValidationReport) {
	report := &models.ValidationReport{TotalRows: len(products)}
	fail := func(p *models.Product, column, code, message string) {
		report.Errors = append(report.Errors, models.RowError{
			Row: p.SourceRow, SKU: p.SKU, Column: column, Code: code, Message: message,
		})
	}
	warn := func(p *models.Product, column, code, message string) {
		report.Warnings = append(report.Warnings, models.RowWarning{
			Row: p.SourceRow, SKU: p.SKU, Column: column, Code: code, Message: message,
		})
	}

	// Pass 1: per-row checks plus the sku index for pass 2.
	skuTypes := make(map[string]models.ProductType, len(products))
	dropped := make(map[*models.Product]bool)

	for _, p := range products {
		ok := true
		if p.SKU == "" {
			fail(p, "sku", "REQUIRED", "sku is required")
			ok = false
		}
		if p.Name == "" {
			fail(p, "name", "REQUIRED", "name is required")
			ok = false
		}
		if p.Type == "" {
			fail(p, "product_type", "REQUIRED", "product_type is required")
			ok = false
		}
		if p.SKU != "" {
			if _, seen := skuTypes[p.SKU]; seen {
				fail(p, "sku", "DUPLICATE_SKU", fmt.Sprintf("duplicate sku %s", p.SKU))
				ok = false
			}
		}
		if p.Price < 0 {
			fail(p, "price", "NEGATIVE_PRICE", fmt.Sprintf("price %v is negative", p.Price))
			ok = false
		}
		if p.Weight < 0 {
			fail(p, "weight", "NEGATIVE_WEIGHT", fmt.Sprintf("weight %v is negative", p.Weight))
			ok = false
		}
		if p.StockQty < 0 {
			fail(p, "qty", "NEGATIVE_QTY", fmt.Sprintf("qty %d is negative", p.StockQty))
			ok = false
		}
		if p.Type != "" && !models.KnownProductTypes[p.Type] {
			warn(p, "product_type", "UNKNOWN_TYPE",
				fmt.Sprintf("unknown product type %q, row forwarded as declared", p.Type))
		}

		if !ok {
			dropped[p] = true
			continue
		}
		skuTypes[p.SKU] = p.Type
	}

	// Pass 2: cross-row variation sanity for configurable parents. A child
	// sku belongs to at most one surviving parent; later claims drop the
	// claiming parent, mirroring the duplicate-sku policy.
	claimedBy := make(map[string]string)
	for _, p := range products {
		if dropped[p] || !p.IsConfigurable() {
			continue
		}
		if len(p.Variations) == 0 {
			warn(p, "configurable_variations", "NO_VARIATIONS",
				fmt.Sprintf("configurable %s declares no variations", p.SKU))
			continue
		}
		seen := make(map[string]bool, len(p.Variations))
		for _, variation := range p.Variations {
			childType, exists := skuTypes[variation.ChildSKU]
			if !exists {
				fail(p, "configurable_variations", "MISSING_CHILD",
					fmt.Sprintf("%s references missing child %s", p.SKU, variation.ChildSKU))
				dropped[p] = true
				continue
			}
			if childType != models.ProductTypeSimple {
				fail(p, "configurable_variations", "CHILD_NOT_SIMPLE",
					fmt.Sprintf("%s references child %s of type %s, expected simple", p.SKU, variation.ChildSKU, childType))
				dropped[p] = true
				continue
			}
			if owner, taken := claimedBy[variation.ChildSKU]; taken {
				fail(p, "configurable_variations", "SHARED_CHILD",
					fmt.Sprintf("%s references child %s already claimed by %s", p.SKU, variation.ChildSKU, owner))
				dropped[p] = true
				continue
			}
			if seen[variation.ChildSKU] {
				fail(p, "configurable_variations", "SHARED_CHILD",
					fmt.Sprintf("%s references child %s more than once", p.SKU, variation.ChildSKU))
				dropped[p] = true
				continue
			}
			seen[variation.ChildSKU] = true
		}
		if dropped[p] {
			continue
		}
		for _, variation := range p.Variations {
			claimedBy[variation.ChildSKU] = p.SKU
		}
	}

	valid := make([]*models.Product, 0, len(products))
	for _, p := range products {
		if !dropped[p] {
			valid = append(valid, p)
		}
	}
	report.ValidRows = len(valid)
	report.DroppedRows = report.TotalRows - report.ValidRows

	if len(report.Errors) > 0 {
		v.log.WithFields(logrus.Fields{
			"total":   report.TotalRows,
			"dropped": report.DroppedRows,
		}).Warn("validation dropped rows")
	}
	return valid, report
}
