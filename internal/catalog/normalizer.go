package catalog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/models"
)

// Canonical column names recognized by the normalizer. Anything else is
// passed through as a custom attribute.
var canonicalColumns = map[string]bool{
	"sku":                     true,
	"name":                    true,
	"product_type":            true,
	"attribute_set_code":      true,
	"price":                   true,
	"product_online":          true,
	"visibility":              true,
	"weight":                  true,
	"description":             true,
	"short_description":       true,
	"country_of_manufacture":  true,
	"categories":              true,
	"qty":                     true,
	"additional_attributes":   true,
	"configurable_variations": true,
}

// Columns copied verbatim into custom attributes under their own code.
var passthroughAttributes = []string{
	"description",
	"short_description",
	"country_of_manufacture",
}

// CategoryResolver converts a category path token to a remote category id.
type CategoryResolver func(ctx context.Context, path string) (int, error)

// Normalizer maps raw rows to canonical products. It never fails; every
// deviation becomes a warning attached to the row.
type Normalizer struct {
	attributeSets   map[string]int
	resolveCategory CategoryResolver
	knownBrands     map[string]bool
	log             *logrus.Entry
}

// NormalizerConfig carries the injected collaborators of the normalizer.
type NormalizerConfig struct {
	// AttributeSets overrides models.DefaultAttributeSets when non-nil.
	AttributeSets map[string]int
	// ResolveCategory is optional; without it path tokens are kept verbatim.
	ResolveCategory CategoryResolver
	// KnownBrands enables unknown-brand warnings when non-empty. Keys are
	// lowercased brand labels.
	KnownBrands map[string]bool
}

// NewNormalizer builds a normalizer with the given configuration.
func NewNormalizer(cfg NormalizerConfig, logger *logrus.Logger) *Normalizer {
	sets := cfg.AttributeSets
	if sets == nil {
		sets = models.DefaultAttributeSets
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Normalizer{
		attributeSets:   sets,
		resolveCategory: cfg.ResolveCategory,
		knownBrands:     cfg.KnownBrands,
		log:             logger.WithField("component", "normalizer"),
	}
}

// Normalize maps one raw row to a canonical product.
func (n *Normalizer) Normalize(ctx context.Context, row *RawRow) (*models.Product, []models.RowWarning) {
	var warnings []models.RowWarning
	warn := func(column, code, message string) {
		warnings = append(warnings, models.RowWarning{
			Row:     row.Line,
			SKU:     row.Get("sku"),
			Column:  column,
			Code:    code,
			Message: message,
		})
	}

	p := &models.Product{
		SKU:              row.Get("sku"),
		Name:             row.Get("name"),
		Type:             models.ProductType(strings.ToLower(row.Get("product_type"))),
		CustomAttributes: make(map[string]string),
		ManageStock:      true,
		SourceRow:        row.Line,
	}

	p.AttributeSetID = n.resolveAttributeSet(row.Get("attribute_set_code"), warn)
	p.Price = parseDecimal(row.Get("price"), "price", warn)
	p.Weight = parseDecimal(row.Get("weight"), "weight", warn)
	p.Status = parseStatus(row.Get("product_online"), warn)
	p.Visibility = parseVisibility(row.Get("visibility"), warn)
	p.StockQty = parseQty(row.Get("qty"), warn)
	p.InStock = p.StockQty > 0

	for _, code := range passthroughAttributes {
		if v := row.Get(code); v != "" {
			p.CustomAttributes[code] = v
		}
	}

	n.parseAdditionalAttributes(row.Get("additional_attributes"), p, warn)
	n.parseCategories(ctx, row.Get("categories"), p, warn)

	if cell := row.Get("configurable_variations"); cell != "" {
		if p.Type == models.ProductTypeConfigurable {
			p.Variations = parseVariations(cell, warn)
		} else {
			warn("configurable_variations", "IGNORED_VARIATIONS",
				fmt.Sprintf("variations declared on non-configurable type %q", p.Type))
		}
	}

	// Unknown columns survive as custom attributes.
	extras := make([]string, 0)
	for col := range row.Values {
		if !canonicalColumns[col] && row.Values[col] != "" {
			extras = append(extras, col)
		}
	}
	sort.Strings(extras)
	for _, col := range extras {
		p.CustomAttributes[col] = row.Values[col]
	}

	if len(n.knownBrands) > 0 {
		if brand, ok := p.CustomAttributes["brand"]; ok && !n.knownBrands[strings.ToLower(brand)] {
			warn("brand", "UNKNOWN_BRAND", fmt.Sprintf("brand %q is not in the remote brand list", brand))
		}
	}

	return p, warnings
}

func (n *Normalizer) resolveAttributeSet(code string, warn func(column, code, message string)) int {
	if code == "" {
		return models.DefaultAttributeSetID
	}
	if id, ok := n.attributeSets[code]; ok {
		return id
	}
	warn("attribute_set_code", "UNKNOWN_ATTRIBUTE_SET",
		fmt.Sprintf("unknown attribute set %q, falling back to Default", code))
	return models.DefaultAttributeSetID
}

func (n *Normalizer) parseAdditionalAttributes(cell string, p *models.Product, warn func(column, code, message string)) {
	if cell == "" {
		return
	}
	for _, pair := range strings.Split(cell, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, found := strings.Cut(pair, "=")
		if !found {
			warn("additional_attributes", "MALFORMED_ATTRIBUTE",
				fmt.Sprintf("skipping pair %q, expected k=v", pair))
			continue
		}
		p.CustomAttributes[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
}

func (n *Normalizer) parseCategories(ctx context.Context, cell string, p *models.Product, warn func(column, code, message string)) {
	if cell == "" {
		return
	}
	for _, token := range strings.Split(cell, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if id, err := strconv.Atoi(token); err == nil {
			p.CategoryRefs = append(p.CategoryRefs, models.CategoryRef{ID: id})
			continue
		}
		if n.resolveCategory != nil {
			if id, err := n.resolveCategory(ctx, token); err == nil && id > 0 {
				p.CategoryRefs = append(p.CategoryRefs, models.CategoryRef{ID: id, Path: token})
				continue
			} else if err != nil {
				warn("categories", "CATEGORY_UNRESOLVED",
					fmt.Sprintf("could not resolve category path %q: %v", token, err))
			}
		}
		// Kept verbatim for external resolution by the caller.
		p.CategoryRefs = append(p.CategoryRefs, models.CategoryRef{Path: token})
	}
}

func parseDecimal(raw, column string, warn func(column, code, message string)) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		warn(column, "INVALID_NUMBER", fmt.Sprintf("%q is not a number, defaulting to 0", raw))
		return 0
	}
	return v
}

func parseQty(raw string, warn func(column, code, message string)) int {
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		// Vendor exports occasionally carry decimal quantities.
		if f, ferr := strconv.ParseFloat(raw, 64); ferr == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f)
		}
		warn("qty", "INVALID_NUMBER", fmt.Sprintf("%q is not an integer, defaulting to 0", raw))
		return 0
	}
	return v
}

func parseStatus(raw string, warn func(column, code, message string)) models.ProductStatus {
	switch strings.ToLower(raw) {
	case "", "1", "enabled", "true":
		return models.ProductStatusEnabled
	case "2", "disabled", "false", "0":
		return models.ProductStatusDisabled
	default:
		warn("product_online", "INVALID_STATUS", fmt.Sprintf("%q is not a known status, defaulting to enabled", raw))
		return models.ProductStatusEnabled
	}
}

func parseVisibility(raw string, warn func(column, code, message string)) models.Visibility {
	switch strings.ToLower(strings.ReplaceAll(raw, " ", "-")) {
	case "":
		return models.VisibilityCatalogAndSearch
	case string(models.VisibilityNotVisible), "not-visible-individually":
		return models.VisibilityNotVisible
	case string(models.VisibilityCatalog):
		return models.VisibilityCatalog
	case string(models.VisibilitySearch):
		return models.VisibilitySearch
	case string(models.VisibilityCatalogAndSearch), "catalog,-search":
		return models.VisibilityCatalogAndSearch
	default:
		warn("visibility", "INVALID_VISIBILITY", fmt.Sprintf("%q is not a known visibility, defaulting to catalog-and-search", raw))
		return models.VisibilityCatalogAndSearch
	}
}

// parseVariations parses cells of the form
// "sku=S1,color=red|sku=S2,color=blue" into the parent's variation spec.
func parseVariations(cell string, warn func(column, code, message string)) []models.Variation {
	var variations []models.Variation
	for _, entry := range strings.Split(cell, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		v := models.Variation{AxisValues: make(map[string]string)}
		for _, pair := range strings.Split(entry, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			k, val, found := strings.Cut(pair, "=")
			if !found {
				warn("configurable_variations", "MALFORMED_VARIATION",
					fmt.Sprintf("skipping pair %q, expected k=v", pair))
				continue
			}
			k = strings.TrimSpace(k)
			val = strings.TrimSpace(val)
			if strings.EqualFold(k, "sku") {
				v.ChildSKU = val
				continue
			}
			v.AxisValues[k] = val
			v.AxisOrder = append(v.AxisOrder, k)
		}
		if v.ChildSKU == "" {
			warn("configurable_variations", "VARIATION_WITHOUT_SKU",
				fmt.Sprintf("skipping variation %q, no sku declared", entry))
			continue
		}
		variations = append(variations, v)
	}
	return variations
}
