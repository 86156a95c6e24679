package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-import-service/internal/models"
)

func newTestNormalizer(cfg NormalizerConfig) *Normalizer {
	return NewNormalizer(cfg, nil)
}

func rawRow(line int, values map[string]string) *RawRow {
	return &RawRow{Line: line, Values: values}
}

func warningCodes(warnings []models.RowWarning) []string {
	codes := make([]string, 0, len(warnings))
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	return codes
}

func TestNormalize_FullRow(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku":                    "WB-040-BLU",
		"name":                   "Driven Backpack",
		"product_type":           "Simple",
		"attribute_set_code":     "Bag",
		"price":                  "36.00",
		"product_online":         "1",
		"visibility":             "catalog-and-search",
		"weight":                 "1.2",
		"description":            "A rugged pack",
		"country_of_manufacture": "IT",
		"categories":             "3, Default Category/Gear/Bags",
		"qty":                    "100",
		"additional_attributes":  "brand=Driven, techno_ref=TR-9",
	}))

	assert.Empty(t, warnings)
	assert.Equal(t, "WB-040-BLU", p.SKU)
	assert.Equal(t, models.ProductTypeSimple, p.Type)
	assert.Equal(t, 9, p.AttributeSetID)
	assert.Equal(t, 36.00, p.Price)
	assert.Equal(t, models.ProductStatusEnabled, p.Status)
	assert.Equal(t, models.VisibilityCatalogAndSearch, p.Visibility)
	assert.Equal(t, 100, p.StockQty)
	assert.True(t, p.InStock)
	assert.True(t, p.ManageStock)
	assert.Equal(t, 2, p.SourceRow)

	assert.Equal(t, "Driven", p.CustomAttributes["brand"])
	assert.Equal(t, "TR-9", p.CustomAttributes["techno_ref"])
	assert.Equal(t, "A rugged pack", p.CustomAttributes["description"])
	assert.Equal(t, "IT", p.CustomAttributes["country_of_manufacture"])

	require.Len(t, p.CategoryRefs, 2)
	assert.Equal(t, models.CategoryRef{ID: 3}, p.CategoryRefs[0])
	assert.Equal(t, models.CategoryRef{Path: "Default Category/Gear/Bags"}, p.CategoryRefs[1])
}

func TestNormalize_Defaults(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku":          "WB-01",
		"name":         "Backpack",
		"product_type": "simple",
	}))

	assert.Empty(t, warnings)
	assert.Equal(t, models.DefaultAttributeSetID, p.AttributeSetID)
	assert.Equal(t, models.ProductStatusEnabled, p.Status)
	assert.Equal(t, models.VisibilityCatalogAndSearch, p.Visibility)
	assert.Equal(t, 0.0, p.Price)
	assert.Equal(t, 0, p.StockQty)
	assert.False(t, p.InStock)
}

func TestNormalize_BadNumbersWarnAndDefault(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(3, map[string]string{
		"sku":          "WB-01",
		"name":         "Backpack",
		"product_type": "simple",
		"price":        "abc",
		"weight":       "n/a",
		"qty":          "many",
	}))

	assert.Equal(t, 0.0, p.Price)
	assert.Equal(t, 0.0, p.Weight)
	assert.Equal(t, 0, p.StockQty)
	assert.Equal(t, []string{"INVALID_NUMBER", "INVALID_NUMBER", "INVALID_NUMBER"}, warningCodes(warnings))
}

func TestNormalize_DecimalQty(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku":          "WB-01",
		"name":         "Backpack",
		"product_type": "simple",
		"qty":          "12.0",
	}))

	assert.Empty(t, warnings)
	assert.Equal(t, 12, p.StockQty)
}

func TestNormalize_StatusVariants(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	cases := map[string]models.ProductStatus{
		"":         models.ProductStatusEnabled,
		"1":        models.ProductStatusEnabled,
		"enabled":  models.ProductStatusEnabled,
		"true":     models.ProductStatusEnabled,
		"2":        models.ProductStatusDisabled,
		"disabled": models.ProductStatusDisabled,
		"false":    models.ProductStatusDisabled,
		"0":        models.ProductStatusDisabled,
	}
	for raw, want := range cases {
		p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
			"sku": "WB-01", "name": "Backpack", "product_type": "simple",
			"product_online": raw,
		}))
		assert.Empty(t, warnings, "status %q", raw)
		assert.Equal(t, want, p.Status, "status %q", raw)
	}

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-01", "name": "Backpack", "product_type": "simple",
		"product_online": "maybe",
	}))
	assert.Equal(t, models.ProductStatusEnabled, p.Status)
	assert.Equal(t, []string{"INVALID_STATUS"}, warningCodes(warnings))
}

func TestNormalize_UnknownAttributeSetFallsBack(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-01", "name": "Backpack", "product_type": "simple",
		"attribute_set_code": "Luggage",
	}))

	assert.Equal(t, models.DefaultAttributeSetID, p.AttributeSetID)
	assert.Equal(t, []string{"UNKNOWN_ATTRIBUTE_SET"}, warningCodes(warnings))
}

func TestNormalize_UnknownColumnsBecomeCustomAttributes(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-01", "name": "Backpack", "product_type": "simple",
		"color":    "blue",
		"material": "canvas",
	}))

	assert.Empty(t, warnings)
	assert.Equal(t, "blue", p.CustomAttributes["color"])
	assert.Equal(t, "canvas", p.CustomAttributes["material"])
}

func TestNormalize_MalformedAdditionalAttributes(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-01", "name": "Backpack", "product_type": "simple",
		"additional_attributes": "brand=Driven,orphan,style=day",
	}))

	assert.Equal(t, "Driven", p.CustomAttributes["brand"])
	assert.Equal(t, "day", p.CustomAttributes["style"])
	assert.Equal(t, []string{"MALFORMED_ATTRIBUTE"}, warningCodes(warnings))
}

func TestNormalize_Variations(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-CFG", "name": "Backpack", "product_type": "configurable",
		"configurable_variations": "sku=WB-S,size=S,color=red|sku=WB-M,size=M,color=red",
	}))

	assert.Empty(t, warnings)
	require.Len(t, p.Variations, 2)
	assert.Equal(t, "WB-S", p.Variations[0].ChildSKU)
	assert.Equal(t, map[string]string{"size": "S", "color": "red"}, p.Variations[0].AxisValues)
	assert.Equal(t, []string{"size", "color"}, p.Variations[0].AxisOrder)
	assert.Equal(t, "WB-M", p.Variations[1].ChildSKU)
}

func TestNormalize_VariationsOnSimpleIgnored(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-01", "name": "Backpack", "product_type": "simple",
		"configurable_variations": "sku=WB-S,size=S",
	}))

	assert.Empty(t, p.Variations)
	assert.Equal(t, []string{"IGNORED_VARIATIONS"}, warningCodes(warnings))
}

func TestNormalize_VariationWithoutSKU(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-CFG", "name": "Backpack", "product_type": "configurable",
		"configurable_variations": "size=S,color=red|sku=WB-M,size=M",
	}))

	require.Len(t, p.Variations, 1)
	assert.Equal(t, "WB-M", p.Variations[0].ChildSKU)
	assert.Equal(t, []string{"VARIATION_WITHOUT_SKU"}, warningCodes(warnings))
}

func TestNormalize_CategoryResolver(t *testing.T) {
	resolver := func(ctx context.Context, path string) (int, error) {
		if path == "Default Category/Gear" {
			return 7, nil
		}
		return 0, fmt.Errorf("no category named %q", path)
	}
	n := newTestNormalizer(NormalizerConfig{ResolveCategory: resolver})

	p, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-01", "name": "Backpack", "product_type": "simple",
		"categories": "Default Category/Gear,Default Category/Unknown",
	}))

	require.Len(t, p.CategoryRefs, 2)
	assert.Equal(t, models.CategoryRef{ID: 7, Path: "Default Category/Gear"}, p.CategoryRefs[0])
	// Unresolved paths stay verbatim for the caller.
	assert.Equal(t, models.CategoryRef{Path: "Default Category/Unknown"}, p.CategoryRefs[1])
	assert.Equal(t, []string{"CATEGORY_UNRESOLVED"}, warningCodes(warnings))
}

func TestNormalize_UnknownBrandWarns(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{KnownBrands: map[string]bool{"driven": true}})

	_, warnings := n.Normalize(context.Background(), rawRow(2, map[string]string{
		"sku": "WB-01", "name": "Backpack", "product_type": "simple",
		"additional_attributes": "brand=Driven",
	}))
	assert.Empty(t, warnings)

	_, warnings = n.Normalize(context.Background(), rawRow(3, map[string]string{
		"sku": "WB-02", "name": "Tote", "product_type": "simple",
		"additional_attributes": "brand=Nobody",
	}))
	assert.Equal(t, []string{"UNKNOWN_BRAND"}, warningCodes(warnings))
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})
	values := map[string]string{
		"sku": "WB-01", "name": "Backpack", "product_type": "simple",
		"price": "36.00", "qty": "5",
		"additional_attributes": "brand=Driven",
	}

	first, _ := n.Normalize(context.Background(), rawRow(2, values))
	second, _ := n.Normalize(context.Background(), rawRow(2, values))

	assert.Equal(t, first, second)
}

func TestNormalize_NonFiniteNumbersRejected(t *testing.T) {
	n := newTestNormalizer(NormalizerConfig{})

	p, warnings := n.Normalize(context.Background(), rawRow(3, map[string]string{
		"sku":          "WB-01",
		"name":         "Backpack",
		"product_type": "simple",
		"price":        "NaN",
		"weight":       "+Inf",
		"qty":          "-Inf",
	}))

	// ParseFloat accepts these spellings but no finite value exists.
	assert.Equal(t, 0.0, p.Price)
	assert.Equal(t, 0.0, p.Weight)
	assert.Equal(t, 0, p.StockQty)
	assert.Equal(t, []string{"INVALID_NUMBER", "INVALID_NUMBER", "INVALID_NUMBER"}, warningCodes(warnings))
}
