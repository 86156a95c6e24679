package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-import-service/internal/models"
)

func simple(row int, sku string) *models.Product {
	return &models.Product{
		SKU: sku, Name: "Product " + sku, Type: models.ProductTypeSimple,
		SourceRow: row,
	}
}

func configurable(row int, sku string, childSKUs ...string) *models.Product {
	p := &models.Product{
		SKU: sku, Name: "Product " + sku, Type: models.ProductTypeConfigurable,
		SourceRow: row,
	}
	for _, child := range childSKUs {
		p.Variations = append(p.Variations, models.Variation{
			ChildSKU:   child,
			AxisValues: map[string]string{"size": "M"},
		})
	}
	return p
}

func errorCodes(errs []models.RowError) []string {
	codes := make([]string, 0, len(errs))
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	return codes
}

func skus(products []*models.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.SKU)
	}
	return out
}

func TestValidate_AllValid(t *testing.T) {
	v := NewValidator(nil)

	valid, report := v.Validate([]*models.Product{
		simple(2, "WB-01"),
		simple(3, "WB-02"),
	})

	assert.Len(t, valid, 2)
	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 2, report.ValidRows)
	assert.Equal(t, 0, report.DroppedRows)
	assert.Empty(t, report.Errors)
}

func TestValidate_RequiredFields(t *testing.T) {
	v := NewValidator(nil)

	noSKU := simple(2, "")
	noName := simple(3, "WB-02")
	noName.Name = ""
	noType := simple(4, "WB-03")
	noType.Type = ""

	valid, report := v.Validate([]*models.Product{noSKU, noName, noType, simple(5, "WB-04")})

	assert.Equal(t, []string{"WB-04"}, skus(valid))
	assert.Equal(t, 3, report.DroppedRows)
	assert.ElementsMatch(t, []string{"REQUIRED", "REQUIRED", "REQUIRED"}, errorCodes(report.Errors))
}

func TestValidate_DuplicateSKUDropsSecond(t *testing.T) {
	v := NewValidator(nil)

	first := simple(2, "WB-01")
	second := simple(5, "WB-01")

	valid, report := v.Validate([]*models.Product{first, second, simple(6, "WB-02")})

	require.Len(t, valid, 2)
	assert.Same(t, first, valid[0])
	assert.Equal(t, "WB-02", valid[1].SKU)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "DUPLICATE_SKU", report.Errors[0].Code)
	assert.Equal(t, 5, report.Errors[0].Row)
}

func TestValidate_NegativeValues(t *testing.T) {
	v := NewValidator(nil)

	p := simple(2, "WB-01")
	p.Price = -1
	q := simple(3, "WB-02")
	q.Weight = -0.5
	r := simple(4, "WB-03")
	r.StockQty = -3

	valid, report := v.Validate([]*models.Product{p, q, r})

	assert.Empty(t, valid)
	assert.ElementsMatch(t,
		[]string{"NEGATIVE_PRICE", "NEGATIVE_WEIGHT", "NEGATIVE_QTY"},
		errorCodes(report.Errors))
}

func TestValidate_UnknownTypeForwardedWithWarning(t *testing.T) {
	v := NewValidator(nil)

	p := simple(2, "WB-01")
	p.Type = "bundle"

	valid, report := v.Validate([]*models.Product{p})

	assert.Len(t, valid, 1)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "UNKNOWN_TYPE", report.Warnings[0].Code)
}

func TestValidate_MissingChildDropsParent(t *testing.T) {
	v := NewValidator(nil)

	valid, report := v.Validate([]*models.Product{
		simple(2, "WB-S"),
		configurable(3, "WB-CFG", "WB-S", "WB-GONE"),
	})

	assert.Equal(t, []string{"WB-S"}, skus(valid))
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "MISSING_CHILD", report.Errors[0].Code)
	assert.Equal(t, "WB-CFG", report.Errors[0].SKU)
}

func TestValidate_ChildNotSimpleDropsParent(t *testing.T) {
	v := NewValidator(nil)

	child := simple(2, "WB-V")
	child.Type = models.ProductTypeVirtual

	valid, report := v.Validate([]*models.Product{
		child,
		configurable(3, "WB-CFG", "WB-V"),
	})

	assert.Equal(t, []string{"WB-V"}, skus(valid))
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "CHILD_NOT_SIMPLE", report.Errors[0].Code)
}

func TestValidate_ConfigurableWithoutVariationsWarns(t *testing.T) {
	v := NewValidator(nil)

	valid, report := v.Validate([]*models.Product{configurable(2, "WB-CFG")})

	assert.Len(t, valid, 1)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "NO_VARIATIONS", report.Warnings[0].Code)
}

func TestValidate_ChildDroppedInPassOneIsStillMissing(t *testing.T) {
	v := NewValidator(nil)

	badChild := simple(2, "WB-S")
	badChild.Price = -10

	valid, report := v.Validate([]*models.Product{
		badChild,
		configurable(3, "WB-CFG", "WB-S"),
	})

	// The child failed pass 1, so the parent's reference dangles.
	assert.Empty(t, valid)
	assert.ElementsMatch(t, []string{"NEGATIVE_PRICE", "MISSING_CHILD"}, errorCodes(report.Errors))
}

func TestValidate_PreservesInputOrder(t *testing.T) {
	v := NewValidator(nil)

	valid, _ := v.Validate([]*models.Product{
		simple(2, "WB-03"),
		simple(3, "WB-01"),
		simple(4, "WB-02"),
	})

	assert.Equal(t, []string{"WB-03", "WB-01", "WB-02"}, skus(valid))
}

func TestValidate_SharedChildDropsSecondParent(t *testing.T) {
	v := NewValidator(nil)

	valid, report := v.Validate([]*models.Product{
		simple(2, "WB-S"),
		configurable(3, "WB-CFG-A", "WB-S"),
		configurable(4, "WB-CFG-B", "WB-S"),
	})

	// The first parent keeps the child; the second parent is dropped.
	assert.Equal(t, []string{"WB-S", "WB-CFG-A"}, skus(valid))
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "SHARED_CHILD", report.Errors[0].Code)
	assert.Equal(t, "WB-CFG-B", report.Errors[0].SKU)
	assert.Equal(t, 4, report.Errors[0].Row)
}

func TestValidate_ChildListedTwiceBySameParent(t *testing.T) {
	v := NewValidator(nil)

	valid, report := v.Validate([]*models.Product{
		simple(2, "WB-S"),
		configurable(3, "WB-CFG", "WB-S", "WB-S"),
	})

	assert.Equal(t, []string{"WB-S"}, skus(valid))
	assert.Equal(t, []string{"SHARED_CHILD"}, errorCodes(report.Errors))
}

func TestValidate_DroppedParentReleasesItsChildren(t *testing.T) {
	v := NewValidator(nil)

	valid, report := v.Validate([]*models.Product{
		simple(2, "WB-S"),
		simple(3, "WB-M"),
		configurable(4, "WB-CFG-A", "WB-S", "WB-GONE"),
		configurable(5, "WB-CFG-B", "WB-S", "WB-M"),
	})

	// WB-CFG-A is dropped for the missing child, so its claim on WB-S does
	// not block WB-CFG-B.
	assert.Equal(t, []string{"WB-S", "WB-M", "WB-CFG-B"}, skus(valid))
	assert.Equal(t, []string{"MISSING_CHILD"}, errorCodes(report.Errors))
}
