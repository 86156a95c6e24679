package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"catalog-import-service/internal/models"
)

// MakeBatches chunks an ordered product stream into batches of batchSize (the
// last batch may be smaller). Indexes are 1-based and monotonic.
func MakeBatches(products []*models.Product, batchSize int) []models.Batch {
	if batchSize <= 0 {
		batchSize = 1
	}
	total := (len(products) + batchSize - 1) / batchSize
	batches := make([]models.Batch, 0, total)
	for i := 0; i < total; i++ {
		start := i * batchSize
		end := start + batchSize
		if end > len(products) {
			end = len(products)
		}
		batches = append(batches, models.Batch{
			Index:    i + 1,
			Total:    total,
			Products: products[start:end],
		})
	}
	return batches
}

// WriteCatalogCSV serializes products in canonical column order so the output
// is itself importable.
func WriteCatalogCSV(w io.Writer, products []*models.Product) error {
	columns := models.CatalogImportColumns()
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range products {
		if err := cw.Write(serializeProduct(p, header)); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", p.SKU, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBatchCSV serializes a single batch.
func WriteBatchCSV(w io.Writer, batch models.Batch) error {
	return WriteCatalogCSV(w, batch.Products)
}

// BatchFileName names an emitted batch artifact.
func BatchFileName(index, total int) string {
	return fmt.Sprintf("catalog_batch_%d_of_%d.csv", index, total)
}

// EmitBatchFiles writes each batch as a CSV artifact under dir and returns
// the written paths in emission order.
func EmitBatchFiles(dir string, batches []models.Batch) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create batch dir: %w", err)
	}
	paths := make([]string, 0, len(batches))
	for _, batch := range batches {
		path := filepath.Join(dir, BatchFileName(batch.Index, batch.Total))
		f, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := WriteBatchCSV(f, batch); err != nil {
			f.Close()
			return paths, err
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func serializeProduct(p *models.Product, header []string) []string {
	row := make([]string, len(header))
	for i, col := range header {
		switch col {
		case "sku":
			row[i] = p.SKU
		case "name":
			row[i] = p.Name
		case "product_type":
			row[i] = string(p.Type)
		case "attribute_set_code":
			row[i] = attributeSetCode(p.AttributeSetID)
		case "price":
			row[i] = formatDecimal(p.Price)
		case "product_online":
			if p.Status == models.ProductStatusDisabled {
				row[i] = "2"
			} else {
				row[i] = "1"
			}
		case "visibility":
			row[i] = string(p.Visibility)
		case "weight":
			row[i] = formatDecimal(p.Weight)
		case "description", "short_description", "country_of_manufacture":
			row[i] = p.CustomAttributes[col]
		case "categories":
			row[i] = serializeCategories(p.CategoryRefs)
		case "qty":
			row[i] = strconv.Itoa(p.StockQty)
		case "additional_attributes":
			row[i] = serializeAttributes(p.CustomAttributes)
		case "configurable_variations":
			row[i] = serializeVariations(p.Variations)
		}
	}
	return row
}

func attributeSetCode(id int) string {
	for code, setID := range models.DefaultAttributeSets {
		if setID == id {
			return code
		}
	}
	return "Default"
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func serializeCategories(refs []models.CategoryRef) string {
	tokens := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Path != "" {
			tokens = append(tokens, ref.Path)
		} else if ref.ID > 0 {
			tokens = append(tokens, strconv.Itoa(ref.ID))
		}
	}
	return strings.Join(tokens, ",")
}

func serializeAttributes(attrs map[string]string) string {
	skip := make(map[string]bool, len(passthroughAttributes))
	for _, code := range passthroughAttributes {
		skip[code] = true
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+attrs[k])
	}
	return strings.Join(pairs, ",")
}

func serializeVariations(variations []models.Variation) string {
	entries := make([]string, 0, len(variations))
	for _, v := range variations {
		pairs := []string{"sku=" + v.ChildSKU}
		axes := v.AxisOrder
		if len(axes) == 0 {
			for k := range v.AxisValues {
				axes = append(axes, k)
			}
			sort.Strings(axes)
		}
		for _, axis := range axes {
			pairs = append(pairs, axis+"="+v.AxisValues[axis])
		}
		entries = append(entries, strings.Join(pairs, ","))
	}
	return strings.Join(entries, "|")
}
