package catalog

import (
	"catalog-import-service/internal/models"
)

// Split partitions the validated stream into standalone simples and
// configurable groups. Parent order follows input order; within a group,
// children follow the parent's variation spec.
//
// A row listed as a variation child is uploaded once, as a hidden variation,
// even when it also appears as a plain simple row.
func Split(products []*models.Product) ([]*models.Product, []models.ConfigurableGroup) {
	bySKU := make(map[string]*models.Product, len(products))
	childOf := make(map[string]bool)
	for _, p := range products {
		bySKU[p.SKU] = p
		if p.IsConfigurable() {
			for _, v := range p.Variations {
				childOf[v.ChildSKU] = true
			}
		}
	}

	var simples []*models.Product
	var groups []models.ConfigurableGroup

	for _, p := range products {
		if p.IsConfigurable() {
			group := models.ConfigurableGroup{Parent: p}
			for _, v := range p.Variations {
				child, ok := bySKU[v.ChildSKU]
				if !ok {
					// Validation guarantees existence; a missing entry means
					// the parent should already have been dropped.
					continue
				}
				group.Children = append(group.Children, promote(child, p, v))
			}
			groups = append(groups, group)
			continue
		}
		if childOf[p.SKU] {
			continue
		}
		simples = append(simples, p)
	}

	return simples, groups
}

// promote derives the uploadable variation child: a copy of the simple row
// that inherits the parent's custom attributes, carries the axis values, and
// is hidden from catalog listings.
func promote(child, parent *models.Product, v models.Variation) *models.Product {
	promoted := *child
	promoted.Visibility = models.VisibilityNotVisible

	attrs := make(map[string]string, len(parent.CustomAttributes)+len(child.CustomAttributes)+len(v.AxisValues))
	for k, val := range parent.CustomAttributes {
		attrs[k] = val
	}
	for k, val := range child.CustomAttributes {
		attrs[k] = val
	}
	for k, val := range v.AxisValues {
		attrs[k] = val
	}
	promoted.CustomAttributes = attrs

	return &promoted
}
