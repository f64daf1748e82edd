package core

import (
	"fmt"
	"strings"
)

// SourceItem is one flattened configuration item paired with the supplier of
// its SKU, in requirement order.
type SourceItem struct {
	ConfigurationItem
	Supplier string
}

// SupplierGroup is one per-supplier slice of a requirement's items, in
// first-seen order.
type SupplierGroup struct {
	Supplier string
	Items    []ConfigurationItem
}

// GroupBySupplier partitions the flattened items by supplier. The partition is
// stable: groups appear in first-seen supplier order and items keep their
// relative order within each group. Every supplier must be present in the
// mapping or the whole operation is rejected with ErrIncompleteMapping.
func GroupBySupplier(items []SourceItem, mapping map[string]bool) ([]SupplierGroup, error) {
	var groups []SupplierGroup
	index := make(map[string]int)
	for _, item := range items {
		if !mapping[item.Supplier] {
			return nil, fmt.Errorf("supplier %q not in mapping: %w", item.Supplier, ErrIncompleteMapping)
		}
		i, ok := index[item.Supplier]
		if !ok {
			i = len(groups)
			index[item.Supplier] = i
			groups = append(groups, SupplierGroup{Supplier: item.Supplier})
		}
		groups[i].Items = append(groups[i].Items, item.ConfigurationItem)
	}
	return groups, nil
}

// supplierTag is the uppercased supplier prefix embedded in generated order
// codes, e.g. "DEL" for "Dell". Truncation counts runes so multi-byte supplier
// names never leave a broken character in the code.
func supplierTag(supplier string) string {
	tag := []rune(strings.ToUpper(supplier))
	if len(tag) > 3 {
		tag = tag[:3]
	}
	return string(tag)
}
