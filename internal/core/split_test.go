package core_test

import (
	"errors"
	"testing"
	"unicode/utf8"

	"eps-procurement/internal/core"
)

func sourceItem(skuID int, supplier string, subtotal string) core.SourceItem {
	return core.SourceItem{
		ConfigurationItem: core.ConfigurationItem{SKUID: skuID, Quantity: 1, Subtotal: dec(subtotal)},
		Supplier:          supplier,
	}
}

func TestGroupBySupplier(t *testing.T) {
	items := []core.SourceItem{
		sourceItem(1, "Dell", "100.00"),
		sourceItem(2, "HP", "200.00"),
		sourceItem(3, "Dell", "300.00"),
		sourceItem(4, "Lenovo", "400.00"),
		sourceItem(5, "HP", "500.00"),
	}
	mapping := map[string]bool{"Dell": true, "HP": true, "Lenovo": true}

	groups, err := core.GroupBySupplier(items, mapping)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}

	// Groups appear in first-seen supplier order.
	wantOrder := []string{"Dell", "HP", "Lenovo"}
	for i, want := range wantOrder {
		if groups[i].Supplier != want {
			t.Errorf("group %d supplier = %q, want %q", i, groups[i].Supplier, want)
		}
	}

	// Every item lands in exactly one group, in its original relative order.
	if got := len(groups[0].Items); got != 2 {
		t.Errorf("Dell group has %d items, want 2", got)
	}
	if groups[0].Items[0].SKUID != 1 || groups[0].Items[1].SKUID != 3 {
		t.Errorf("Dell group out of order: %+v", groups[0].Items)
	}
	if groups[1].Items[0].SKUID != 2 || groups[1].Items[1].SKUID != 5 {
		t.Errorf("HP group out of order: %+v", groups[1].Items)
	}
	if groups[2].Items[0].SKUID != 4 {
		t.Errorf("Lenovo group wrong: %+v", groups[2].Items)
	}

	total := 0
	for _, g := range groups {
		total += len(g.Items)
	}
	if total != len(items) {
		t.Errorf("partition lost items: %d of %d", total, len(items))
	}
}

func TestGroupBySupplier_SingleSupplier(t *testing.T) {
	items := []core.SourceItem{
		sourceItem(1, "Dell", "100.00"),
		sourceItem(2, "Dell", "200.00"),
	}
	groups, err := core.GroupBySupplier(items, map[string]bool{"Dell": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Items) != 2 {
		t.Errorf("expected one group with two items, got %+v", groups)
	}
}

func TestGroupBySupplier_IncompleteMapping(t *testing.T) {
	items := []core.SourceItem{
		sourceItem(1, "Dell", "100.00"),
		sourceItem(2, "HP", "200.00"),
	}
	// Mapping covers Dell only; the whole partition must be rejected.
	_, err := core.GroupBySupplier(items, map[string]bool{"Dell": true})
	if !errors.Is(err, core.ErrIncompleteMapping) {
		t.Fatalf("expected ErrIncompleteMapping, got %v", err)
	}
}

func TestSupplierTag(t *testing.T) {
	tests := []struct {
		supplier string
		want     string
	}{
		{"Dell", "DEL"},
		{"HP", "HP"},
		{"lenovo", "LEN"},
		// Multi-byte supplier names must truncate on character boundaries.
		{"Ärzte GmbH", "ÄRZ"},
		{"éé", "ÉÉ"},
		{"日本電気株式会社", "日本電"},
	}
	for _, tt := range tests {
		got := core.SupplierTag(tt.supplier)
		if got != tt.want {
			t.Errorf("SupplierTag(%q) = %q, want %q", tt.supplier, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("SupplierTag(%q) produced invalid UTF-8: %q", tt.supplier, got)
		}
	}
}

func TestGroupBySupplier_Empty(t *testing.T) {
	groups, err := core.GroupBySupplier(nil, map[string]bool{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
}
