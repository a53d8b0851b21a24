package scm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPartID(t *testing.T) {
	ds := Default()
	if got := ds.PartID("Engine"); got != "ID-100" {
		t.Fatalf("PartID(Engine) = %q", got)
	}
	if got := ds.PartID("  engine "); got != "ID-100" {
		t.Fatalf("lookup should ignore case and whitespace, got %q", got)
	}
	if got := ds.PartID("Flux Capacitor"); !strings.HasPrefix(got, "Error:") {
		t.Fatalf("unknown part should return error text, got %q", got)
	}
}

func TestStockLevel(t *testing.T) {
	ds := Default()
	if got := ds.StockLevel("ID-200"); got != "Stock for ID-200: 120 units." {
		t.Fatalf("StockLevel = %q", got)
	}
	if got := ds.StockLevel("ID-300"); !strings.Contains(got, "0 units") {
		t.Fatalf("zero stock should still report a count, got %q", got)
	}
	if got := ds.StockLevel("ID-999"); !strings.HasPrefix(got, "Error:") {
		t.Fatalf("unknown id should return error text, got %q", got)
	}
}

func TestSupplierLocationAndShipping(t *testing.T) {
	ds := Default()
	city := ds.SupplierLocation("ID-100")
	if city != "Stuttgart" {
		t.Fatalf("SupplierLocation = %q", city)
	}
	cost := ds.ShippingCost(city)
	if cost != "Shipping from Stuttgart costs 120.50 EUR." {
		t.Fatalf("ShippingCost = %q", cost)
	}
	if got := ds.ShippingCost("Atlantis"); !strings.HasPrefix(got, "Error:") {
		t.Fatalf("unknown city should return error text, got %q", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	data := `{
		"parts": [{"id": "ID-700", "name": "Axle", "stock": 9, "supplier_city": "Linz"}],
		"shipping": {"Linz": 55.5}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := ds.PartID("Axle"); got != "ID-700" {
		t.Fatalf("PartID = %q", got)
	}
	if got := ds.ShippingCost("Linz"); got != "Shipping from Linz costs 55.50 EUR." {
		t.Fatalf("ShippingCost = %q", got)
	}
}

func TestLoadRejectsEmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte(`{"parts": []}`), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	ds, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := ds.PartID("Tire"); got != "ID-200" {
		t.Fatalf("PartID = %q", got)
	}
	cities := ds.Cities()
	if len(cities) != 5 {
		t.Fatalf("cities = %v", cities)
	}
	if cities[4] != "Stuttgart" {
		t.Fatalf("cities must keep catalog casing, got %v", cities)
	}
}
