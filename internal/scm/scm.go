// Package scm holds the supply-chain reference data and the four lookup
// operations the agent exposes. Lookups return human-readable strings,
// including their error text: a failed lookup is domain data for the model,
// not a transport failure.
package scm

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Part is one catalog entry.
type Part struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Stock        int    `json:"stock"`
	SupplierCity string `json:"supplier_city"`
}

// Dataset is the in-memory catalog plus per-city shipping rates.
type Dataset struct {
	mu             sync.RWMutex
	partsByName    map[string]Part
	partsByID      map[string]Part
	shippingByCity map[string]float64
	cityNames      map[string]string
}

type datasetFile struct {
	Parts    []Part             `json:"parts"`
	Shipping map[string]float64 `json:"shipping"`
}

// Default returns the built-in catalog.
func Default() *Dataset {
	ds := newDataset()
	ds.load(datasetFile{
		Parts: []Part{
			{ID: "ID-100", Name: "Engine", Stock: 5, SupplierCity: "Stuttgart"},
			{ID: "ID-200", Name: "Tire", Stock: 120, SupplierCity: "Hanover"},
			{ID: "ID-300", Name: "Brake Pad", Stock: 0, SupplierCity: "Berlin"},
			{ID: "ID-400", Name: "Windshield", Stock: 14, SupplierCity: "Dresden"},
			{ID: "ID-500", Name: "Battery", Stock: 43, SupplierCity: "Munich"},
		},
		Shipping: map[string]float64{
			"Stuttgart": 120.50,
			"Hanover":   85.00,
			"Berlin":    99.90,
			"Dresden":   110.25,
			"Munich":    132.75,
		},
	})
	return ds
}

// Load reads a catalog from a JSON file. An empty path yields the built-in
// catalog.
func Load(path string) (*Dataset, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var file datasetFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if len(file.Parts) == 0 {
		return nil, fmt.Errorf("dataset %s has no parts", path)
	}
	ds := newDataset()
	ds.load(file)
	return ds, nil
}

func newDataset() *Dataset {
	return &Dataset{
		partsByName:    map[string]Part{},
		partsByID:      map[string]Part{},
		shippingByCity: map[string]float64{},
		cityNames:      map[string]string{},
	}
}

func (d *Dataset) load(file datasetFile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, part := range file.Parts {
		d.partsByName[normalize(part.Name)] = part
		d.partsByID[strings.ToUpper(strings.TrimSpace(part.ID))] = part
	}
	for city, cost := range file.Shipping {
		key := normalize(city)
		d.shippingByCity[key] = cost
		d.cityNames[key] = strings.TrimSpace(city)
	}
}

// PartID resolves a part name to its technical ID.
func (d *Dataset) PartID(partName string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	part, ok := d.partsByName[normalize(partName)]
	if !ok {
		return fmt.Sprintf("Error: No part found with name '%s'.", strings.TrimSpace(partName))
	}
	return part.ID
}

// StockLevel reports the inventory count for a part ID.
func (d *Dataset) StockLevel(partID string) string {
	part, ok := d.lookupID(partID)
	if !ok {
		return fmt.Sprintf("Error: Unknown Part ID '%s'.", strings.TrimSpace(partID))
	}
	return fmt.Sprintf("Stock for %s: %d units.", part.ID, part.Stock)
}

// SupplierLocation reports the supplier city for a part ID.
func (d *Dataset) SupplierLocation(partID string) string {
	part, ok := d.lookupID(partID)
	if !ok {
		return fmt.Sprintf("Error: Unknown Part ID '%s'.", strings.TrimSpace(partID))
	}
	return part.SupplierCity
}

// ShippingCost reports the transport cost from a supplier city.
func (d *Dataset) ShippingCost(city string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cost, ok := d.shippingByCity[normalize(city)]
	if !ok {
		return fmt.Sprintf("Error: No shipping route from '%s'.", strings.TrimSpace(city))
	}
	return fmt.Sprintf("Shipping from %s costs %.2f EUR.", strings.TrimSpace(city), cost)
}

// Cities lists the known supplier cities in their catalog spelling, sorted.
func (d *Dataset) Cities() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cities := make([]string, 0, len(d.cityNames))
	for _, city := range d.cityNames {
		cities = append(cities, city)
	}
	sort.Strings(cities)
	return cities
}

func (d *Dataset) lookupID(partID string) (Part, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	part, ok := d.partsByID[strings.ToUpper(strings.TrimSpace(partID))]
	return part, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
