// Package catalog holds the static merch price list.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownItem = errors.New("item not found")

// DefaultItems is the merch price list used when no catalog is configured.
var DefaultItems = map[string]int64{
	"t-shirt":    80,
	"cup":        20,
	"book":       50,
	"pen":        10,
	"powerbank":  200,
	"hoody":      300,
	"umbrella":   200,
	"socks":      10,
	"wallet":     50,
	"pink-hoody": 500,
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	prices map[string]int64
}

// New builds a catalog from item→price pairs. Names are canonicalised, so two
// entries differing only in case are rejected as duplicates.
func New(items map[string]int64) (*Catalog, error) {
	prices := make(map[string]int64, len(items))
	for name, price := range items {
		key := Canonical(name)
		if key == "" {
			return nil, errors.New("catalog: empty item name")
		}
		if price <= 0 {
			return nil, fmt.Errorf("catalog: item %q has non-positive price %d", key, price)
		}
		if _, dup := prices[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate item %q", key)
		}
		prices[key] = price
	}
	return &Catalog{prices: prices}, nil
}

// Canonical returns the lookup key for an item name.
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup canonicalises name and returns the canonical name and its price.
func (c *Catalog) Lookup(name string) (string, int64, error) {
	key := Canonical(name)
	price, ok := c.prices[key]
	if !ok {
		return "", 0, ErrUnknownItem
	}
	return key, price, nil
}
