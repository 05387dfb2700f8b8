package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Unspecified is the catalog key used when no material has been chosen yet.
// It is priced at zero and never produces a quote.
const Unspecified = "unspecified"

// MaterialCatalog maps a material key to its unit price per square meter.
// A catalog is immutable once built and safe for concurrent reads.
type MaterialCatalog struct {
	prices map[string]decimal.Decimal
	keys   []string
}

// NewMaterialCatalog builds a catalog from a key → price table. Negative
// prices are rejected; zero is allowed and marks a material as not quotable.
func NewMaterialCatalog(prices map[string]float64) (MaterialCatalog, error) {
	cat := MaterialCatalog{
		prices: make(map[string]decimal.Decimal, len(prices)+1),
		keys:   make([]string, 0, len(prices)+1),
	}
	for key, price := range prices {
		if key == "" {
			return MaterialCatalog{}, fmt.Errorf("material key is empty")
		}
		if price < 0 {
			return MaterialCatalog{}, fmt.Errorf("material %q has negative unit price %.2f", key, price)
		}
		cat.prices[key] = decimal.NewFromFloat(price)
		cat.keys = append(cat.keys, key)
	}
	if _, ok := cat.prices[Unspecified]; !ok {
		cat.prices[Unspecified] = decimal.Zero
		cat.keys = append(cat.keys, Unspecified)
	}
	sort.Strings(cat.keys)
	return cat, nil
}

// Price returns the unit price for key and whether the key is known.
func (c MaterialCatalog) Price(key string) (decimal.Decimal, bool) {
	p, ok := c.prices[key]
	return p, ok
}

// Quotable reports whether key resolves to a strictly positive unit price.
func (c MaterialCatalog) Quotable(key string) bool {
	p, ok := c.prices[key]
	return ok && p.IsPositive()
}

// Keys returns the material keys in lexical order.
func (c MaterialCatalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of materials, including the unspecified sentinel.
func (c MaterialCatalog) Len() int { return len(c.keys) }
