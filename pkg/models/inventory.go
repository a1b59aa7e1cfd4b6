package models

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// CurrencyItem is the inventory item credited when selling at the market.
const CurrencyItem = "Honey"

const combItemSuffix = " Comb"

// CombItemName returns the inventory item name for a comb category,
// e.g. "honey" -> "Honey Comb".
func CombItemName(comb string) string {
	comb = strings.ToLower(strings.TrimSpace(comb))
	if comb == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(comb)
	return string(unicode.ToUpper(first)) + comb[size:] + combItemSuffix
}

// CombFromItemName is the inverse of CombItemName.
func CombFromItemName(item string) (string, bool) {
	if !strings.HasSuffix(item, combItemSuffix) {
		return "", false
	}
	comb := strings.ToLower(strings.TrimSuffix(item, combItemSuffix))
	if comb == "" {
		return "", false
	}
	return comb, true
}

// Item is one inventory line.
type Item struct {
	Name     string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

// Inventory maps item names to quantities. Missing items read as zero and
// reading never creates an entry.
type Inventory map[string]int

// Get returns the quantity of item, zero when absent.
func (inv Inventory) Get(item string) int {
	return inv[item]
}

// Add increases item by quantity. Negative quantities are rejected.
func (inv Inventory) Add(item string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("cannot add negative quantity %d of %q", quantity, item)
	}
	if quantity == 0 {
		return nil
	}
	inv[item] += quantity
	return nil
}

// Merge adds every item of other into inv.
func (inv Inventory) Merge(other Inventory) {
	for item, qty := range other {
		if qty > 0 {
			inv[item] += qty
		}
	}
}

// Total is the sum of all quantities.
func (inv Inventory) Total() int {
	total := 0
	for _, qty := range inv {
		total += qty
	}
	return total
}

// Items lists non-zero items sorted by name.
func (inv Inventory) Items() []Item {
	items := make([]Item, 0, len(inv))
	for name, qty := range inv {
		if qty > 0 {
			items = append(items, Item{Name: name, Quantity: qty})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// IsEmpty reports whether every quantity is zero.
func (inv Inventory) IsEmpty() bool {
	return inv.Total() == 0
}

// HiveDeposit adds Quantity of Item to a hive's inventory.
type HiveDeposit struct {
	GuildID  int64
	HiveID   uuid.UUID
	Item     string
	Quantity int
}
