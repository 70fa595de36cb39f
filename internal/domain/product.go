// Package domain holds the floor entities, their status machines and the
// pure calculations over them. Nothing here touches storage.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	CategoryID        string              `json:"category_id,omitempty"`
	Price             decimal.Decimal     `json:"price"`
	DiscountedPrice   decimal.NullDecimal `json:"discounted_price"`
	Stock             int                 `json:"stock"`
	LowStockThreshold int                 `json:"low_stock_threshold"`
	IsActive          bool                `json:"is_active"`
	IsAvailable       bool                `json:"is_available"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// CurrentPrice is the discounted price when set and lower than the list
// price, else the list price.
func (p Product) CurrentPrice() decimal.Decimal {
	if p.DiscountedPrice.Valid && p.DiscountedPrice.Decimal.LessThan(p.Price) {
		return p.DiscountedPrice.Decimal
	}
	return p.Price
}

func (p Product) Orderable() bool { return p.IsActive && p.IsAvailable }

type StockOperation string

const (
	StockSet      StockOperation = "set"
	StockAdd      StockOperation = "add"
	StockSubtract StockOperation = "subtract"
)

func (op StockOperation) Valid() bool {
	switch op {
	case StockSet, StockAdd, StockSubtract:
		return true
	}
	return false
}
