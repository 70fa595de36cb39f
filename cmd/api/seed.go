package main

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
)

// seedDemo fills the in-memory store so a local run has something to order.
func seedDemo(m *store.Memory) {
	products := []domain.Product{
		{ID: "nasi-goreng", Name: "Nasi Goreng", CategoryID: "mains", Price: decimal.RequireFromString("35000"), Stock: 40},
		{ID: "mie-ayam", Name: "Mie Ayam", CategoryID: "mains", Price: decimal.RequireFromString("28000"), Stock: 30},
		{ID: "sate-ayam", Name: "Sate Ayam", CategoryID: "mains", Price: decimal.RequireFromString("32000"),
			DiscountedPrice: decimal.NewNullDecimal(decimal.RequireFromString("29000")), Stock: 25},
		{ID: "es-teh", Name: "Es Teh Manis", CategoryID: "drinks", Price: decimal.RequireFromString("8000"), Stock: 100},
		{ID: "es-jeruk", Name: "Es Jeruk", CategoryID: "drinks", Price: decimal.RequireFromString("12000"), Stock: 6, LowStockThreshold: 5},
	}
	for _, p := range products {
		p.IsActive, p.IsAvailable = true, true
		m.SeedProduct(p)
	}
	for i, capacity := range []int{2, 2, 4, 4, 6, 8} {
		loc := "indoor"
		if i >= 4 {
			loc = "terrace"
		}
		n := i + 1
		m.SeedTable(domain.Table{
			ID:       "table-" + strconv.Itoa(n),
			Number:   n,
			Capacity: capacity,
			Status:   domain.TableAvailable,
			Location: loc,
			IsActive: true,
		})
	}
}
