package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"mechshop/backend/internal/domain"
)

func TestRecordSaleAdjustsStock(t *testing.T) {
	databaseURL := os.Getenv("MECHSHOP_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MECHSHOP_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	itemName := fmt.Sprintf("Brake Pad IT %d", time.Now().UnixNano())

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE items = $1`, itemName)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchases WHERE items = $1`, itemName)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory WHERE name = $1`, itemName)
	})

	purchaseDate := "2026-08-29"
	if _, err := s.RecordPurchase(ctx, domain.Purchase{
		Supplier:        "AutoParts Ltd",
		Items:           itemName,
		Quantity:        10,
		DateOfPurchase:  &purchaseDate,
		WholesaleAmount: 50,
		SalesPrice:      80,
	}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	item, err := s.GetInventoryItemByName(ctx, itemName)
	if err != nil {
		t.Fatalf("lookup after purchase: %v", err)
	}
	if item.Stock != 10 || item.WholesalePrice != 50 || item.SalesPrice != 80 {
		t.Fatalf("unexpected inventory row after purchase: %+v", item)
	}

	sale, err := s.RecordSale(ctx, 7, itemName, 3)
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if sale.Rate != 80 || sale.Total != 240 {
		t.Fatalf("expected rate 80 total 240, got %+v", sale)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock
		FROM inventory
		WHERE id = $1
	`, item.ID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 7 {
		t.Fatalf("expected stock 7 after selling 3 of 10, got %d", stock)
	}
}
