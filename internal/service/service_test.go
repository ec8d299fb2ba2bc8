package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mechshop/backend/internal/domain"
	"mechshop/backend/internal/store"
	"mechshop/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()

	repo := memory.New()
	return New(repo, nil, 0), repo
}

func actorContext() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: 1, Username: "admin", Role: domain.RoleAdmin})
}

func TestRecordPurchaseThenSale(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	err := svc.RecordPurchase(ctx, domain.PurchaseCreateRequest{
		Supplier:        "AutoParts Ltd",
		Items:           "Brake Pad",
		Quantity:        10,
		DateOfPurchase:  "2026-08-29",
		WholesaleAmount: 50,
		SalesPrice:      80,
	})
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	item, err := repo.GetInventoryItemByName(ctx, "Brake Pad")
	if err != nil {
		t.Fatalf("lookup after purchase: %v", err)
	}
	if item.Stock != 10 || item.WholesalePrice != 50 || item.SalesPrice != 80 {
		t.Fatalf("unexpected inventory row after purchase: %+v", item)
	}

	resp, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		MembershipNo: 7,
		Items:        "Brake Pad",
		Quantity:     3,
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !resp.Success || resp.BillNo == 0 {
		t.Fatalf("unexpected sale response: %+v", resp)
	}

	sale, err := repo.GetSaleByID(ctx, resp.BillNo)
	if err != nil {
		t.Fatalf("fetch sale: %v", err)
	}
	if sale.Quantity != 3 || sale.Rate != 80 || sale.Total != 240 {
		t.Fatalf("expected quantity=3 rate=80 total=240, got %+v", sale)
	}

	item, err = repo.GetInventoryItemByName(ctx, "Brake Pad")
	if err != nil {
		t.Fatalf("lookup after sale: %v", err)
	}
	if item.Stock != 7 {
		t.Fatalf("expected stock 7 after selling 3 of 10, got %d", item.Stock)
	}
}

func TestRecordSale_UnknownItem(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RecordSale(actorContext(), domain.SaleCreateRequest{
		MembershipNo: 1,
		Items:        "Nonexistent Part",
		Quantity:     1,
	})
	if !errors.Is(err, store.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestRecordSale_ZeroQuantity(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Wiper Blade", Stock: 5, SalesPrice: 120}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	// Quantity omitted by the client decodes to 0 and produces a zero-total sale.
	resp, err := svc.RecordSale(ctx, domain.SaleCreateRequest{MembershipNo: 1, Items: "Wiper Blade"})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	sale, err := repo.GetSaleByID(ctx, resp.BillNo)
	if err != nil {
		t.Fatalf("fetch sale: %v", err)
	}
	if sale.Quantity != 0 || sale.Total != 0 {
		t.Fatalf("expected zero-quantity zero-total sale, got %+v", sale)
	}

	item, _ := repo.GetInventoryItemByName(ctx, "Wiper Blade")
	if item.Stock != 5 {
		t.Fatalf("stock should be unchanged, got %d", item.Stock)
	}
}

func TestRecordSale_StockMayGoNegative(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Clutch Cable", Stock: 2, SalesPrice: 300}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	if _, err := svc.RecordSale(ctx, domain.SaleCreateRequest{MembershipNo: 1, Items: "Clutch Cable", Quantity: 5}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	item, _ := repo.GetInventoryItemByName(ctx, "Clutch Cable")
	if item.Stock != -3 {
		t.Fatalf("expected stock -3, got %d", item.Stock)
	}
}

func TestRecordSale_LegacyCustomerField(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Fan Belt", Stock: 4, SalesPrice: 90}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	resp, err := svc.RecordSale(ctx, domain.SaleCreateRequest{Customer: "42", Items: "Fan Belt", Quantity: 1})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	sale, _ := repo.GetSaleByID(ctx, resp.BillNo)
	if sale.Customer != 42 {
		t.Fatalf("expected customer 42 from legacy field, got %d", sale.Customer)
	}
}

func TestRecordPurchase_ExistingItemOverwritesPrices(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Headlight Bulb", Stock: 3, WholesalePrice: 20, SalesPrice: 35}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	err := svc.RecordPurchase(ctx, domain.PurchaseCreateRequest{
		Supplier:        "Lumen Supply",
		Items:           "Headlight Bulb",
		Quantity:        12,
		WholesaleAmount: 25,
		SalesPrice:      40,
	})
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	item, _ := repo.GetInventoryItemByName(ctx, "Headlight Bulb")
	if item.Stock != 15 {
		t.Fatalf("expected stock 15, got %d", item.Stock)
	}
	if item.WholesalePrice != 25 || item.SalesPrice != 40 {
		t.Fatalf("expected prices overwritten by latest purchase, got %+v", item)
	}
}

func TestFindOrCreateCustomer_IdempotentPerPhone(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := actorContext()

	first, err := svc.FindOrCreateCustomer(ctx, domain.CustomerCreateRequest{
		Name:    "Dewi",
		Contact: "dewi@example.com",
		Phone:   "08123456789",
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	second, err := svc.FindOrCreateCustomer(ctx, domain.CustomerCreateRequest{
		Name:    "Someone Else",
		Contact: "other@example.com",
		Phone:   "08123456789",
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if second.MembershipNo != first.MembershipNo {
		t.Fatalf("expected same membership number, got %d and %d", first.MembershipNo, second.MembershipNo)
	}
	if second.Name != "Dewi" {
		t.Fatalf("existing record must be returned unchanged, got name %q", second.Name)
	}

	customers, err := svc.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("expected exactly one customer row, got %d", len(customers))
	}
}

func TestInvoice_UnknownMembershipYieldsNilCustomer(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Radiator Cap", Stock: 8, SalesPrice: 60}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	resp, err := svc.RecordSale(ctx, domain.SaleCreateRequest{MembershipNo: 999, Items: "Radiator Cap", Quantity: 1})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	inv, err := svc.Invoice(ctx, resp.BillNo)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if inv.Customer != nil {
		t.Fatalf("expected nil customer for unknown membership, got %+v", inv.Customer)
	}
	if inv.Sale.ID != resp.BillNo {
		t.Fatalf("expected sale %d on invoice, got %d", resp.BillNo, inv.Sale.ID)
	}
}

func TestInvoice_UnknownSale(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Invoice(actorContext(), 12345)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReport_EmptyRange(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Gear Oil", Stock: 10, SalesPrice: 200}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	if _, err := svc.RecordSale(ctx, domain.SaleCreateRequest{MembershipNo: 1, Items: "Gear Oil", Quantity: 2}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	report, err := svc.Report(ctx, domain.ReportFilter{Start: "1999-01-01", End: "1999-12-31"})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.TotalSales != 0 {
		t.Fatalf("expected no sales in range, got %v", report.TotalSales)
	}
	if report.BestSelling != nil {
		t.Fatalf("expected nil best_selling for empty range, got %+v", report.BestSelling)
	}
}

// Purchase totals in the report are not narrowed by the sales filter, so a
// date range that excludes every sale still carries the full purchase sum
// into the profit figure. Callers depend on the figure being computed this
// way, so the behavior is pinned down here.
func TestReport_PurchaseTotalsIgnoreFilter(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Timing Belt", Stock: 5, SalesPrice: 500}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	err := svc.RecordPurchase(ctx, domain.PurchaseCreateRequest{
		Supplier:        "BeltCo",
		Items:           "Timing Belt",
		Quantity:        5,
		WholesaleAmount: 300,
		SalesPrice:      500,
	})
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	report, err := svc.Report(ctx, domain.ReportFilter{Start: "1999-01-01", End: "1999-12-31"})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.TotalPurchases != 300 {
		t.Fatalf("expected purchase total 300 regardless of filter, got %v", report.TotalPurchases)
	}
	if report.Profit != -300 {
		t.Fatalf("expected profit -300 (0 sales in range - 300 purchases), got %v", report.Profit)
	}
}

func TestReport_LowStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Coolant", Stock: 2, SalesPrice: 110, LowStockThreshold: 5}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Grease", Stock: 20, SalesPrice: 70, LowStockThreshold: 5}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	report, err := svc.Report(ctx, domain.ReportFilter{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.LowStock) != 1 || report.LowStock[0].Name != "Coolant" {
		t.Fatalf("expected only Coolant below threshold, got %+v", report.LowStock)
	}
}

func TestRecordSale_WritesAuditEntry(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{ID: 3, Username: "staff", Role: domain.RoleStaff})

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Oil Seal", Stock: 6, SalesPrice: 45}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	if _, err := svc.RecordSale(ctx, domain.SaleCreateRequest{MembershipNo: 1, Items: "Oil Seal", Quantity: 1}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, 100)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(logs))
	}
	if logs[0].Action != "create_sale" || logs[0].UserID != 3 {
		t.Fatalf("unexpected audit entry: %+v", logs[0])
	}
}

// failingAuditRepo wraps a working repository but rejects audit writes.
type failingAuditRepo struct {
	store.Repository
}

func (failingAuditRepo) CreateAuditLog(context.Context, domain.AuditLogEntry) error {
	return errors.New("audit table unavailable")
}

func TestRecordSale_AuditFailureDoesNotFailSale(t *testing.T) {
	repo := memory.New()
	svc := New(failingAuditRepo{Repository: repo}, nil, 0)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Brake Fluid", Stock: 9, SalesPrice: 85}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	resp, err := svc.RecordSale(ctx, domain.SaleCreateRequest{MembershipNo: 1, Items: "Brake Fluid", Quantity: 2})
	if err != nil {
		t.Fatalf("sale must succeed even when the audit write fails: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success response, got %+v", resp)
	}
}

// fakeDashCache records gets and sets; a primed value is always a hit.
type fakeDashCache struct {
	stored *domain.DashboardStats
	gets   int
	sets   int
}

func (c *fakeDashCache) Get(context.Context, string) (*domain.DashboardStats, bool, error) {
	c.gets++
	if c.stored != nil {
		return c.stored, true, nil
	}
	return nil, false, nil
}

func (c *fakeDashCache) Set(_ context.Context, _ string, value *domain.DashboardStats, _ time.Duration) error {
	c.sets++
	c.stored = value
	return nil
}

func TestDashboard_CachesSummary(t *testing.T) {
	repo := memory.New()
	dashCache := &fakeDashCache{}
	svc := New(repo, dashCache, 15*time.Second)
	ctx := actorContext()

	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Chain Lube", Stock: 11, SalesPrice: 95}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	first, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard (miss): %v", err)
	}
	if first.InventoryCount != 1 {
		t.Fatalf("expected inventory count 1, got %d", first.InventoryCount)
	}
	if dashCache.sets != 1 {
		t.Fatalf("expected one cache write after miss, got %d", dashCache.sets)
	}

	// Mutate the store; the cached summary must still be served.
	if _, err := repo.CreateInventoryItem(ctx, domain.InventoryItem{Name: "Carb Cleaner", Stock: 7, SalesPrice: 65}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	second, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard (hit): %v", err)
	}
	if second.InventoryCount != 1 {
		t.Fatalf("expected cached inventory count 1, got %d", second.InventoryCount)
	}
	if dashCache.sets != 1 {
		t.Fatalf("cache hit must not rewrite the entry, got %d writes", dashCache.sets)
	}
}
