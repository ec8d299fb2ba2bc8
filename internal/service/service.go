package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"mechshop/backend/internal/cache"
	"mechshop/backend/internal/domain"
	"mechshop/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const dashboardCacheKey = "dashboard:summary"

type Service struct {
	repo         store.Repository
	dashCache    cache.DashboardCache
	dashCacheTTL time.Duration
}

func New(repo store.Repository, dashCache cache.DashboardCache, dashCacheTTL time.Duration) *Service {
	if dashCache == nil {
		dashCache = cache.NoopDashboardCache{}
	}
	if dashCacheTTL <= 0 {
		dashCacheTTL = 15 * time.Second
	}

	return &Service{
		repo:         repo,
		dashCache:    dashCache,
		dashCacheTTL: dashCacheTTL,
	}
}

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.repo.ListInventory(ctx)
}

func (s *Service) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (domain.InventoryItem, error) {
	created, err := s.repo.CreateInventoryItem(ctx, item)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.logAction(ctx, "create_inventory", fmt.Sprintf("Created inventory item=%s", created.Name))
	return *created, nil
}

func (s *Service) UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) error {
	if err := s.repo.UpdateInventoryItem(ctx, item); err != nil {
		return err
	}

	s.logAction(ctx, "update_inventory", fmt.Sprintf("Updated inventory id=%d", item.ID))
	return nil
}

func (s *Service) DeleteInventoryItem(ctx context.Context, id int64) error {
	if err := s.repo.DeleteInventoryItem(ctx, id); err != nil {
		return err
	}

	s.logAction(ctx, "delete_inventory", fmt.Sprintf("Deleted inventory id=%d", id))
	return nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// RecordSale captures a sale: the rate is copied from inventory at sale
// time, the total computed server-side and the stock decrement applied in
// the same transaction as the insert. An absent quantity is treated as 0
// and produces a zero-total sale; the membership number is stored as-is
// without existence validation.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleCreateResponse, error) {
	membershipNo := req.MembershipNo
	if membershipNo == 0 {
		// Older clients send the membership number in the customer field.
		if parsed, err := strconv.ParseInt(strings.TrimSpace(req.Customer), 10, 64); err == nil {
			membershipNo = parsed
		}
	}

	sale, err := s.repo.RecordSale(ctx, membershipNo, req.Items, req.Quantity)
	if err != nil {
		return domain.SaleCreateResponse{}, err
	}

	s.logAction(ctx, "create_sale", fmt.Sprintf("Created sale id=%d", sale.ID))
	return domain.SaleCreateResponse{Success: true, BillNo: sale.ID}, nil
}

// Invoice returns the sale plus its customer. An unknown membership number
// on the sale yields a nil customer rather than an error: sales are not
// validated against the customer registry at capture time.
func (s *Service) Invoice(ctx context.Context, saleID int64) (domain.Invoice, error) {
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.Invoice{}, err
	}

	invoice := domain.Invoice{Sale: *sale}
	customer, err := s.repo.GetCustomerByMembershipNo(ctx, sale.Customer)
	if err == nil {
		invoice.Customer = customer
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Invoice{}, err
	}

	return invoice, nil
}

func (s *Service) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx)
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseCreateRequest) error {
	var date *string
	if req.DateOfPurchase != "" {
		date = &req.DateOfPurchase
	}
	_, err := s.repo.RecordPurchase(ctx, domain.Purchase{
		Supplier:        req.Supplier,
		Items:           req.Items,
		Quantity:        req.Quantity,
		DateOfPurchase:  date,
		WholesaleAmount: req.WholesaleAmount,
		SalesPrice:      req.SalesPrice,
	})
	if err != nil {
		return err
	}

	s.logAction(ctx, "create_purchase", "Created purchase")
	return nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByPhone(ctx, phone)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// FindOrCreateCustomer resolves identity by phone number. A matching phone
// returns the stored record unchanged; the name and contact in the request
// are discarded. Only a miss creates a row, so repeated registrations with
// one phone yield one membership number.
func (s *Service) FindOrCreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomerByPhone(ctx, req.Phone)
	if err == nil {
		return *existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:    req.Name,
		Contact: req.Contact,
		Phone:   req.Phone,
	})
	if err != nil {
		return domain.Customer{}, err
	}

	saved, err := s.repo.GetCustomerByMembershipNo(ctx, created.MembershipNo)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAction(ctx, "create_customer", fmt.Sprintf("Created customer id=%d", saved.MembershipNo))
	return *saved, nil
}

func (s *Service) CustomerHistory(ctx context.Context, membershipNo int64) ([]domain.Sale, error) {
	return s.repo.ListSalesByCustomer(ctx, membershipNo)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	return s.repo.ListAuditLogs(ctx, limit)
}

// Dashboard serves the summary from the cache when warm and recomputes it
// otherwise. Cache failures degrade to a direct read.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardStats, error) {
	cached, found, err := s.dashCache.Get(ctx, dashboardCacheKey)
	if err != nil {
		log.Printf("[service] WARN: dashboard cache read failed: %v", err)
	}
	if found && cached != nil {
		return *cached, nil
	}

	stats, err := s.repo.DashboardStats(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	if err := s.dashCache.Set(ctx, dashboardCacheKey, &stats, s.dashCacheTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write failed: %v", err)
	}

	return stats, nil
}

func (s *Service) Report(ctx context.Context, filter domain.ReportFilter) (domain.Report, error) {
	return s.repo.Report(ctx, filter)
}

// logAction appends an audit entry for the acting user. Audit writes are
// best-effort: a failed write is logged and never fails the primary
// operation.
func (s *Service) logAction(ctx context.Context, action string, details string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLogEntry{
		UserID:    actor.ID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: audit log write failed action=%s: %v", action, err)
	}
}
