package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mechshop/backend/internal/domain"
	"mechshop/backend/internal/store"
)

// Store is an in-memory Repository used by tests and by dev mode when no
// DATABASE_URL is configured. All methods take the same transactional view
// as the postgres store: mutations happen under one lock, so a sale insert
// and its stock decrement are never observed half-applied.
type Store struct {
	mu             sync.RWMutex
	users          map[string]domain.User
	inventory      []domain.InventoryItem
	sales          []domain.Sale
	purchases      []domain.Purchase
	customers      []domain.Customer
	auditLogs      []domain.AuditLogEntry
	nextItemID     int64
	nextSaleID     int64
	nextPurchaseID int64
	nextMember     int64
	nextUserID     int64
	nextLogID      int64
}

func New() *Store {
	return &Store{
		users:          map[string]domain.User{},
		inventory:      make([]domain.InventoryItem, 0, 32),
		sales:          make([]domain.Sale, 0, 64),
		purchases:      make([]domain.Purchase, 0, 32),
		customers:      make([]domain.Customer, 0, 32),
		auditLogs:      make([]domain.AuditLogEntry, 0, 64),
		nextItemID:     1,
		nextSaleID:     1,
		nextPurchaseID: 1,
		nextMember:     1,
		nextUserID:     1,
		nextLogID:      1,
	}
}

// NewSeeded returns a store with dev users and a small parts catalog.
// Credentials come from SEED_ADMIN_PASSWORD / SEED_STAFF_PASSWORD; unset
// variables fall back to dev defaults with a warning. The seeded store is
// never used when DATABASE_URL is set.
func NewSeeded() *Store {
	s := New()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		s.users[u.username] = domain.User{
			ID:       s.nextUserID,
			Username: u.username,
			Password: string(hash),
			Role:     u.role,
		}
		s.nextUserID++
	}

	for _, item := range []domain.InventoryItem{
		{Name: "Engine Oil 10W-40", Category: "fluids", Stock: 24, WholesalePrice: 320, SalesPrice: 450, LowStockThreshold: 6},
		{Name: "Oil Filter", Category: "filters", Stock: 40, WholesalePrice: 90, SalesPrice: 150, LowStockThreshold: 10},
		{Name: "Air Filter", Category: "filters", Stock: 18, WholesalePrice: 140, SalesPrice: 220, LowStockThreshold: 5},
		{Name: "Spark Plug", Category: "ignition", Stock: 60, WholesalePrice: 45, SalesPrice: 80, LowStockThreshold: 12},
	} {
		item.ID = s.nextItemID
		s.nextItemID++
		s.inventory = append(s.inventory, item)
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

// AddUser registers a user account. Test helper; production accounts are
// provisioned directly in the database.
func (s *Store) AddUser(user domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == 0 {
		user.ID = s.nextUserID
		s.nextUserID++
	}
	s.users[user.Username] = user
	return user
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, len(s.inventory))
	copy(items, s.inventory)
	return items, nil
}

func (s *Store) GetInventoryItemByName(_ context.Context, name string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.itemIndexByName(name)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	found := s.inventory[idx]
	return &found, nil
}

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = s.nextItemID
	s.nextItemID++
	s.inventory = append(s.inventory, item)
	created := item
	return &created, nil
}

func (s *Store) UpdateInventoryItem(_ context.Context, item domain.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.inventory {
		if s.inventory[i].ID == item.ID {
			s.inventory[i] = item
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeleteInventoryItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.inventory {
		if s.inventory[i].ID == id {
			s.inventory = append(s.inventory[:i], s.inventory[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, len(s.sales))
	copy(sales, s.sales)
	return sales, nil
}

func (s *Store) GetSaleByID(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.ID == id {
			found := sale
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) RecordSale(_ context.Context, membershipNo int64, itemName string, quantity int) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.itemIndexByName(itemName)
	if idx < 0 {
		return nil, store.ErrItemNotFound
	}

	rate := s.inventory[idx].SalesPrice
	sale := domain.Sale{
		ID:       s.nextSaleID,
		Customer: membershipNo,
		Items:    itemName,
		Quantity: quantity,
		Rate:     rate,
		Total:    rate * float64(quantity),
		Date:     todayUTC(),
	}
	s.nextSaleID++
	s.sales = append(s.sales, sale)
	s.inventory[idx].Stock -= quantity

	created := sale
	return &created, nil
}

func (s *Store) ListSalesByCustomer(_ context.Context, membershipNo int64) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 8)
	for _, sale := range s.sales {
		if sale.Customer == membershipNo {
			sales = append(sales, sale)
		}
	}
	return sales, nil
}

func (s *Store) ListPurchases(_ context.Context) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.Purchase, len(s.purchases))
	copy(purchases, s.purchases)
	return purchases, nil
}

func (s *Store) RecordPurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase.ID = s.nextPurchaseID
	s.nextPurchaseID++
	s.purchases = append(s.purchases, purchase)

	idx := s.itemIndexByName(purchase.Items)
	if idx >= 0 {
		s.inventory[idx].Stock += purchase.Quantity
		s.inventory[idx].WholesalePrice = purchase.WholesaleAmount
		s.inventory[idx].SalesPrice = purchase.SalesPrice
	} else {
		s.inventory = append(s.inventory, domain.InventoryItem{
			ID:             s.nextItemID,
			Name:           purchase.Items,
			Category:       "",
			Stock:          purchase.Quantity,
			WholesalePrice: purchase.WholesaleAmount,
			SalesPrice:     purchase.SalesPrice,
		})
		s.nextItemID++
	}

	created := purchase
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, len(s.customers))
	copy(customers, s.customers)
	return customers, nil
}

func (s *Store) GetCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.Phone == phone {
			found := c
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetCustomerByMembershipNo(_ context.Context, membershipNo int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.MembershipNo == membershipNo {
			found := c
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.MembershipNo = s.nextMember
	s.nextMember++
	s.customers = append(s.customers, customer)
	created := customer
	return &created, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextLogID
	s.nextLogID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLogEntry, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLogEntry, len(s.auditLogs))
	copy(logs, s.auditLogs)
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].ID > logs[j].ID
		}
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) DashboardStats(_ context.Context) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{
		InventoryCount: int64(len(s.inventory)),
		RecentSales:    make([]domain.Sale, 0, 5),
	}

	today := todayUTC()
	weekAgo := today.AddDate(0, 0, -7)
	activeCustomers := map[int64]struct{}{}
	for _, sale := range s.sales {
		stats.TotalSales += sale.Total
		if sale.Date.Equal(today) {
			stats.TodayOrders++
		}
		if !sale.Date.Before(weekAgo) {
			activeCustomers[sale.Customer] = struct{}{}
		}
	}
	stats.ActiveCustomers = int64(len(activeCustomers))

	for i := len(s.sales) - 1; i >= 0 && len(stats.RecentSales) < 5; i-- {
		stats.RecentSales = append(stats.RecentSales, s.sales[i])
	}

	return stats, nil
}

func (s *Store) Report(_ context.Context, filter domain.ReportFilter) (domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.Report{LowStock: make([]domain.InventoryItem, 0, 8)}

	qtyByItem := map[string]int64{}
	for _, sale := range s.sales {
		if !saleMatches(sale, filter) {
			continue
		}
		report.TotalSales += sale.Total
		qtyByItem[sale.Items] += int64(sale.Quantity)
	}

	for _, p := range s.purchases {
		report.TotalPurchases += p.WholesaleAmount
	}
	report.Profit = report.TotalSales - report.TotalPurchases

	var best *domain.BestSelling
	items := make([]string, 0, len(qtyByItem))
	for item := range qtyByItem {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		qty := qtyByItem[item]
		if best == nil || qty > best.Qty {
			best = &domain.BestSelling{Items: item, Qty: qty}
		}
	}
	report.BestSelling = best

	for _, item := range s.inventory {
		if item.Stock < item.LowStockThreshold {
			report.LowStock = append(report.LowStock, item)
		}
	}

	return report, nil
}

func saleMatches(sale domain.Sale, filter domain.ReportFilter) bool {
	date := sale.Date.Format("2006-01-02")
	if filter.Start != "" && date < filter.Start {
		return false
	}
	if filter.End != "" && date > filter.End {
		return false
	}
	if filter.Customer != "" && filter.Customer != formatInt(sale.Customer) {
		return false
	}
	if filter.Item != "" && filter.Item != sale.Items {
		return false
	}
	return true
}

func (s *Store) itemIndexByName(name string) int {
	for i := range s.inventory {
		if s.inventory[i].Name == name {
			return i
		}
	}
	return -1
}

func todayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
