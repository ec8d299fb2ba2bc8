package store

import (
	"context"
	"errors"

	"mechshop/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrItemNotFound = errors.New("item not found in inventory")
	ErrInvalidInput = errors.New("invalid input")
)

type Repository interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)
	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) error
	DeleteInventoryItem(ctx context.Context, id int64) error

	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error)
	// RecordSale resolves the item rate, inserts the sale row and decrements
	// stock in one transaction. The returned sale carries the assigned bill
	// number, the rate copied from inventory and the computed total.
	RecordSale(ctx context.Context, membershipNo int64, itemName string, quantity int) (*domain.Sale, error)
	ListSalesByCustomer(ctx context.Context, membershipNo int64) ([]domain.Sale, error)

	ListPurchases(ctx context.Context) ([]domain.Purchase, error)
	// RecordPurchase inserts the purchase row and applies the inventory
	// upsert (stock increment + price overwrite, or a fresh item) in one
	// transaction.
	RecordPurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	GetCustomerByMembershipNo(ctx context.Context, membershipNo int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLogEntry, error)

	DashboardStats(ctx context.Context) (domain.DashboardStats, error)
	Report(ctx context.Context, filter domain.ReportFilter) (domain.Report, error)
}
