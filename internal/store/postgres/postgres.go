package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mechshop/backend/internal/domain"
	"mechshop/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Password, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, stock, wholesale_price, sales_price,
			low_stock_threshold, batch, expiry_date
		FROM inventory
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 128)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetInventoryItemByName(ctx context.Context, name string) (*domain.InventoryItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, stock, wholesale_price, sales_price,
			low_stock_threshold, batch, expiry_date
		FROM inventory
		WHERE name = $1
		ORDER BY id
		LIMIT 1
	`, name)
	item, err := scanInventoryItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory (name, category, stock, wholesale_price, sales_price,
			low_stock_threshold, batch, expiry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, item.Name, item.Category, item.Stock, item.WholesalePrice, item.SalesPrice,
		item.LowStockThreshold, nullIfEmpty(item.Batch), nullIfEmpty(item.ExpiryDate)).Scan(&item.ID)
	if err != nil {
		return nil, err
	}
	created := item
	return &created, nil
}

func (s *Store) UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory
		SET name = $2, category = $3, stock = $4, wholesale_price = $5,
			sales_price = $6, low_stock_threshold = $7, batch = $8, expiry_date = $9
		WHERE id = $1
	`, item.ID, item.Name, item.Category, item.Stock, item.WholesalePrice,
		item.SalesPrice, item.LowStockThreshold, nullIfEmpty(item.Batch), nullIfEmpty(item.ExpiryDate))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteInventoryItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT id, customer, items, quantity, rate, total, date
		FROM sales
		ORDER BY id
	`)
}

func (s *Store) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer, items, quantity, rate, total, date
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.Customer, &sale.Items, &sale.Quantity, &sale.Rate, &sale.Total, &sale.Date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.Date = dateUTC(sale.Date)
	return &sale, nil
}

// RecordSale performs the item lookup, the sale insert and the stock
// decrement inside one serializable transaction. The item row is locked so
// two concurrent sales against the same item cannot both read the same
// stock value. Stock is decremented unconditionally and may go negative.
func (s *Store) RecordSale(ctx context.Context, membershipNo int64, itemName string, quantity int) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var itemID int64
	var rate float64
	err = tx.QueryRowContext(ctx, `
		SELECT id, COALESCE(sales_price, 0)
		FROM inventory
		WHERE name = $1
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`, itemName).Scan(&itemID, &rate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		return nil, err
	}

	sale := domain.Sale{
		Customer: membershipNo,
		Items:    itemName,
		Quantity: quantity,
		Rate:     rate,
		Total:    rate * float64(quantity),
		Date:     dateUTC(time.Now().UTC()),
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (customer, items, quantity, rate, total, date)
		VALUES ($1,$2,$3,$4,$5,CURRENT_DATE)
		RETURNING id
	`, sale.Customer, sale.Items, sale.Quantity, sale.Rate, sale.Total).Scan(&sale.ID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory
		SET stock = stock - $1
		WHERE id = $2
	`, sale.Quantity, itemID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSalesByCustomer(ctx context.Context, membershipNo int64) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT id, customer, items, quantity, rate, total, date
		FROM sales
		WHERE customer = $1
		ORDER BY id
	`, membershipNo)
}

func (s *Store) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier, items, quantity, date_of_purchase, wholesale_amount, sales_price
		FROM purchases
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 64)
	for rows.Next() {
		var p domain.Purchase
		var date sql.NullString
		if err := rows.Scan(&p.ID, &p.Supplier, &p.Items, &p.Quantity, &date, &p.WholesaleAmount, &p.SalesPrice); err != nil {
			return nil, err
		}
		if date.Valid {
			p.DateOfPurchase = &date.String
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

// RecordPurchase writes the purchase row and applies the inventory side
// effect in one transaction: a known item gets its stock incremented and
// both prices overwritten (last write wins, no averaging); an unknown item
// is created with empty category and stock equal to the purchased quantity.
func (s *Store) RecordPurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO purchases (supplier, items, quantity, date_of_purchase, wholesale_amount, sales_price)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, purchase.Supplier, purchase.Items, purchase.Quantity, purchase.DateOfPurchase,
		purchase.WholesaleAmount, purchase.SalesPrice).Scan(&purchase.ID)
	if err != nil {
		return nil, err
	}

	var itemID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM inventory
		WHERE name = $1
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`, purchase.Items).Scan(&itemID)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory
			SET stock = stock + $1, wholesale_price = $2, sales_price = $3
			WHERE id = $4
		`, purchase.Quantity, purchase.WholesaleAmount, purchase.SalesPrice, itemID)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (name, category, stock, wholesale_price, sales_price, low_stock_threshold)
			VALUES ($1, '', $2, $3, $4, 0)
		`, purchase.Items, purchase.Quantity, purchase.WholesaleAmount, purchase.SalesPrice)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := purchase
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT membership_no, name, contact, phone
		FROM customers
		ORDER BY membership_no
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.MembershipNo, &c.Name, &c.Contact, &c.Phone); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return s.getCustomer(ctx, `
		SELECT membership_no, name, contact, phone
		FROM customers
		WHERE phone = $1
		ORDER BY membership_no
		LIMIT 1
	`, phone)
}

func (s *Store) GetCustomerByMembershipNo(ctx context.Context, membershipNo int64) (*domain.Customer, error) {
	return s.getCustomer(ctx, `
		SELECT membership_no, name, contact, phone
		FROM customers
		WHERE membership_no = $1
	`, membershipNo)
}

func (s *Store) getCustomer(ctx context.Context, query string, arg any) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&c.MembershipNo, &c.Name, &c.Contact, &c.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, contact, phone)
		VALUES ($1,$2,$3)
		RETURNING membership_no
	`, customer.Name, customer.Contact, customer.Phone).Scan(&customer.MembershipNo)
	if err != nil {
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, action, details, created_at)
		VALUES ($1,$2,$3,$4)
	`, entry.UserID, entry.Action, entry.Details, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, details, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLogEntry, 0, limit)
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total),0) FROM sales
	`).Scan(&stats.TotalSales)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inventory
	`).Scan(&stats.InventoryCount)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sales WHERE date = CURRENT_DATE
	`).Scan(&stats.TodayOrders)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT customer)
		FROM sales
		WHERE date >= CURRENT_DATE - INTERVAL '7 days'
	`).Scan(&stats.ActiveCustomers)
	if err != nil {
		return stats, err
	}

	recent, err := s.querySales(ctx, `
		SELECT id, customer, items, quantity, rate, total, date
		FROM sales
		ORDER BY id DESC
		LIMIT 5
	`)
	if err != nil {
		return stats, err
	}
	stats.RecentSales = recent

	return stats, nil
}

func (s *Store) Report(ctx context.Context, filter domain.ReportFilter) (domain.Report, error) {
	report := domain.Report{LowStock: make([]domain.InventoryItem, 0, 16)}

	where := `WHERE 1=1`
	args := make([]any, 0, 4)
	if filter.Start != "" {
		args = append(args, filter.Start)
		where += ` AND date >= $` + strconv.Itoa(len(args))
	}
	if filter.End != "" {
		args = append(args, filter.End)
		where += ` AND date <= $` + strconv.Itoa(len(args))
	}
	if filter.Customer != "" {
		args = append(args, filter.Customer)
		where += ` AND customer::text = $` + strconv.Itoa(len(args))
	}
	if filter.Item != "" {
		args = append(args, filter.Item)
		where += ` AND items = $` + strconv.Itoa(len(args))
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total),0) FROM sales `+where, args...).Scan(&report.TotalSales)
	if err != nil {
		return report, err
	}

	// Purchases are summed over all time regardless of the filter; the
	// resulting profit figure is the one the shop has always reported.
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(wholesale_amount),0) FROM purchases
	`).Scan(&report.TotalPurchases)
	if err != nil {
		return report, err
	}
	report.Profit = report.TotalSales - report.TotalPurchases

	var best domain.BestSelling
	err = s.db.QueryRowContext(ctx, `
		SELECT items, SUM(quantity) AS qty
		FROM sales `+where+`
		GROUP BY items
		ORDER BY qty DESC
		LIMIT 1
	`, args...).Scan(&best.Items, &best.Qty)
	switch {
	case err == nil:
		report.BestSelling = &best
	case errors.Is(err, sql.ErrNoRows):
		// no matching sales, BestSelling stays nil
	default:
		return report, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, stock, wholesale_price, sales_price,
			low_stock_threshold, batch, expiry_date
		FROM inventory
		WHERE stock < low_stock_threshold
		ORDER BY id
	`)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return report, err
		}
		report.LowStock = append(report.LowStock, item)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}

	return report, nil
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.Customer, &sale.Items, &sale.Quantity, &sale.Rate, &sale.Total, &sale.Date); err != nil {
			return nil, err
		}
		sale.Date = dateUTC(sale.Date)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventoryItem(row rowScanner) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	var batch sql.NullString
	var expiry sql.NullString
	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Stock,
		&item.WholesalePrice, &item.SalesPrice, &item.LowStockThreshold, &batch, &expiry)
	if err != nil {
		return item, err
	}
	item.Batch = batch.String
	item.ExpiryDate = expiry.String
	return item, nil
}

func dateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

