package domain

import "time"

// User is the persistence model for login credentials. Accounts are
// provisioned out-of-band; the API only reads them during login.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	Role     string `json:"role"`
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Actor is the authenticated identity carried through request contexts.
type Actor struct {
	ID       int64
	Username string
	Role     string
}

// InventoryItem is keyed by id but looked up by name in the sale and
// purchase flows. Name uniqueness is conventional, not enforced.
// Stock has no floor and may go negative.
type InventoryItem struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	Stock             int     `json:"stock"`
	WholesalePrice    float64 `json:"wholesale_price"`
	SalesPrice        float64 `json:"sales_price"`
	LowStockThreshold int     `json:"low_stock_threshold"`
	Batch             string  `json:"batch"`
	ExpiryDate        string  `json:"expiry_date"`
}

// Sale rows are immutable once written. The auto-assigned id doubles as
// the bill number returned to clients.
type Sale struct {
	ID       int64     `json:"id"`
	Customer int64     `json:"customer"`
	Items    string    `json:"items"`
	Quantity int       `json:"quantity"`
	Rate     float64   `json:"rate"`
	Total    float64   `json:"total"`
	Date     time.Time `json:"date"`
}

type SaleCreateRequest struct {
	MembershipNo int64  `json:"membership_no"`
	Customer     string `json:"customer"`
	Items        string `json:"items"`
	Quantity     int    `json:"quantity"`
}

type SaleCreateResponse struct {
	Success bool  `json:"success"`
	BillNo  int64 `json:"bill_no"`
}

type Purchase struct {
	ID              int64   `json:"id"`
	Supplier        string  `json:"supplier"`
	Items           string  `json:"items"`
	Quantity        int     `json:"quantity"`
	DateOfPurchase  *string `json:"date_of_purchase"`
	WholesaleAmount float64 `json:"wholesale_amount"`
	SalesPrice      float64 `json:"sales_price"`
}

type PurchaseCreateRequest struct {
	Supplier        string  `json:"supplier"`
	Items           string  `json:"items"`
	Quantity        int     `json:"quantity"`
	DateOfPurchase  string  `json:"date_of_purchase"`
	WholesaleAmount float64 `json:"wholesale_amount"`
	SalesPrice      float64 `json:"sales_price"`
}

// Customer identity is the membership number. Phone is the natural dedup
// key: registering the same phone twice returns the stored record unchanged.
type Customer struct {
	MembershipNo int64  `json:"membership_no"`
	Name         string `json:"name"`
	Contact      string `json:"contact"`
	Phone        string `json:"phone"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
}

type AuditLogEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardStats struct {
	TotalSales      float64 `json:"total_sales"`
	InventoryCount  int64   `json:"inventory_count"`
	TodayOrders     int64   `json:"today_orders"`
	ActiveCustomers int64   `json:"active_customers"`
	RecentSales     []Sale  `json:"recent_sales"`
}

// ReportFilter narrows the sales aggregates only. Purchases are summed
// without a filter; see Report.TotalPurchases.
type ReportFilter struct {
	Start    string
	End      string
	Customer string
	Item     string
}

type BestSelling struct {
	Items string `json:"items"`
	Qty   int64  `json:"qty"`
}

// Report combines filtered sales totals with the all-time purchase total.
// Profit therefore mixes filtered and unfiltered figures; the number matches
// what the shop has always seen and changing it needs product sign-off.
type Report struct {
	TotalSales     float64         `json:"total_sales"`
	TotalPurchases float64         `json:"total_purchases"`
	Profit         float64         `json:"profit"`
	BestSelling    *BestSelling    `json:"best_selling"`
	LowStock       []InventoryItem `json:"low_stock"`
}

type Invoice struct {
	Sale     Sale      `json:"sale"`
	Customer *Customer `json:"customer"`
}

// InvoiceDocument is the single invoice-rendering contract: a printable
// HTML document plus a base64 payload for download.
type InvoiceDocument struct {
	BillNo      int64  `json:"bill_no"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	HTMLBase64  string `json:"html_base64"`
}

type NotifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
