// Package invoice renders sale invoices as printable HTML documents. It is
// the single rendering contract for invoices: header, customer block,
// line-item table, total, footer.
package invoice

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"

	"mechshop/backend/internal/domain"
)

// All user-controlled fields are auto-escaped by html/template.
var invoiceHTMLTmpl = template.Must(template.New("invoice").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Invoice #{{.Sale.ID}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
    .footer { margin-top: 24px; font-size: 12px; color: #555; }
  </style>
</head>
<body>
  <h2>Invoice #{{.Sale.ID}}</h2>
  <p>Date: {{.Sale.Date.Format "2006-01-02"}}</p>

  <h3>Customer</h3>
  {{if .Customer}}
  <p>{{.Customer.Name}} (membership {{.Customer.MembershipNo}})<br/>{{.Customer.Phone}}</p>
  {{else}}
  <p>Walk-in (membership {{.Sale.Customer}})</p>
  {{end}}

  <table>
    <thead><tr><th>Item</th><th>Quantity</th><th>Rate</th><th>Total</th></tr></thead>
    <tbody>
      <tr>
        <td>{{.Sale.Items}}</td>
        <td style="text-align:right;">{{.Sale.Quantity}}</td>
        <td style="text-align:right;">{{printf "%.2f" .Sale.Rate}}</td>
        <td style="text-align:right;">{{printf "%.2f" .Sale.Total}}</td>
      </tr>
    </tbody>
  </table>

  <h3 style="text-align:right;">Grand Total: {{printf "%.2f" .Sale.Total}}</h3>

  <p class="footer">Thank you for your business.</p>
</body>
</html>
`))

// Document renders the invoice and wraps it with the metadata a client
// needs to offer the file for download.
func Document(inv domain.Invoice) (domain.InvoiceDocument, error) {
	var buf bytes.Buffer
	if err := invoiceHTMLTmpl.Execute(&buf, inv); err != nil {
		return domain.InvoiceDocument{}, fmt.Errorf("render invoice %d: %w", inv.Sale.ID, err)
	}

	return domain.InvoiceDocument{
		BillNo:      inv.Sale.ID,
		FileName:    fmt.Sprintf("invoice-%d.html", inv.Sale.ID),
		ContentType: "text/html; charset=utf-8",
		HTMLBase64:  base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
