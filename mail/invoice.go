package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Invoice is the data rendered into a payment receipt.
type Invoice struct {
	Number        string    `json:"invoiceNumber"`
	IssuedAt      time.Time `json:"issuedAt"`
	CustomerName  string    `json:"customerName"`
	Email         string    `json:"email"`
	Description   string    `json:"description"`
	Lines         []Line    `json:"lines"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	TransactionID string    `json:"transactionId"`
	Status        string    `json:"status"`
}

type Line struct {
	Label    string `json:"label"`
	Quantity int64  `json:"quantity"`
}

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": formatMoney,
	"date":  func(t time.Time) string { return t.Format("January 2, 2006") },
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Payment receipt</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>Thanks for your purchase. Here is your receipt.</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td><b>Invoice</b></td><td>{{.Number}}</td></tr>
    <tr><td><b>Date</b></td><td>{{date .IssuedAt}}</td></tr>
    <tr><td><b>Item</b></td><td>{{.Description}}</td></tr>
    {{range .Lines}}<tr><td>{{.Label}}</td><td>{{.Quantity}}</td></tr>
    {{end}}<tr><td><b>Total</b></td><td>{{money .Amount .Currency}}</td></tr>
    <tr><td><b>Reference</b></td><td>{{.TransactionID}}</td></tr>
  </table>
</body>
</html>`))

// RenderInvoice returns the subject and HTML body for an invoice email.
func RenderInvoice(inv Invoice) (Message, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, inv); err != nil {
		return Message{}, fmt.Errorf("rendering invoice %s: %w", inv.Number, err)
	}
	return Message{
		To:      inv.Email,
		Subject: fmt.Sprintf("Your receipt %s", inv.Number),
		HTML:    buf.String(),
	}, nil
}

func formatMoney(amount float64, currency string) string {
	switch strings.ToUpper(currency) {
	case "USD":
		return fmt.Sprintf("$%.2f", amount)
	case "INR":
		return fmt.Sprintf("₹%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
}
