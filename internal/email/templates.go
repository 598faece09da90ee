package email

import (
	"bytes"
	"html/template"

	"github.com/example/ec-checkout/internal/money"
)

// ReceiptItem is one order line as shown in the receipt.
type ReceiptItem struct {
	Name       string
	Attributes string
	Quantity   int
	UnitCost   money.Money
	Subtotal   money.Money
}

// Receipt is the content of the payment receipt e-mail.
type Receipt struct {
	OrderID  int64
	ChargeID string
	Total    money.Money
	Currency string
	Items    []ReceiptItem
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #3f51b5; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thank you for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Your payment was received. Order details are below.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{.OrderID}}</p>
			{{- if .ChargeID}}
			<p style="margin: 5px 0 0 0; font-size: 12px; color: #999;">Payment reference {{.ChargeID}}</p>
			{{- end}}
		</div>
		{{- if .Items}}

		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Unit price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Items}}
				<tr>
					<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.Name}}{{if .Attributes}} <span style="color: #999;">({{.Attributes}})</span>{{end}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">${{.UnitCost}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">${{.Subtotal}}</td>
				</tr>
			{{- end}}
			</tbody>
		</table>
		{{- end}}

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #3f51b5; margin-left: 10px;">${{.Total}}</span>
		</div>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This message was sent automatically. Contact support if you have any questions.
		</p>
	</div>
</body>
</html>`))

// BuildReceiptBody renders the HTML body of the receipt e-mail.
func BuildReceiptBody(r Receipt) (string, error) {
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}
