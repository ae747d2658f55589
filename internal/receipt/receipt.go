// Package receipt renders PDF payment receipts for paid orders.
package receipt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

var (
	colorPrimary   = [3]int{76, 29, 149}
	colorTextDark  = [3]int{44, 62, 80}
	colorTextMuted = [3]int{127, 140, 141}
	colorTableAlt  = [3]int{245, 243, 255}
	colorGridLine  = [3]int{220, 220, 220}
)

// Data is everything printed on a receipt.
type Data struct {
	Order       *store.PaymentOrder
	Email       string
	Environment string
	GeneratedAt time.Time
}

// Generator renders receipts.
type Generator struct {
	compress bool
}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{compress: true}
}

// Generate renders a one-page receipt. Only paid orders have receipts.
func (g *Generator) Generate(data Data) ([]byte, error) {
	o := data.Order
	if o == nil {
		return nil, fmt.Errorf("receipt: order is nil")
	}
	if o.Status != store.OrderStatusPaid || o.PaidAt == nil {
		return nil, internalerrors.Validation("receipt", "order %s is not paid", o.OrderID)
	}
	plan, ok := plans.Lookup(o.PlanType)
	if !ok {
		plan = plans.Plan{Type: o.PlanType, DisplayName: string(o.PlanType), Currency: "INR"}
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(g.compress)
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle("Superflow receipt "+o.OrderID, false)
	pdf.SetCreationDate(data.GeneratedAt)
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(24)
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 12, "SUPERFLOW", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 7, "Payment receipt", "", 1, "L", false, 0, "")
	pdf.Ln(8)

	rows := [][2]string{
		{"Receipt for", data.Email},
		{"Order ID", o.OrderID},
		{"Gateway order", dash(o.GatewayOrderID)},
		{"Plan", plan.DisplayName},
		{"Recording minutes", plan.Minutes.String()},
		{"Amount paid", formatAmount(o.Amount, plan.Currency)},
		{"Paid on", o.PaidAt.UTC().Format("2 January 2006 15:04 MST")},
	}
	if data.Environment != "" && data.Environment != "production" {
		rows = append(rows, [2]string{"Environment", data.Environment + " (test payment)"})
	}
	g.writeTable(pdf, rows)

	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.MultiCell(0, 5, fmt.Sprintf("Generated %s. This receipt confirms payment for a one-month Superflow plan.",
		data.GeneratedAt.UTC().Format("2 January 2006 15:04 MST")), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeTable(pdf *fpdf.Fpdf, rows [][2]string) {
	labelWidth := 55.0
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	for i, row := range rows {
		fill := i%2 == 0
		pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		pdf.SetFont("Arial", "B", 10)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(labelWidth, 9, row[0], "B", 0, "L", fill, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(0, 9, row[1], "B", 1, "L", fill, 0, "")
	}
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
