package receipt

import (
	"bytes"
	"errors"
	"testing"
	"time"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

func paidOrder() *store.PaymentOrder {
	paid := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	return &store.PaymentOrder{
		OrderID:        "order_1760607000000_7",
		UserID:         7,
		PlanType:       plans.PlanPro,
		Amount:         49900,
		Status:         store.OrderStatusPaid,
		GatewayOrderID: "cf_123",
		PaidAt:         &paid,
	}
}

func TestGenerateRendersPaidOrder(t *testing.T) {
	g := &Generator{compress: false}
	out, err := g.Generate(Data{
		Order:       paidOrder(),
		Email:       "buyer@example.com",
		Environment: "sandbox",
		GeneratedAt: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", out[:16])
	}
	for _, want := range []string{"order_1760607000000_7", "INR 499.00", "buyer@example.com", "test payment"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("receipt missing %q", want)
		}
	}
}

func TestGenerateRejectsUnpaidOrder(t *testing.T) {
	o := paidOrder()
	o.Status = store.OrderStatusCreated
	o.PaidAt = nil
	_, err := NewGenerator().Generate(Data{Order: o})
	if !errors.Is(err, internalerrors.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := formatAmount(19900, "INR"); got != "INR 199.00" {
		t.Errorf("formatAmount = %q", got)
	}
	if got := formatAmount(5, "INR"); got != "INR 0.05" {
		t.Errorf("formatAmount = %q", got)
	}
}
