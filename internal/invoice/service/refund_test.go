package service

import (
	"context"
	"testing"

	catalogdomain "github.com/storelane/storelane/internal/catalog/domain"
	invoicedomain "github.com/storelane/storelane/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createSale(t *testing.T, f *ledgerFixture, ctx context.Context, item catalogdomain.Item, qty int64) invoicedomain.InvoiceDetail {
	t.Helper()
	detail, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Lines:         []invoicedomain.LineInput{{CatalogItemID: item.ID.String(), Quantity: qty}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	return detail
}

func TestRefund_PartialThenExhausted(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := f.newTenant(t, "acme")

	item := f.newItem(t, ctx, catalogdomain.Item{
		Title: "Beans", UnitPrice: 2000, TrackStock: true, StockQuantity: 10,
	})
	sale := createSale(t, f, ctx, item, 3)
	soldLine := sale.Items[0]

	// Refund 2 of 3.
	refund, err := f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: soldLine.ID.String(), Quantity: 2},
		},
		Notes: "damaged bag",
	})
	require.NoError(t, err)
	assert.True(t, refund.Invoice.IsRefund)
	require.NotNil(t, refund.Invoice.OriginalInvoiceID)
	assert.Equal(t, sale.Invoice.ID, *refund.Invoice.OriginalInvoiceID)
	assert.Equal(t, int64(4000), refund.Invoice.Subtotal)
	assert.Equal(t, sale.Invoice.InvoiceNumber+1, refund.Invoice.InvoiceNumber,
		"refunds draw from the same number sequence")

	// A further 2 would exceed the 3 sold.
	_, err = f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: soldLine.ID.String(), Quantity: 2},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, invoicedomain.ErrRefundExceedsAvailable)

	var exceedsErr *invoicedomain.RefundExceedsError
	require.ErrorAs(t, err, &exceedsErr)
	assert.Equal(t, int64(2), exceedsErr.AlreadyRefunded)
	assert.Equal(t, int64(3), exceedsErr.SoldQuantity)

	// The last unit still goes through.
	_, err = f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: soldLine.ID.String(), Quantity: 1},
		},
	})
	assert.NoError(t, err)
}

func TestRefund_DuplicateLinesShareAvailability(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := f.newTenant(t, "acme")

	item := f.newItem(t, ctx, catalogdomain.Item{
		Title: "Beans", UnitPrice: 2000, TrackStock: true, StockQuantity: 10,
	})
	sale := createSale(t, f, ctx, item, 3)
	soldLine := sale.Items[0]

	// Two lines of 2 each pass individually but jointly exceed the 3 sold.
	_, err := f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: soldLine.ID.String(), Quantity: 2},
			{OriginalItemID: soldLine.ID.String(), Quantity: 2},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, invoicedomain.ErrRefundExceedsAvailable)

	var exceedsErr *invoicedomain.RefundExceedsError
	require.ErrorAs(t, err, &exceedsErr)
	assert.Equal(t, 2, exceedsErr.Line)
	assert.Equal(t, int64(2), exceedsErr.AlreadyRefunded, "first line counts against the second")
	assert.Equal(t, int64(3), exceedsErr.SoldQuantity)

	// Nothing committed: no refund invoice, stock unchanged.
	var refunds int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Where("is_refund = ?", true).Count(&refunds).Error)
	assert.Zero(t, refunds)

	var afterAttempt catalogdomain.Item
	require.NoError(t, f.db.First(&afterAttempt, "id = ?", item.ID).Error)
	assert.Equal(t, int64(7), afterAttempt.StockQuantity, "restock of the first line rolled back")

	// Split across lines within the sold quantity is fine.
	refund, err := f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: soldLine.ID.String(), Quantity: 2},
			{OriginalItemID: soldLine.ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, refund.Items, 2)
}

func TestRefund_RestocksTrackedItems(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := f.newTenant(t, "acme")

	item := f.newItem(t, ctx, catalogdomain.Item{
		Title: "Beans", UnitPrice: 2000, TrackStock: true, StockQuantity: 10,
	})
	sale := createSale(t, f, ctx, item, 4)

	var afterSale catalogdomain.Item
	require.NoError(t, f.db.First(&afterSale, "id = ?", item.ID).Error)
	require.Equal(t, int64(6), afterSale.StockQuantity)

	_, err := f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: sale.Items[0].ID.String(), Quantity: 3},
		},
	})
	require.NoError(t, err)

	var afterRefund catalogdomain.Item
	require.NoError(t, f.db.First(&afterRefund, "id = ?", item.ID).Error)
	assert.Equal(t, int64(9), afterRefund.StockQuantity)
}

func TestRefund_UsesFrozenPrice(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := f.newTenant(t, "acme")

	item := f.newItem(t, ctx, catalogdomain.Item{Title: "Beans", UnitPrice: 2000})
	sale := createSale(t, f, ctx, item, 1)

	// Raise the catalog price before refunding.
	require.NoError(t, f.db.Model(&catalogdomain.Item{}).
		Where("id = ?", item.ID).
		Update("unit_price", 5000).Error)

	refund, err := f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: sale.Items[0].ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, refund.Items, 1)
	assert.Equal(t, int64(2000), refund.Items[0].UnitPrice,
		"refund pricing always uses the sale-time snapshot")
	require.NotNil(t, refund.Items[0].OriginalItemID)
	assert.Equal(t, sale.Items[0].ID, *refund.Items[0].OriginalItemID)
}

func TestRefund_OfRefundRejected(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := f.newTenant(t, "acme")

	item := f.newItem(t, ctx, catalogdomain.Item{Title: "Beans", UnitPrice: 2000})
	sale := createSale(t, f, ctx, item, 2)

	refund, err := f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: sale.Items[0].ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: refund.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: refund.Items[0].ID.String(), Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrRefundOfRefund)
}

func TestRefund_UnknownInvoiceAndForeignLine(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := f.newTenant(t, "acme")

	item := f.newItem(t, ctx, catalogdomain.Item{Title: "Beans", UnitPrice: 2000})
	sale := createSale(t, f, ctx, item, 1)

	_, err := f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: f.node.Generate().String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: sale.Items[0].ID.String(), Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	other := createSale(t, f, ctx, item, 1)
	_, err = f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: other.Items[0].ID.String(), Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrValidation,
		"refund lines must reference lines of the named invoice")
}

func TestRefund_CrossTenantInvoiceHidden(t *testing.T) {
	f := newLedgerFixture(t)
	ctxA := f.newTenant(t, "alpha")
	ctxB := f.newTenant(t, "beta")

	item := f.newItem(t, ctxA, catalogdomain.Item{Title: "Beans", UnitPrice: 2000})
	sale := createSale(t, f, ctxA, item, 1)

	_, err := f.svc.Refund(ctxB, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: sale.Items[0].ID.String(), Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestList_RefundsOnly(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := f.newTenant(t, "acme")

	item := f.newItem(t, ctx, catalogdomain.Item{Title: "Beans", UnitPrice: 2000})
	sale := createSale(t, f, ctx, item, 2)

	_, err := f.svc.Refund(ctx, invoicedomain.RefundInvoiceRequest{
		OriginalInvoiceID: sale.Invoice.ID.String(),
		Lines: []invoicedomain.RefundLineInput{
			{OriginalItemID: sale.Items[0].ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, invoicedomain.ListInvoicesRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Invoices, 2)

	refunds, err := f.svc.List(ctx, invoicedomain.ListInvoicesRequest{RefundsOnly: true})
	require.NoError(t, err)
	require.Len(t, refunds.Invoices, 1)
	assert.True(t, refunds.Invoices[0].IsRefund)
}
