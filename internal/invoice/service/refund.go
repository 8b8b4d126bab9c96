package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/storelane/storelane/internal/invoice/domain"
	"github.com/storelane/storelane/pkg/db"
	"github.com/storelane/storelane/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Refund(ctx context.Context, req invoicedomain.RefundInvoiceRequest) (invoicedomain.InvoiceDetail, error) {
	tenant, ok := tenantctx.FromContext(ctx)
	if !ok {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvalidTenant
	}

	originalID, err := snowflake.ParseString(strings.TrimSpace(req.OriginalInvoiceID))
	if err != nil || originalID == 0 {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvoiceNotFound
	}

	lines, err := validateRefundRequest(req)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		detail, err := s.refundOnce(ctx, tenant, originalID, lines, req.Notes)
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				continue
			}
			return invoicedomain.InvoiceDetail{}, err
		}

		s.metrics.RecordRefundCreated(tenant.Slug)
		s.log.Info("refund created",
			zap.Int64("tenant_id", int64(tenant.ID)),
			zap.Int64("invoice_number", detail.Invoice.InvoiceNumber),
			zap.String("original_invoice_id", originalID.String()),
		)
		return detail, nil
	}

	return invoicedomain.InvoiceDetail{}, invoicedomain.ErrTransientConflict
}

type parsedRefundLine struct {
	originalItemID snowflake.ID
	quantity       int64
}

func validateRefundRequest(req invoicedomain.RefundInvoiceRequest) ([]parsedRefundLine, error) {
	if len(req.Lines) == 0 {
		return nil, &invoicedomain.LineValidationError{Line: 0, Field: "lines"}
	}

	lines := make([]parsedRefundLine, 0, len(req.Lines))
	for i, line := range req.Lines {
		lineNo := i + 1
		if line.Quantity <= 0 {
			return nil, &invoicedomain.LineValidationError{Line: lineNo, Field: "quantity"}
		}
		id, err := snowflake.ParseString(strings.TrimSpace(line.OriginalItemID))
		if err != nil || id == 0 {
			return nil, &invoicedomain.LineValidationError{Line: lineNo, Field: "original_item_id"}
		}
		lines = append(lines, parsedRefundLine{originalItemID: id, quantity: line.Quantity})
	}
	return lines, nil
}

// refundOnce validates refund availability and creates the refund invoice as
// one atomic unit, so concurrent refunds against the same line cannot jointly
// over-refund.
func (s *Service) refundOnce(ctx context.Context, tenant tenantctx.Tenant, originalID snowflake.ID, lines []parsedRefundLine, notes string) (invoicedomain.InvoiceDetail, error) {
	now := s.clock.Now().UTC()

	var detail invoicedomain.InvoiceDetail
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockTenant(ctx, tx, tenant.ID); err != nil {
			return err
		}

		original, err := s.loadInvoiceForUpdate(ctx, tx, tenant.ID, originalID)
		if err != nil {
			return err
		}
		if original == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if original.IsRefund {
			return invoicedomain.ErrRefundOfRefund
		}

		originalItems, err := s.loadInvoiceItems(ctx, tx, tenant.ID, originalID)
		if err != nil {
			return err
		}
		byID := make(map[snowflake.ID]invoicedomain.InvoiceItem, len(originalItems))
		for _, item := range originalItems {
			byID[item.ID] = item
		}

		items := make([]invoicedomain.InvoiceItem, 0, len(lines))
		// Lines in this request referencing the same original item share one
		// availability budget with the committed refunds.
		pending := make(map[snowflake.ID]int64, len(lines))
		for i, line := range lines {
			lineNo := i + 1

			origItem, ok := byID[line.originalItemID]
			if !ok {
				return &invoicedomain.LineValidationError{Line: lineNo, Field: "original_item_id"}
			}

			alreadyRefunded, err := s.sumRefundedQuantity(ctx, tx, tenant.ID, origItem.ID)
			if err != nil {
				return err
			}
			alreadyRefunded += pending[origItem.ID]
			if alreadyRefunded+line.quantity > origItem.Quantity {
				return &invoicedomain.RefundExceedsError{
					Line:            lineNo,
					OriginalItemID:  origItem.ID,
					Requested:       line.quantity,
					AlreadyRefunded: alreadyRefunded,
					SoldQuantity:    origItem.Quantity,
				}
			}
			pending[origItem.ID] += line.quantity

			if origItem.CatalogItemID != nil {
				if err := s.restock(ctx, tx, tenant.ID, *origItem.CatalogItemID, line.quantity, now); err != nil {
					return err
				}
			}

			originalItemID := origItem.ID
			// Refund pricing always uses the frozen original snapshot.
			items = append(items, invoicedomain.InvoiceItem{
				ID:             s.genID.Generate(),
				TenantID:       tenant.ID,
				CatalogItemID:  origItem.CatalogItemID,
				OriginalItemID: &originalItemID,
				TitleSnapshot:  origItem.TitleSnapshot,
				UnitPrice:      origItem.UnitPrice,
				Taxable:        origItem.Taxable,
				VatPercent:     origItem.VatPercent,
				Quantity:       line.quantity,
				LineTotal:      origItem.UnitPrice * line.quantity,
				CreatedAt:      now,
			})
		}

		subtotal, vatAmount := computeTotals(items)

		number, err := s.nextInvoiceNumber(ctx, tx, tenant.ID)
		if err != nil {
			return err
		}

		invoice := invoicedomain.Invoice{
			ID:                s.genID.Generate(),
			TenantID:          tenant.ID,
			InvoiceNumber:     number,
			Subtotal:          subtotal,
			VatAmount:         vatAmount,
			Total:             subtotal + vatAmount,
			IsRefund:          true,
			OriginalInvoiceID: &originalID,
			PaymentMethod:     original.PaymentMethod,
			Notes:             strings.TrimSpace(notes),
			CreatedAt:         now,
		}

		if err := s.insertInvoice(ctx, tx, invoice); err != nil {
			return err
		}
		for i := range items {
			items[i].InvoiceID = invoice.ID
			if err := s.insertInvoiceItem(ctx, tx, items[i]); err != nil {
				return err
			}
		}

		detail = invoicedomain.InvoiceDetail{Invoice: invoice, Items: items}
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	return detail, nil
}

func (s *Service) loadInvoiceForUpdate(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	query := `SELECT id, tenant_id, invoice_number, subtotal, discount, vat_amount, total,
		        is_refund, original_invoice_id, payment_method, notes, created_at
		 FROM invoices
		 WHERE tenant_id = ? AND id = ?`
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(query, tenantID, invoiceID).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (s *Service) loadInvoiceItems(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	var items []invoicedomain.InvoiceItem
	err := tx.WithContext(ctx).Raw(
		`SELECT id, tenant_id, invoice_id, catalog_item_id, original_item_id,
		        title_snapshot, unit_price, taxable, vat_percent, quantity, line_total, created_at
		 FROM invoice_items
		 WHERE tenant_id = ? AND invoice_id = ?
		 ORDER BY id`,
		tenantID,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) sumRefundedQuantity(ctx context.Context, tx *gorm.DB, tenantID, originalItemID snowflake.ID) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(quantity), 0)
		 FROM invoice_items
		 WHERE tenant_id = ? AND original_item_id = ?`,
		tenantID,
		originalItemID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
