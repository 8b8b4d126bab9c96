package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/storelane/storelane/internal/catalog/domain"
	"github.com/storelane/storelane/internal/clock"
	invoicedomain "github.com/storelane/storelane/internal/invoice/domain"
	obsmetrics "github.com/storelane/storelane/internal/observability/metrics"
	"github.com/storelane/storelane/pkg/db"
	"github.com/storelane/storelane/pkg/db/option"
	"github.com/storelane/storelane/pkg/db/pagination"
	"github.com/storelane/storelane/pkg/repository"
	"github.com/storelane/storelane/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxWriteAttempts bounds the transparent retry on invoice-number conflicts.
// Anything beyond this surfaces as a transient-conflict error.
const maxWriteAttempts = 3

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.DomainMetrics

	invoiceStore repository.Scoped[invoicedomain.Invoice]
	itemStore    repository.Scoped[invoicedomain.InvoiceItem]
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.DomainMetrics `optional:"true"`
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,

		invoiceStore: repository.ProvideScoped[invoicedomain.Invoice](p.DB),
		itemStore:    repository.ProvideScoped[invoicedomain.InvoiceItem](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.InvoiceDetail, error) {
	tenant, ok := tenantctx.FromContext(ctx)
	if !ok {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvalidTenant
	}

	lines, err := validateCreateRequest(req)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		detail, err := s.createOnce(ctx, tenant, req, lines)
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				continue
			}
			return invoicedomain.InvoiceDetail{}, err
		}

		s.metrics.RecordInvoiceCreated(tenant.Slug)
		s.log.Info("invoice created",
			zap.Int64("tenant_id", int64(tenant.ID)),
			zap.Int64("invoice_number", detail.Invoice.InvoiceNumber),
			zap.Int64("total", detail.Invoice.Total),
		)
		return detail, nil
	}

	return invoicedomain.InvoiceDetail{}, invoicedomain.ErrTransientConflict
}

// parsedLine is a validated request line with its catalog reference resolved
// to an id.
type parsedLine struct {
	catalogItemID snowflake.ID
	input         invoicedomain.LineInput
}

func validateCreateRequest(req invoicedomain.CreateInvoiceRequest) ([]parsedLine, error) {
	if len(req.Lines) == 0 {
		return nil, &invoicedomain.LineValidationError{Line: 0, Field: "lines"}
	}
	if req.Discount < 0 {
		return nil, &invoicedomain.LineValidationError{Line: 0, Field: "discount"}
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return nil, &invoicedomain.LineValidationError{Line: 0, Field: "payment_method"}
	}

	lines := make([]parsedLine, 0, len(req.Lines))
	for i, line := range req.Lines {
		lineNo := i + 1
		if line.Quantity <= 0 {
			return nil, &invoicedomain.LineValidationError{Line: lineNo, Field: "quantity"}
		}

		ref := strings.TrimSpace(line.CatalogItemID)
		if ref == "" {
			// Free-text override line carries its own snapshot fields.
			if strings.TrimSpace(line.Title) == "" {
				return nil, &invoicedomain.LineValidationError{Line: lineNo, Field: "title"}
			}
			if line.UnitPrice < 0 {
				return nil, &invoicedomain.LineValidationError{Line: lineNo, Field: "unit_price"}
			}
			if line.VatPercent < 0 || line.VatPercent > 100 {
				return nil, &invoicedomain.LineValidationError{Line: lineNo, Field: "vat_percent"}
			}
			lines = append(lines, parsedLine{input: line})
			continue
		}

		id, err := snowflake.ParseString(ref)
		if err != nil || id == 0 {
			return nil, &invoicedomain.LineValidationError{Line: lineNo, Field: "catalog_item_id"}
		}
		lines = append(lines, parsedLine{catalogItemID: id, input: line})
	}

	return lines, nil
}

func (s *Service) createOnce(ctx context.Context, tenant tenantctx.Tenant, req invoicedomain.CreateInvoiceRequest, lines []parsedLine) (invoicedomain.InvoiceDetail, error) {
	now := s.clock.Now().UTC()

	var detail invoicedomain.InvoiceDetail
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serializes same-tenant invoice creation; other tenants are untouched.
		if err := s.lockTenant(ctx, tx, tenant.ID); err != nil {
			return err
		}

		items := make([]invoicedomain.InvoiceItem, 0, len(lines))
		for i, line := range lines {
			lineNo := i + 1

			item := invoicedomain.InvoiceItem{
				ID:        s.genID.Generate(),
				TenantID:  tenant.ID,
				Quantity:  line.input.Quantity,
				CreatedAt: now,
			}

			if line.catalogItemID != 0 {
				catalogItem, err := s.loadCatalogItem(ctx, tx, tenant.ID, line.catalogItemID)
				if errors.Is(err, catalogdomain.ErrNotFound) {
					return &invoicedomain.LineValidationError{Line: lineNo, Field: "catalog_item_id"}
				}
				if err != nil {
					return err
				}

				if catalogItem.TrackStock {
					if catalogItem.StockQuantity < line.input.Quantity {
						return &invoicedomain.OutOfStockError{
							Line:      lineNo,
							ItemID:    catalogItem.ID,
							Requested: line.input.Quantity,
							Available: catalogItem.StockQuantity,
						}
					}
					if err := s.decrementStock(ctx, tx, tenant.ID, catalogItem.ID, line.input.Quantity, now); err != nil {
						return err
					}
				}

				id := catalogItem.ID
				item.CatalogItemID = &id
				item.TitleSnapshot = catalogItem.Title
				item.UnitPrice = catalogItem.UnitPrice
				item.Taxable = catalogItem.Taxable
				item.VatPercent = catalogItem.VatPercent
			} else {
				item.TitleSnapshot = strings.TrimSpace(line.input.Title)
				item.UnitPrice = line.input.UnitPrice
				item.Taxable = line.input.Taxable
				item.VatPercent = line.input.VatPercent
			}

			item.LineTotal = item.UnitPrice * item.Quantity
			items = append(items, item)
		}

		subtotal, vatAmount := computeTotals(items)

		number, err := s.nextInvoiceNumber(ctx, tx, tenant.ID)
		if err != nil {
			return err
		}

		invoice := invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			TenantID:      tenant.ID,
			InvoiceNumber: number,
			Subtotal:      subtotal,
			Discount:      req.Discount,
			VatAmount:     vatAmount,
			Total:         subtotal - req.Discount + vatAmount,
			PaymentMethod: strings.TrimSpace(req.PaymentMethod),
			CreatedAt:     now,
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

func computeTotals(items []invoicedomain.InvoiceItem) (subtotal, vatAmount int64) {
	for _, item := range items {
		subtotal += item.LineTotal
		if item.Taxable {
			vatAmount += int64(math.Round(float64(item.LineTotal) * item.VatPercent / 100))
		}
	}
	return subtotal, vatAmount
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoicesRequest) (invoicedomain.ListInvoicesResponse, error) {
	tenant, ok := tenantctx.FromContext(ctx)
	if !ok {
		return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidTenant
	}

	size := req.PageSize
	if size <= 0 {
		size = 25
	}
	if size > 250 {
		size = 250
	}

	opts := []option.QueryOption{
		option.Order("created_at DESC, id DESC"),
		option.Limit(size + 1),
	}
	if req.CreatedFrom != nil {
		opts = append(opts, option.Where("created_at >= ?", *req.CreatedFrom))
	}
	if req.CreatedTo != nil {
		opts = append(opts, option.Where("created_at < ?", *req.CreatedTo))
	}
	if search := strings.TrimSpace(req.Search); search != "" {
		if number, err := strconv.ParseInt(search, 10, 64); err == nil {
			opts = append(opts, option.Where("invoice_number = ?", number))
		} else {
			opts = append(opts, option.Where(
				"EXISTS (SELECT 1 FROM invoice_items ii WHERE ii.invoice_id = invoices.id AND ii.title_snapshot LIKE ?)",
				"%"+search+"%",
			))
		}
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoicesResponse{}, &invoicedomain.LineValidationError{Line: 0, Field: "page_token"}
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return invoicedomain.ListInvoicesResponse{}, &invoicedomain.LineValidationError{Line: 0, Field: "page_token"}
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return invoicedomain.ListInvoicesResponse{}, &invoicedomain.LineValidationError{Line: 0, Field: "page_token"}
		}
		opts = append(opts, option.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			createdAt, createdAt, cursorID,
		))
	}

	filter := &invoicedomain.Invoice{}
	if req.RefundsOnly {
		filter.IsRefund = true
	}

	rows, err := s.invoiceStore.Find(ctx, tenant.ID, filter, opts...)
	if err != nil {
		return invoicedomain.ListInvoicesResponse{}, err
	}

	rows, pageInfo := pagination.BuildCursorPageInfo(rows, size, func(inv *invoicedomain.Invoice) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.Format(time.RFC3339Nano),
		})
		return token
	})

	invoices := make([]invoicedomain.Invoice, 0, len(rows))
	for _, row := range rows {
		invoices = append(invoices, *row)
	}

	return invoicedomain.ListInvoicesResponse{
		Invoices: invoices,
		PageInfo: *pageInfo,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.InvoiceDetail, error) {
	tenant, ok := tenantctx.FromContext(ctx)
	if !ok {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvalidTenant
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID == 0 {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvoiceNotFound
	}

	invoice, err := s.invoiceStore.FindOne(ctx, tenant.ID, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	if invoice == nil {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvoiceNotFound
	}

	rows, err := s.itemStore.Find(ctx, tenant.ID, &invoicedomain.InvoiceItem{InvoiceID: invoiceID},
		option.Order("id ASC"))
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	items := make([]invoicedomain.InvoiceItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, *row)
	}

	return invoicedomain.InvoiceDetail{Invoice: *invoice, Items: items}, nil
}

func (s *Service) lockTenant(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) error {
	query := `SELECT id
		 FROM tenants
		 WHERE id = ?`
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var id snowflake.ID
	err := tx.WithContext(ctx).Raw(query, tenantID).Scan(&id).Error
	if err != nil {
		return err
	}
	if id == 0 {
		return invoicedomain.ErrInvalidTenant
	}
	return nil
}

func (s *Service) loadCatalogItem(ctx context.Context, tx *gorm.DB, tenantID, itemID snowflake.ID) (*catalogdomain.Item, error) {
	var item catalogdomain.Item
	err := tx.WithContext(ctx).Raw(
		`SELECT id, tenant_id, title, unit_price, taxable, vat_percent,
		        track_stock, stock_quantity
		 FROM catalog_items
		 WHERE tenant_id = ? AND id = ?`,
		tenantID,
		itemID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, catalogdomain.ErrNotFound
	}
	return &item, nil
}

func (s *Service) decrementStock(ctx context.Context, tx *gorm.DB, tenantID, itemID snowflake.ID, quantity int64, now time.Time) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE catalog_items
		 SET stock_quantity = stock_quantity - ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND track_stock = ? AND stock_quantity >= ?`,
		quantity,
		now,
		tenantID,
		itemID,
		true,
		quantity,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &invoicedomain.OutOfStockError{ItemID: itemID, Requested: quantity}
	}
	return nil
}

func (s *Service) restock(ctx context.Context, tx *gorm.DB, tenantID, itemID snowflake.ID, quantity int64, now time.Time) error {
	// Only items that are still stock-tracked get the quantity back.
	return tx.WithContext(ctx).Exec(
		`UPDATE catalog_items
		 SET stock_quantity = stock_quantity + ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND track_stock = ?`,
		quantity,
		now,
		tenantID,
		itemID,
		true,
	).Error
}

func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (int64, error) {
	var next int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(invoice_number), 0) + 1
		 FROM invoices
		 WHERE tenant_id = ?`,
		tenantID,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Service) insertInvoice(ctx context.Context, tx *gorm.DB, invoice invoicedomain.Invoice) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, tenant_id, invoice_number, subtotal, discount, vat_amount, total,
			is_refund, original_invoice_id, payment_method, notes, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.TenantID,
		invoice.InvoiceNumber,
		invoice.Subtotal,
		invoice.Discount,
		invoice.VatAmount,
		invoice.Total,
		invoice.IsRefund,
		invoice.OriginalInvoiceID,
		invoice.PaymentMethod,
		invoice.Notes,
		invoice.Metadata,
		invoice.CreatedAt,
	).Error
}

func (s *Service) insertInvoiceItem(ctx context.Context, tx *gorm.DB, item invoicedomain.InvoiceItem) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_items (
			id, tenant_id, invoice_id, catalog_item_id, original_item_id,
			title_snapshot, unit_price, taxable, vat_percent, quantity, line_total, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.TenantID,
		item.InvoiceID,
		item.CatalogItemID,
		item.OriginalItemID,
		item.TitleSnapshot,
		item.UnitPrice,
		item.Taxable,
		item.VatPercent,
		item.Quantity,
		item.LineTotal,
		item.CreatedAt,
	).Error
}
