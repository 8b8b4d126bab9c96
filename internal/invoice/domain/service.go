package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/storelane/storelane/pkg/db/pagination"
)

// LineInput describes one requested invoice line. A line either references a
// catalog item (price and tax come from the item) or is a free-text override
// carrying its own title, price and tax fields.
type LineInput struct {
	CatalogItemID string  `json:"catalog_item_id,omitempty"`
	Title         string  `json:"title,omitempty"`
	UnitPrice     int64   `json:"unit_price,omitempty"`
	Taxable       bool    `json:"taxable,omitempty"`
	VatPercent    float64 `json:"vat_percent,omitempty"`
	Quantity      int64   `json:"quantity"`
}

type CreateInvoiceRequest struct {
	Lines         []LineInput `json:"lines"`
	Discount      int64       `json:"discount"`
	PaymentMethod string      `json:"payment_method"`
}

// RefundLineInput references a line of the original invoice by id.
type RefundLineInput struct {
	OriginalItemID string `json:"original_item_id"`
	Quantity       int64  `json:"quantity"`
}

type RefundInvoiceRequest struct {
	OriginalInvoiceID string            `json:"original_invoice_id"`
	Lines             []RefundLineInput `json:"lines"`
	Notes             string            `json:"notes,omitempty"`
}

type ListInvoicesRequest struct {
	pagination.Pagination
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Search      string
	RefundsOnly bool
}

type ListInvoicesResponse struct {
	Invoices []Invoice           `json:"invoices"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// InvoiceDetail is an invoice with its frozen lines.
type InvoiceDetail struct {
	Invoice Invoice       `json:"invoice"`
	Items   []InvoiceItem `json:"items"`
}

var (
	ErrInvalidTenant          = errors.New("invalid_tenant")
	ErrInvoiceNotFound        = errors.New("invoice_not_found")
	ErrValidation             = errors.New("validation_error")
	ErrOutOfStock             = errors.New("out_of_stock")
	ErrRefundExceedsAvailable = errors.New("refund_exceeds_available")
	ErrTransientConflict      = errors.New("transient_conflict")
	ErrRefundOfRefund         = errors.New("cannot_refund_a_refund")
)

// LineValidationError names the offending line so callers can correct the
// request instead of retrying blindly.
type LineValidationError struct {
	Line  int
	Field string
}

func (e *LineValidationError) Error() string {
	return fmt.Sprintf("line %d: invalid %s", e.Line, e.Field)
}

func (e *LineValidationError) Unwrap() error { return ErrValidation }

// OutOfStockError names the line and item that could not be fulfilled.
type OutOfStockError struct {
	Line      int
	ItemID    snowflake.ID
	Requested int64
	Available int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("line %d: item %s out of stock (requested %d, available %d)",
		e.Line, e.ItemID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// RefundExceedsError names the line whose cumulative refund quantity would
// exceed the originally sold quantity.
type RefundExceedsError struct {
	Line            int
	OriginalItemID  snowflake.ID
	Requested       int64
	AlreadyRefunded int64
	SoldQuantity    int64
}

func (e *RefundExceedsError) Error() string {
	return fmt.Sprintf("line %d: refund of %d exceeds available quantity (sold %d, already refunded %d)",
		e.Line, e.Requested, e.SoldQuantity, e.AlreadyRefunded)
}

func (e *RefundExceedsError) Unwrap() error { return ErrRefundExceedsAvailable }

// Service is the tenant-scoped sales/refund ledger. The tenant identity is
// read from the request context; calls without one fail closed.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (InvoiceDetail, error)
	Refund(ctx context.Context, req RefundInvoiceRequest) (InvoiceDetail, error)
	List(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)
	GetByID(ctx context.Context, id string) (InvoiceDetail, error)
}
