package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/storelane/storelane/internal/gate"
	invoicedomain "github.com/storelane/storelane/internal/invoice/domain"
	subscriptiondomain "github.com/storelane/storelane/internal/subscription/domain"
	tenantdomain "github.com/storelane/storelane/internal/tenant/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal_error")
)

// GateBlockedError carries the gate decision to the error mapper so blocked
// responses can name the reason and the recovery path.
type GateBlockedError struct {
	Decision gate.Decision
}

func (e *GateBlockedError) Error() string {
	return "subscription_" + string(e.Decision.Reason)
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &requestValidationError{
		errs: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

type requestValidationError struct {
	errs []ValidationError
}

func (v *requestValidationError) Error() string { return "validation error" }

func mapError(err error) (int, errorPayload) {
	var gateErr *GateBlockedError
	if errors.As(err, &gateErr) {
		return http.StatusForbidden, errorPayload{
			Type:    "subscription_blocked",
			Message: gateBlockedMessage(gateErr.Decision.Reason),
			Reason:  string(gateErr.Decision.Reason),
		}
	}

	var reqErr *requestValidationError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  reqErr.errs,
		}
	}

	var lineErr *invoicedomain.LineValidationError
	if errors.As(err, &lineErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   lineField(lineErr.Line, lineErr.Field),
				Code:    "invalid_value",
				Message: lineErr.Error(),
			}},
		}
	}

	var stockErr *invoicedomain.OutOfStockError
	if errors.As(err, &stockErr) {
		return http.StatusConflict, errorPayload{
			Type:    "out_of_stock",
			Message: stockErr.Error(),
			Errors: []ValidationError{{
				Field:   lineField(stockErr.Line, "quantity"),
				Code:    "out_of_stock",
				Message: fmt.Sprintf("requested %d, available %d", stockErr.Requested, stockErr.Available),
			}},
		}
	}

	var refundErr *invoicedomain.RefundExceedsError
	if errors.As(err, &refundErr) {
		return http.StatusConflict, errorPayload{
			Type:    "refund_exceeds_available",
			Message: refundErr.Error(),
			Errors: []ValidationError{{
				Field:   lineField(refundErr.Line, "quantity"),
				Code:    "refund_exceeds_available",
				Message: fmt.Sprintf("sold %d, already refunded %d", refundErr.SoldQuantity, refundErr.AlreadyRefunded),
			}},
		}
	}

	switch {
	case errors.Is(err, tenantdomain.ErrNoSlug):
		return http.StatusNotFound, errorPayload{Type: "no_slug_provided", Message: "store identifier is required"}
	case errors.Is(err, tenantdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "tenant_not_found", Message: "store not found"}
	case errors.Is(err, tenantdomain.ErrInactive):
		return http.StatusNotFound, errorPayload{Type: "tenant_inactive", Message: "store is not active"}

	case errors.Is(err, subscriptiondomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "subscription_not_found", Message: "no subscription on record"}
	case errors.Is(err, subscriptiondomain.ErrAlreadySubscribed):
		return http.StatusConflict, errorPayload{Type: "already_subscribed", Message: "tenant already has a subscription"}
	case errors.Is(err, subscriptiondomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{Type: "invalid_lifecycle_transition", Message: "operation not allowed in current state"}
	case errors.Is(err, subscriptiondomain.ErrInvalidPlan):
		return http.StatusBadRequest, errorPayload{Type: "invalid_plan", Message: "plan id is required"}
	case errors.Is(err, subscriptiondomain.ErrInvalidAmount):
		return http.StatusBadRequest, errorPayload{Type: "invalid_payment_amount", Message: "payment amount must be positive"}
	case errors.Is(err, subscriptiondomain.ErrInvalidMonths):
		return http.StatusBadRequest, errorPayload{Type: "invalid_renewal_months", Message: "months must be positive"}

	case errors.Is(err, invoicedomain.ErrInvoiceNotFound):
		return http.StatusNotFound, errorPayload{Type: "invoice_not_found", Message: "invoice not found"}
	case errors.Is(err, invoicedomain.ErrRefundOfRefund):
		return http.StatusConflict, errorPayload{Type: "cannot_refund_a_refund", Message: "refund invoices cannot be refunded"}
	case errors.Is(err, invoicedomain.ErrTransientConflict):
		return http.StatusConflict, errorPayload{Type: "transient_conflict", Message: "write conflict, retry the request"}
	case errors.Is(err, invoicedomain.ErrValidation):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error"}
	case errors.Is(err, invoicedomain.ErrInvalidTenant), errors.Is(err, subscriptiondomain.ErrInvalidTenant):
		return http.StatusNotFound, errorPayload{Type: "tenant_not_found", Message: "store not found"}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "authentication required"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "access denied"}

	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "resource not found"}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func gateBlockedMessage(reason gate.BlockReason) string {
	switch reason {
	case gate.BlockSuspended:
		return "account suspended, contact support"
	case gate.BlockExpired:
		return "subscription expired, renew to reactivate"
	default:
		return "request blocked"
	}
}

func lineField(line int, field string) string {
	return "lines[" + strconv.Itoa(line-1) + "]." + field
}

func resolutionFailureKind(err error) string {
	switch {
	case errors.Is(err, tenantdomain.ErrNoSlug):
		return "no_slug"
	case errors.Is(err, tenantdomain.ErrInactive):
		return "inactive"
	case errors.Is(err, tenantdomain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
