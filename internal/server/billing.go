package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storelane/storelane/internal/gate"
	"github.com/storelane/storelane/pkg/tenantctx"
)

// GetBillingStatus is deliberately not gated: a blocked admin still needs to
// see their subscription state and the recovery path.
func (s *Server) GetBillingStatus(c *gin.Context) {
	tenant, ok := tenantctx.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	info, err := s.subscriptionSvc.CurrentStatus(c.Request.Context(), tenant.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	decision, err := s.gate.Check(c.Request.Context(), tenant, gate.ClassTenantAdmin)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{
		"data":    info,
		"blocked": !decision.Allowed,
	}
	if !decision.Allowed {
		resp["reason"] = string(decision.Reason)
		resp["message"] = gateBlockedMessage(decision.Reason)
	}

	c.JSON(http.StatusOK, resp)
}

// GetStorefrontStatus is the public open/closed signal for a store. It leaks
// no billing detail to shoppers.
func (s *Server) GetStorefrontStatus(c *gin.Context) {
	tenant, ok := tenantctx.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	decision, err := s.gate.Check(c.Request.Context(), tenant, gate.ClassStorefront)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !decision.Allowed {
		s.domainMetrics.RecordGateBlocked(string(decision.Reason))
	}

	c.JSON(http.StatusOK, gin.H{
		"slug": tenant.Slug,
		"open": decision.Allowed,
	})
}
