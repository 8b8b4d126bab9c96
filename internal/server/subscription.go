package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storelane/storelane/pkg/tenantctx"
)

func (s *Server) GetSubscriptionStatus(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (s *Server) StartTrial(c *gin.Context) {
	tenant, ok := tenantctx.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sub, err := s.subscriptionSvc.StartTrial(c.Request.Context(), tenant.ID, strings.TrimSpace(req.PlanID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": sub})
}

func (s *Server) ActivateSubscription(c *gin.Context) {
	tenant, ok := tenantctx.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req struct {
		PlanID        string `json:"plan_id"`
		PaymentAmount int64  `json:"payment_amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sub, err := s.subscriptionSvc.Activate(c.Request.Context(), tenant.ID, strings.TrimSpace(req.PlanID), req.PaymentAmount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) RenewSubscription(c *gin.Context) {
	tenant, ok := tenantctx.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req struct {
		PaymentAmount int64 `json:"payment_amount"`
		Months        int   `json:"months"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Months == 0 {
		req.Months = 1
	}

	sub, err := s.subscriptionSvc.Renew(c.Request.Context(), tenant.ID, req.PaymentAmount, req.Months)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) SuspendSubscription(c *gin.Context) {
	tenant, ok := tenantctx.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.subscriptionSvc.Suspend(c.Request.Context(), tenant.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "suspended"})
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	tenant, ok := tenantctx.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.subscriptionSvc.Reactivate(c.Request.Context(), tenant.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reactivated"})
}

func (s *Server) ListExpiringSubscriptions(c *gin.Context) {
	withinDays, err := parsePositiveInt(c.Query("within_days"), 7)
	if err != nil {
		AbortWithError(c, newValidationError("within_days", "invalid_within_days", "within_days must be a positive integer"))
		return
	}

	rows, err := s.subscriptionSvc.ListExpiring(c.Request.Context(), withinDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}
