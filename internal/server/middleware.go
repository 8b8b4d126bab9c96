package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storelane/storelane/internal/gate"
	"github.com/storelane/storelane/pkg/tenantctx"
)

const (
	// HeaderStoreSlug identifies the tenant on tenant-admin API calls.
	HeaderStoreSlug = "X-Store-Slug"

	// HeaderPlatformKey authorizes platform lifecycle operations.
	HeaderPlatformKey = "X-Platform-Key"

	contextGateDecisionKey = "gate_decision"
)

// TenantFromPath resolves the :slug path parameter into a request-scoped
// tenant identity. Nothing past this middleware runs without one.
func (s *Server) TenantFromPath() gin.HandlerFunc {
	return s.tenantResolverMiddleware(func(c *gin.Context) string {
		return c.Param("slug")
	})
}

// TenantFromHeader resolves the tenant from the store-slug request header.
func (s *Server) TenantFromHeader() gin.HandlerFunc {
	return s.tenantResolverMiddleware(func(c *gin.Context) string {
		return c.GetHeader(HeaderStoreSlug)
	})
}

func (s *Server) tenantResolverMiddleware(extract func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := s.resolver.Resolve(c.Request.Context(), extract(c))
		if err != nil {
			s.domainMetrics.RecordResolutionFailure(resolutionFailureKind(err))
			AbortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(tenantctx.WithTenant(c.Request.Context(), tenant))
		c.Next()
	}
}

// Gated blocks the request when the resolved tenant's subscription state
// disallows the given request class.
func (s *Server) Gated(class gate.RequestClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantctx.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		decision, err := s.gate.Check(c.Request.Context(), tenant, class)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextGateDecisionKey, decision)

		if !decision.Allowed {
			s.domainMetrics.RecordGateBlocked(string(decision.Reason))
			AbortWithError(c, &GateBlockedError{Decision: decision})
			return
		}

		c.Next()
	}
}

// PlatformAuthRequired guards platform-scoped endpoints with the shared
// platform key. An empty configured key disables the surface entirely.
func (s *Server) PlatformAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		configured := s.cfg.PlatformAPIKey
		if configured == "" {
			AbortWithError(c, ErrForbidden)
			return
		}

		presented := strings.TrimSpace(c.GetHeader(HeaderPlatformKey))
		if presented == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}

		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}
