package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/storelane/storelane/internal/config"
	"github.com/storelane/storelane/internal/gate"
	invoicedomain "github.com/storelane/storelane/internal/invoice/domain"
	obsmiddleware "github.com/storelane/storelane/internal/observability/logger"
	obsmetrics "github.com/storelane/storelane/internal/observability/metrics"
	obstracing "github.com/storelane/storelane/internal/observability/tracing"
	subscriptiondomain "github.com/storelane/storelane/internal/subscription/domain"
	tenantdomain "github.com/storelane/storelane/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	resolver        tenantdomain.Resolver
	gate            *gate.Gate
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	domainMetrics   *obsmetrics.DomainMetrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Resolver        tenantdomain.Resolver
	Gate            *gate.Gate
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	DomainMetrics   *obsmetrics.DomainMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		log:    p.Log.Named("http.server"),

		resolver:        p.Resolver,
		gate:            p.Gate,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		domainMetrics:   p.DomainMetrics,
	}

	svc.registerPlatformRoutes()
	svc.registerTenantAdminRoutes()
	svc.registerStorefrontRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Platform routes carry no tenant identity of their own; the tenant a call
// acts upon comes from the path. They are never subscription-gated.
func (s *Server) registerPlatformRoutes() {
	platform := s.engine.Group("/platform")
	platform.Use(s.PlatformAuthRequired())

	sub := platform.Group("/tenants/:slug/subscription", s.TenantFromPath())
	{
		sub.GET("", s.GetSubscriptionStatus)
		sub.POST("/trial", s.StartTrial)
		sub.POST("/activate", s.ActivateSubscription)
		sub.POST("/renew", s.RenewSubscription)
		sub.POST("/suspend", s.SuspendSubscription)
		sub.POST("/reactivate", s.ReactivateSubscription)
	}

	platform.GET("/subscriptions/expiring", s.ListExpiringSubscriptions)
}

func (s *Server) registerTenantAdminRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.TenantFromHeader())

	// Billing status stays reachable while blocked so a locked-out admin can
	// see why and how to recover.
	api.GET("/billing", s.GetBillingStatus)

	gated := api.Group("", s.Gated(gate.ClassTenantAdmin))
	{
		gated.POST("/invoices", s.CreateInvoice)
		gated.GET("/invoices", s.ListInvoices)
		gated.GET("/invoices/:id", s.GetInvoiceByID)
		gated.POST("/invoices/:id/refund", s.RefundInvoice)
	}
}

func (s *Server) registerStorefrontRoutes() {
	store := s.engine.Group("/store/:slug", s.TenantFromPath())

	store.GET("/status", s.GetStorefrontStatus)
}
