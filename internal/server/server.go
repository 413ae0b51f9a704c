package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/estatebill/internal/approval"
	approvaldomain "github.com/smallbiznis/estatebill/internal/approval/domain"
	"github.com/smallbiznis/estatebill/internal/audit"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/billingprofile"
	billingprofiledomain "github.com/smallbiznis/estatebill/internal/billingprofile/domain"
	"github.com/smallbiznis/estatebill/internal/clearance"
	"github.com/smallbiznis/estatebill/internal/config"
	"github.com/smallbiznis/estatebill/internal/estate"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	"github.com/smallbiznis/estatebill/internal/generation"
	generationdomain "github.com/smallbiznis/estatebill/internal/generation/domain"
	"github.com/smallbiznis/estatebill/internal/invoice"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/internal/notification"
	obslogger "github.com/smallbiznis/estatebill/internal/observability/logger"
	obstracing "github.com/smallbiznis/estatebill/internal/observability/tracing"
	"github.com/smallbiznis/estatebill/internal/providers"
	"github.com/smallbiznis/estatebill/internal/providers/pdf"
	"github.com/smallbiznis/estatebill/internal/ratelimit"
	"github.com/smallbiznis/estatebill/internal/waiver"
	waiverdomain "github.com/smallbiznis/estatebill/internal/waiver/domain"
	"github.com/smallbiznis/estatebill/internal/wallet"
	walletdomain "github.com/smallbiznis/estatebill/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the billing services behind the HTTP API. Infrastructure
// (config, db, observability, ids) is supplied by the binary.
var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	estate.Module,
	approval.Module,
	billingprofile.Module,
	invoice.Module,
	waiver.Module,
	wallet.Module,
	clearance.Module,
	generation.Module,
	notification.Module,
	providers.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(log.Named("http"))
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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

	authzSvc          authorization.Service
	auditSvc          auditdomain.Service
	estateSvc         estatedomain.Service
	approvalSvc       approvaldomain.Service
	billingProfileSvc billingprofiledomain.Service
	invoiceSvc        invoicedomain.Service
	waiverSvc         waiverdomain.Service
	walletSvc         walletdomain.Service
	clearanceSvc      *clearance.Service
	generationSvc     generationdomain.Service
	billingCfg        *config.BillingConfigHolder
	renderer          pdf.Renderer
	actorLimiter      *ratelimit.ActorLimiter
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Cfg               config.Config
	Log               *zap.Logger
	AuthzSvc          authorization.Service
	AuditSvc          auditdomain.Service
	EstateSvc         estatedomain.Service
	ApprovalSvc       approvaldomain.Service
	BillingProfileSvc billingprofiledomain.Service
	InvoiceSvc        invoicedomain.Service
	WaiverSvc         waiverdomain.Service
	WalletSvc         walletdomain.Service
	ClearanceSvc      *clearance.Service
	GenerationSvc     generationdomain.Service
	BillingCfg        *config.BillingConfigHolder
	Renderer          pdf.Renderer
	ActorLimiter      *ratelimit.ActorLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		log:               p.Log.Named("http.server"),
		authzSvc:          p.AuthzSvc,
		auditSvc:          p.AuditSvc,
		estateSvc:         p.EstateSvc,
		approvalSvc:       p.ApprovalSvc,
		billingProfileSvc: p.BillingProfileSvc,
		invoiceSvc:        p.InvoiceSvc,
		waiverSvc:         p.WaiverSvc,
		walletSvc:         p.WalletSvc,
		clearanceSvc:      p.ClearanceSvc,
		generationSvc:     p.GenerationSvc,
		billingCfg:        p.BillingCfg,
		renderer:          p.Renderer,
		actorLimiter:      p.ActorLimiter,
	}

	svc.registerAPIRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorContext())

	write := s.ActorRateLimit()

	// -------- Generation --------
	api.POST("/generation-runs", write, s.RunGeneration)
	api.GET("/generation-runs", s.authorizeAction(authorization.ActionAuditLogView), s.ListGenerationRuns)

	// -------- Invoices --------
	api.GET("/invoices/:id", s.authorizeAction(authorization.ActionInvoiceView), s.GetInvoiceByID)
	api.GET("/invoices/:id/outstanding", s.authorizeAction(authorization.ActionInvoiceView), s.GetInvoiceOutstanding)
	api.GET("/invoices/:id/pdf", s.authorizeAction(authorization.ActionInvoiceView), s.RenderInvoice)
	api.POST("/invoices/:id/corrections", write, s.CreateCorrection)
	api.POST("/invoices/:id/late-fee", write, s.ApplyLateFee)
	api.POST("/invoices/:id/void", write, s.VoidInvoice)

	// -------- Waivers --------
	api.GET("/invoices/:id/waivers", s.authorizeAction(authorization.ActionInvoiceView), s.ListInvoiceWaivers)
	api.POST("/invoices/:id/waivers", write, s.RequestWaiver)
	api.GET("/waivers/:id", s.authorizeAction(authorization.ActionInvoiceView), s.GetWaiver)
	api.POST("/waivers/:id/approve", write, s.ApproveWaiver)
	api.POST("/waivers/:id/reject", write, s.RejectWaiver)

	// -------- Residents --------
	api.GET("/residents/:id/invoices", s.authorizeAction(authorization.ActionInvoiceView), s.ListResidentInvoices)
	api.GET("/residents/:id/wallet", s.authorizeAction(authorization.ActionWalletView), s.GetWallet)
	api.GET("/residents/:id/wallet/transactions", s.authorizeAction(authorization.ActionWalletView), s.ListWalletTransactions)
	api.GET("/residents/:id/wallet/reconciliation", s.authorizeAction(authorization.ActionAuditLogView), s.ReconcileWallet)
	api.POST("/residents/:id/wallet/credit", write, s.CreditWallet)
	api.POST("/residents/:id/wallet/debit", write, s.DebitWallet)
	api.POST("/residents/:id/invoices/:invoice_id/settle", write, s.SettleInvoice)
	api.GET("/residents/:id/clearance", s.authorizeAction(authorization.ActionClearanceView), s.GetClearance)
	api.GET("/residents/:id/clearance/pdf", s.authorizeAction(authorization.ActionClearanceView), s.RenderClearance)

	// -------- Billing profiles & approvals --------
	api.GET("/billing-profiles/:id", s.authorizeAction(authorization.ActionInvoiceView), s.GetBillingProfile)
	api.PATCH("/billing-profiles/:id/effective-date", write, s.UpdateEffectiveDate)
	api.GET("/approvals/:id", s.authorizeAction(authorization.ActionInvoiceView), s.GetApproval)
	api.POST("/approvals/:id/decide", write, s.DecideApproval)
	api.POST("/approvals/:id/apply", write, s.ApplyApproval)

	api.GET("/audit-logs", s.authorizeAction(authorization.ActionAuditLogView), s.ListAuditLogs)
}
