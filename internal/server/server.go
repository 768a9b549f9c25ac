package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/vetbill/internal/audit/domain"
	"github.com/smallbiznis/vetbill/internal/authorization"
	clientdomain "github.com/smallbiznis/vetbill/internal/client/domain"
	"github.com/smallbiznis/vetbill/internal/clock"
	"github.com/smallbiznis/vetbill/internal/config"
	inventorydomain "github.com/smallbiznis/vetbill/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"github.com/smallbiznis/vetbill/internal/observability"
	obsmiddleware "github.com/smallbiznis/vetbill/internal/observability/logger"
	obstracing "github.com/smallbiznis/vetbill/internal/observability/tracing"
	"github.com/smallbiznis/vetbill/internal/providers"
	"github.com/smallbiznis/vetbill/internal/providers/pdf"
	receivablesdomain "github.com/smallbiznis/vetbill/internal/receivables/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	providers.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
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

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
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
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	engine         *gin.Engine
	log            *zap.Logger
	clock          clock.Clock
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	invoiceSvc     invoicedomain.Service
	clientSvc      clientdomain.Service
	inventorySvc   inventorydomain.Service
	receivablesSvc receivablesdomain.Service
	pdf            pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Log            *zap.Logger
	Clock          clock.Clock
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	InvoiceSvc     invoicedomain.Service
	ClientSvc      clientdomain.Service
	InventorySvc   inventorydomain.Service
	ReceivablesSvc receivablesdomain.Service
	PDF            pdf.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		log:            p.Log.Named("http.server"),
		clock:          p.Clock,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		invoiceSvc:     p.InvoiceSvc,
		clientSvc:      p.ClientSvc,
		inventorySvc:   p.InventorySvc,
		receivablesSvc: p.ReceivablesSvc,
		pdf:            p.PDF,
	}

	svc.registerBillingRoutes()
	svc.registerClinicRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	billing := s.engine.Group("/api/billing")

	read := s.requirePermission(authorization.ObjectBilling, authorization.ActionRead)
	write := s.requirePermission(authorization.ObjectBilling, authorization.ActionWrite)

	// -------- Invoices --------
	billing.GET("/invoices", read, s.ListInvoices)
	billing.POST("/invoices", write, s.CreateDraft)
	billing.GET("/invoices/:id", read, s.GetInvoiceByID)
	billing.PUT("/invoices/:id/lines", write, s.UpdateDraft)
	billing.POST("/invoices/:id/lines", write, s.AddLine)
	billing.PATCH("/invoices/:id/lines/:lineId", write, s.UpdateLine)
	billing.DELETE("/invoices/:id/lines/:lineId", write, s.RemoveLine)

	// -------- Lifecycle --------
	billing.POST("/invoices/:id/approve", write, s.ApproveInvoice)
	billing.POST("/invoices/:id/payments", write, s.PostPayment)
	billing.POST("/invoices/:id/refunds", write, s.RefundInvoice)
	billing.POST("/invoices/:id/fiscalize", write, s.FiscalizeInvoice)
	billing.GET("/invoices/:id/receipt.pdf", read, s.DownloadReceiptPDF)

	billing.POST("/no-show-fees", write, s.CreateNoShowFee)
	billing.GET("/receivables", read, s.GetReceivables)
}

func (s *Server) registerClinicRoutes() {
	api := s.engine.Group("/api")

	// -------- Clients --------
	api.POST("/clients", s.requirePermission(authorization.ObjectClient, authorization.ActionWrite), s.CreateClient)
	api.GET("/clients/:id", s.requirePermission(authorization.ObjectClient, authorization.ActionRead), s.GetClientByID)

	// -------- Inventory --------
	api.GET("/inventory/items", s.requirePermission(authorization.ObjectInventory, authorization.ActionRead), s.ListInventoryItems)
	api.POST("/inventory/items", s.requirePermission(authorization.ObjectInventory, authorization.ActionWrite), s.CreateInventoryItem)
	api.GET("/inventory/items/:id", s.requirePermission(authorization.ObjectInventory, authorization.ActionRead), s.GetInventoryItem)
	api.POST("/inventory/items/:id/restock", s.requirePermission(authorization.ObjectInventory, authorization.ActionWrite), s.RestockInventoryItem)
	api.GET("/inventory/low-stock", s.requirePermission(authorization.ObjectInventory, authorization.ActionRead), s.ListLowStockItems)

	api.GET("/audit-logs", s.requirePermission(authorization.ObjectAuditLog, authorization.ActionRead), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
