package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	"github.com/smallbiznis/casebill/internal/authorization"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/config"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	expensedomain "github.com/smallbiznis/casebill/internal/expense/domain"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	"github.com/smallbiznis/casebill/internal/observability"
	obsmiddleware "github.com/smallbiznis/casebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/casebill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/casebill/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/casebill/internal/payment/domain"
	ratedomain "github.com/smallbiznis/casebill/internal/rate/domain"
	recurringdomain "github.com/smallbiznis/casebill/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Named("http").Info("listening", zap.String("addr", addr))
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
	engine       *gin.Engine
	log          *zap.Logger
	clock        clock.Clock
	authzSvc     authorization.Service
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	recurringSvc recurringdomain.Service
	currencySvc  currencydomain.Service
	rateSvc      ratedomain.Service
	expenseSvc   expensedomain.Service
	auditSvc     auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	Clock        clock.Clock
	AuthzSvc     authorization.Service
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	RecurringSvc recurringdomain.Service
	CurrencySvc  currencydomain.Service
	RateSvc      ratedomain.Service
	ExpenseSvc   expensedomain.Service
	AuditSvc     auditdomain.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http"),
		clock:        p.Clock,
		authzSvc:     p.AuthzSvc,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		recurringSvc: p.RecurringSvc,
		currencySvc:  p.CurrencySvc,
		rateSvc:      p.RateSvc,
		expenseSvc:   p.ExpenseSvc,
		auditSvc:     p.AuditSvc,
	}
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(ActorRequired())

	cases := api.Group("/cases/:id")
	cases.POST("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceGenerate), s.GenerateInvoice)
	cases.GET("/billing-summary", s.authorize(authorization.ObjectSummary, authorization.ActionSummaryView), s.GetBillingSummary)
	cases.GET("/expenses-summary", s.authorize(authorization.ObjectExpense, authorization.ActionExpenseView), s.GetExpenseSummary)

	invoices := api.Group("/invoices")
	invoices.GET("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	invoices.GET("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	invoices.GET("/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.DownloadInvoicePDF)
	invoices.POST("/:id/send", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceSend), s.SendInvoice)
	invoices.POST("/:id/cancel", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCancel), s.CancelInvoice)
	invoices.POST("/:id/recompute", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceRecompute), s.RecomputeInvoice)
	invoices.PATCH("/:id/pricing", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceUpdate), s.UpdateInvoicePricing)
	invoices.POST("/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.RecordPayment)
	invoices.GET("/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)

	payments := api.Group("/payments")
	payments.GET("/:id", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.GetPayment)
	payments.GET("/:id/receipt", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.DownloadReceipt)
	payments.POST("/:id/refund", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRefund), s.RefundPayment)

	recurring := api.Group("/recurring-invoices")
	recurring.POST("", s.authorize(authorization.ObjectRecurring, authorization.ActionRecurringCreate), s.CreateRecurringInvoice)
	recurring.GET("", s.authorize(authorization.ObjectRecurring, authorization.ActionRecurringView), s.ListRecurringInvoices)
	recurring.POST("/run", s.authorize(authorization.ObjectRecurring, authorization.ActionRecurringRun), s.RunRecurringInvoices)
	recurring.POST("/:id/activate", s.authorize(authorization.ObjectRecurring, authorization.ActionRecurringUpdate), s.ActivateRecurringInvoice)
	recurring.POST("/:id/deactivate", s.authorize(authorization.ObjectRecurring, authorization.ActionRecurringUpdate), s.DeactivateRecurringInvoice)

	currencies := api.Group("/currencies")
	currencies.GET("", s.authorize(authorization.ObjectCurrency, authorization.ActionCurrencyManage), s.ListCurrencies)
	currencies.POST("", s.authorize(authorization.ObjectCurrency, authorization.ActionCurrencyManage), s.CreateCurrency)
	currencies.POST("/:id/base", s.authorize(authorization.ObjectCurrency, authorization.ActionCurrencyManage), s.SetBaseCurrency)
	currencies.PATCH("/:id", s.authorize(authorization.ObjectCurrency, authorization.ActionCurrencyManage), s.UpdateExchangeRate)
	currencies.POST("/:id/deactivate", s.authorize(authorization.ObjectCurrency, authorization.ActionCurrencyManage), s.DeactivateCurrency)

	rates := api.Group("/billing-rates")
	rates.GET("", s.authorize(authorization.ObjectRate, authorization.ActionRateManage), s.ListBillingRates)
	rates.POST("", s.authorize(authorization.ObjectRate, authorization.ActionRateManage), s.CreateBillingRate)
	rates.PATCH("/:id", s.authorize(authorization.ObjectRate, authorization.ActionRateManage), s.UpdateBillingRate)
	rates.POST("/:id/deactivate", s.authorize(authorization.ObjectRate, authorization.ActionRateManage), s.DeactivateBillingRate)

	api.POST("/expenses", s.authorize(authorization.ObjectExpense, authorization.ActionExpenseCreate), s.CreateExpense)
	api.GET("/expenses/:id", s.authorize(authorization.ObjectExpense, authorization.ActionExpenseView), s.GetExpense)
	api.GET("/expense-categories", s.authorize(authorization.ObjectExpense, authorization.ActionExpenseView), s.ListExpenseCategories)
	api.POST("/expense-categories", s.authorize(authorization.ObjectExpense, authorization.ActionExpenseCategoryManage), s.CreateExpenseCategory)

	if s.auditSvc != nil {
		api.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionAuditView), s.ListAuditLogs)
	}
}
