package server

import (
	"context"
	"net/http"
	"time"

	"github.com/eaglebank/bank-service/internal/handler"
	"github.com/eaglebank/bank-service/internal/metrics"
	"github.com/eaglebank/bank-service/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Querier is the full read side: balance checks and the admin views.
type Querier interface {
	handler.BankQuerier
	handler.AdminQuerier
}

type Options struct {
	Commands    handler.BankCommander
	Queries     Querier
	Legacy      bool
	AdminSecret []byte
	RateLimiter *middleware.RateLimiter
	Logger      logrus.FieldLogger

	// Ready reports whether the ledger backend answers. Nil means always
	// ready.
	Ready func(context.Context) error
}

// NewRouter mounts the public bank API, the admin API, health and metrics.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(metrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				logger.WithError(err).Warn("health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	bankHandler := handler.NewBankHandler(opts.Commands, opts.Queries, opts.Legacy)
	bank := router.Group("/")
	if opts.RateLimiter != nil {
		bank.Use(opts.RateLimiter.Middleware())
	}
	{
		bank.POST("/register", bankHandler.Register)
		bank.POST("/add", bankHandler.Add)
		bank.POST("/transfer", bankHandler.Transfer)
		bank.POST("/balanceCheck", bankHandler.BalanceCheck)
		bank.POST("/takeLoan", bankHandler.TakeLoan)
		bank.POST("/payLoan", bankHandler.PayLoan)
	}

	adminHandler := handler.NewAdminHandler(opts.Queries)
	admin := router.Group("/admin", middleware.AdminAuthMiddleware(opts.AdminSecret))
	{
		admin.GET("/reserve", adminHandler.GetReserve)
		admin.GET("/accounts", adminHandler.ListAccounts)
		admin.GET("/accounts/:username", adminHandler.GetAccount)
	}

	return router
}
