package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglebank/bank-service/internal/command"
	"github.com/eaglebank/bank-service/internal/config"
	"github.com/eaglebank/bank-service/internal/credentials"
	"github.com/eaglebank/bank-service/internal/ledger"
	"github.com/eaglebank/bank-service/internal/ledger/memory"
	"github.com/eaglebank/bank-service/internal/ledger/postgres"
	ledgerredis "github.com/eaglebank/bank-service/internal/ledger/redis"
	"github.com/eaglebank/bank-service/internal/metrics"
	"github.com/eaglebank/bank-service/internal/projector"
	"github.com/eaglebank/bank-service/internal/query"
	"github.com/eaglebank/bank-service/internal/repository"
	"github.com/eaglebank/bank-service/internal/server"
	"github.com/eaglebank/bank-service/shared/events"
	"github.com/eaglebank/bank-service/shared/middleware"
	sharedredis "github.com/eaglebank/bank-service/shared/redis"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	issueToken := flag.String("issue-admin-token", "", "print an admin token for the given subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -issue-admin-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := newLogger(cfg.LogLevel)

	if *issueToken != "" {
		token, err := middleware.IssueAdminToken([]byte(cfg.AdminJWTSecret), *issueToken, *tokenTTL)
		if err != nil {
			logger.WithError(err).Fatal("failed to issue admin token")
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis connection (redis ledger, view cache, event stream)
	var rdb *sharedredis.Client
	if cfg.UsesRedis() {
		rdb, err = sharedredis.NewClient(ctx, sharedredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
	}
	var redisClient *goredis.Client
	if rdb != nil {
		redisClient = rdb.Client
	}

	// Ledger and credential store
	var (
		l     ledger.Ledger
		creds credentials.Store
	)
	switch cfg.LedgerBackend {
	case config.BackendMemory:
		l = memory.New(cfg.ReserveAccount)
		creds = credentials.NewMemoryStore(cfg.BcryptCost)
	case config.BackendPostgres:
		db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()
		pg := postgres.New(db, cfg.ReserveAccount)
		if err := pg.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("failed to migrate database")
		}
		l = pg
		creds = credentials.NewPostgresStore(db, cfg.BcryptCost)
	case config.BackendRedis:
		l = ledgerredis.New(redisClient, cfg.ReserveAccount)
		creds = credentials.NewRedisStore(redisClient, cfg.BcryptCost)
	}

	reserve, err := ledger.EnsureAccount(ctx, l, cfg.ReserveAccount)
	if err != nil {
		logger.WithError(err).Fatal("failed to bootstrap reserve account")
	}
	logger.WithFields(logrus.Fields{
		"reserve": reserve.ID,
		"balance": reserve.Balance,
		"backend": cfg.LedgerBackend,
	}).Info("ledger ready")

	// --- CQRS wiring ---
	var publisher command.EventPublisher
	if cfg.EventsEnabled {
		publisher = events.NewPublisher(redisClient)
	}
	views := repository.NewAccountViewRepository(l, redisClient, cfg.ReserveAccount)

	commandSvc := command.NewBankCommandService(l, creds, publisher, command.Options{
		Fee:          cfg.TransactionFee,
		ReserveID:    cfg.ReserveAccount,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	querySvc := query.NewBankQueryService(l, creds, views, cfg.ReserveAccount)

	if cfg.EventsEnabled {
		proj := projector.New(views, logger)
		go func() {
			subscriber := events.NewSubscriber(redisClient, events.SubscriberConfig{
				Group:    "bank-projector-group",
				Consumer: consumerName(),
				Stream:   events.BankEventsStream,
				Handler:  proj.HandleEvent,
				Logger:   logger,
			})
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("projector subscriber stopped")
			}
		}()
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, metrics.RecordRateLimited, logger)
		limiter.StartCleanup(ctx, 5*time.Minute)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET is not set, admin routes will reject every request")
	}

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Options{
		Commands:    commandSvc,
		Queries:     querySvc,
		Legacy:      cfg.LegacyStatus,
		AdminSecret: []byte(cfg.AdminJWTSecret),
		RateLimiter: limiter,
		Logger:      logger,
		Ready: func(ctx context.Context) error {
			_, err := l.Get(ctx, cfg.ReserveAccount)
			return err
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.WithField("port", cfg.Port).Info("bank service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "bank-projector-1"
	}
	return "bank-projector-" + host
}
