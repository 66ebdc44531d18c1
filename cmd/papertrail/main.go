package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/papertrail/internal/access"
	"github.com/odyssey-erp/papertrail/internal/app"
	"github.com/odyssey-erp/papertrail/internal/auth"
	"github.com/odyssey-erp/papertrail/internal/billing"
	"github.com/odyssey-erp/papertrail/internal/challans"
	"github.com/odyssey-erp/papertrail/internal/observability"
	"github.com/odyssey-erp/papertrail/internal/platform/cache"
	"github.com/odyssey-erp/papertrail/internal/platform/db"
	"github.com/odyssey-erp/papertrail/internal/platform/idempotency"
	"github.com/odyssey-erp/papertrail/internal/pricing"
	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/requests"
	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
	"github.com/odyssey-erp/papertrail/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: cfg.PGMaxIdleTime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	refRepo := references.NewRepository(dbpool)
	var lookup references.Lookup = refRepo
	var idempotencyStore *idempotency.Store
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, reference cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		lookup = references.NewCachedLookup(refRepo, redisClient, cfg.ReferenceCacheTTL, logger)
		idempotencyStore = idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
	}
	validator := references.NewValidator(lookup)
	projector := references.NewProjector(lookup)

	metrics := observability.NewMetrics()
	policy := access.NewPolicy(cfg.AccessConcealExistence)
	calculator := pricing.NewCalculator(cfg.ChallanUnitCost)
	txManager := db.NewTxManager(dbpool)

	requestService := requests.NewService(
		requests.NewRepository(dbpool),
		validator,
		workflow.NewMaterialRequestMachine().WithObserver(metrics),
		policy,
		logger,
	)
	challanService := challans.NewService(challans.Dependencies{
		Repo:       challans.NewRepository(dbpool),
		References: validator,
		Machine:    workflow.NewChallanMachine().WithObserver(metrics),
		Calculator: calculator,
		Policy:     policy,
		Requests:   requestService,
		Boxes:      refRepo,
		Tx:         txManager,
		Logger:     logger,
	})
	billingService := billing.NewService(billing.Dependencies{
		Repo:       billing.NewRepository(dbpool),
		References: validator,
		Challans:   challanService,
		Rates:      refRepo,
		Calculator: calculator,
		Policy:     policy,
		Bills:      workflow.NewBillingMachine(shared.DocBill).WithObserver(metrics),
		Invoices:   workflow.NewBillingMachine(shared.DocInvoice).WithObserver(metrics),
		Logger:     logger,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		Auth: auth.Middleware{
			Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
			Logger:   logger,
		},
		RequestsHandler: requests.NewHandler(logger, requestService, projector),
		ChallansHandler: challans.NewHandler(logger, challanService, projector),
		BillsHandler:    billing.NewHandler(logger, billingService, projector, billing.KindBill),
		InvoicesHandler: billing.NewHandler(logger, billingService, projector, billing.KindInvoice),
		JobHandler:      jobs.NewHandler(inspector, jobClient, logger),
		Metrics:         metrics,
		Idempotency:     idempotencyStore,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
