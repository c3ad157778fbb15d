package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/inflow/backend/internal/admin"
	"github.com/inflow/backend/internal/auth"
	"github.com/inflow/backend/internal/commission"
	"github.com/inflow/backend/internal/config"
	"github.com/inflow/backend/internal/dashboard"
	"github.com/inflow/backend/internal/ledger"
	"github.com/inflow/backend/internal/metrics"
	"github.com/inflow/backend/internal/models"
	"github.com/inflow/backend/internal/notify"
	"github.com/inflow/backend/internal/partnerportal"
	"github.com/inflow/backend/internal/payments"
	"github.com/inflow/backend/internal/repository"
	"github.com/inflow/backend/internal/router"
	"github.com/inflow/backend/internal/siteconfig"
	"github.com/inflow/backend/internal/tasks"
	"github.com/inflow/backend/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first (e.g. make dev-up)", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		slog.Error("Failed to apply database schema", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ensured")

	// Redis backs the public site-config cache; the service degrades to
	// database reads when it is unavailable.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unreachable, site config will be served uncached", "error", err)
	}

	// Repositories
	customerRepo := repository.NewCustomerRepo(pool)
	planRepo := repository.NewPlanRepo(pool)
	projectRepo := repository.NewProjectRepo(pool)
	templateRepo := repository.NewTemplateRepo(pool)
	creditRepo := repository.NewCreditRepo(pool)
	walletRepo := repository.NewWalletRepo(pool)
	runRepo := repository.NewRunRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	partnerRepo := repository.NewPartnerRepo(pool)
	leadRepo := repository.NewLeadRepo(pool)
	commissionRepo := repository.NewCommissionRepo(pool)
	payoutRepo := repository.NewPayoutRepo(pool)

	if err := planRepo.Seed(ctx, models.DefaultPlans()); err != nil {
		slog.Error("Failed to seed pricing plans", "error", err)
		os.Exit(1)
	}

	// Commission: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn commission.InsertLeadSyncTxFunc
	insertLeadSync := func(ctx context.Context, tx pgx.Tx, args notify.LeadSyncJobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	// Services
	ledgerSvc := ledger.NewService(customerRepo, creditRepo, walletRepo, planRepo)
	commissionSvc := commission.NewService(partnerRepo, leadRepo, commissionRepo, payoutRepo, insertLeadSync, cfg.MinPayoutCents, logger)
	workflowSvc := workflow.NewService(customerRepo, planRepo, projectRepo, templateRepo, runRepo, ledgerSvc, cfg.SimulateOnFailure, logger)
	taskSvc := tasks.NewService(taskRepo)
	siteSvc := siteconfig.NewService(siteconfig.NewRepository(pool), redisClient, logger)
	authSvc := auth.NewService(customerRepo, partnerRepo, cfg.JWTSecret)
	gateway := payments.NewSimulatedGateway(cfg.PaymentSecret)

	// Lead sync worker
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewLeadSyncWorker(cfg.LeadWebhookURL, cfg.WebhookTimeout, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args notify.LeadSyncJobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Handlers
	authHandler := auth.NewHandler(authSvc, logger)
	dashHandler := dashboard.NewHandler(pool, customerRepo, planRepo, projectRepo, walletRepo, creditRepo, runRepo, taskRepo, ledgerSvc, workflowSvc, taskSvc, commissionSvc, gateway, logger)
	partnerHandler := partnerportal.NewHandler(pool, partnerRepo, leadRepo, commissionRepo, payoutRepo, commissionSvc, logger)
	adminHandler := admin.NewHandler(pool, partnerRepo, templateRepo, creditRepo, ledgerSvc, commissionSvc, siteSvc, logger)

	apiHandler := router.New(router.Deps{
		Auth:      authHandler,
		Dashboard: dashHandler,
		Partner:   partnerHandler,
		Admin:     adminHandler,
		Validator: authSvc,
		AdminKey:  cfg.AdminKey,
		DB:        pool,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		AllowCredentials: true,
	}).Handler(apiHandler)

	// Refresh the active-subscriptions gauge once a minute.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			n, err := customerRepo.CountActiveSubscriptions(ctx)
			if err != nil {
				slog.Warn("Failed to count active subscriptions", "error", err)
			} else {
				metrics.SetActiveSubscriptions(n)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// Start River client (processes lead sync jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
