package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/audit"
	"fund-balance-service/internal/config"
	"fund-balance-service/internal/database"
	"fund-balance-service/internal/handlers"
	"fund-balance-service/internal/logger"
	"fund-balance-service/internal/repositories"
	"fund-balance-service/internal/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg)
	defer log.Sync()

	db, err := database.NewConnection(cfg, log)
	if err != nil {
		log.Fatal("error connecting to database", zap.Error(err))
	}
	defer db.Close()

	if *migrateCmd != "" {
		if err := handleMigration(cfg, log, *migrateCmd, *steps); err != nil {
			log.Fatal("migration failed", zap.String("command", *migrateCmd), zap.Error(err))
		}
		return
	}

	auditRepo := repositories.NewAuditRepository(db)
	recorder := audit.NewRecorder(auditRepo, log, cfg.Audit.QueueSize, cfg.Audit.WriteTimeout)

	balanceRepo := repositories.NewBalanceRepository()
	expenseRepo := repositories.NewExpenseRepository()
	paymentRepo := repositories.NewPaymentRepository()
	diyaRepo := repositories.NewDiyaRepository()

	balance := services.NewBalanceService(db, balanceRepo, expenseRepo, paymentRepo, diyaRepo, cfg.Fund, log)
	admission := services.NewAdmissionController(db, balanceRepo, cfg.Admission, cfg.Fund, log)
	expenses := services.NewExpenseService(db, expenseRepo, admission, recorder, cfg.Fund, log)
	snapshots := services.NewSnapshotService(balance, repositories.NewSnapshotRepository(db), recorder, cfg.Fund, log)
	ledger := services.NewLedgerService(db, paymentRepo, diyaRepo, recorder, log)

	router := handlers.SetupRouter(handlers.Dependencies{
		Config:        cfg,
		Logger:        log,
		Authenticator: access.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		DB:            db,
		Balance:       balance,
		Snapshots:     snapshots,
		Expenses:      expenses,
		Ledger:        ledger,
		Audit:         recorder,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("server is running", zap.String("address", cfg.ServerAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	// Requests are drained; flush what they queued for the audit trail.
	if err := recorder.Close(ctx); err != nil {
		log.Error("audit recorder did not drain", zap.Error(err))
	}
	log.Info("server exited gracefully")
}

func handleMigration(cfg *config.Config, log *zap.Logger, command string, steps int) error {
	if command == "version" {
		version, dirty, ok, err := database.MigrationVersion(cfg)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("no migrations have been applied yet")
			return nil
		}
		log.Info("current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	}

	if err := database.Migrate(cfg, command, steps); err != nil {
		return err
	}
	log.Info("migration completed", zap.String("command", command), zap.Int("steps", steps))
	return nil
}
