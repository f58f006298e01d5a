package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/config"
)

// AuditTrail is what the router needs from the audit recorder.
type AuditTrail interface {
	AccessLogger
	AuditHistory
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Authenticator *access.Authenticator
	DB            Pinger
	Balance       BalanceReader
	Snapshots     SnapshotManager
	Expenses      ExpenseManager
	Ledger        LedgerWriter
	Audit         AuditTrail
}

func SetupRouter(deps Dependencies) *mux.Router {
	log := deps.Logger.Named("http")
	router := mux.NewRouter()
	ips := ipResolver{trusted: deps.Config.RateLimit.TrustedProxies}

	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log, ips))
	router.Use(jsonContentTypeMiddleware)

	router.HandleFunc("/health", healthCheckHandler(deps.DB, log)).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(newIPRateLimiter(deps.Config.RateLimit.RPS, deps.Config.RateLimit.Burst, ips).middleware)
	api.Use(authMiddleware(deps.Authenticator, ips, log))

	gate := &financialGate{logger: deps.Audit, log: log}
	fund := NewFundHandler(deps.Balance, deps.Snapshots, deps.Logger)
	expenses := NewExpenseHandler(deps.Expenses, deps.Logger)
	ledger := NewLedgerHandler(deps.Ledger, deps.Logger)
	audit := NewAuditHandler(deps.Audit, deps.Logger)

	api.Handle("/fund/balance", gate.require("fund_balance_view", fund.GetBalance)).Methods(http.MethodGet)
	api.Handle("/fund/breakdown", gate.require("fund_breakdown_view", fund.GetBreakdown)).Methods(http.MethodGet)
	api.Handle("/fund/snapshot", gate.require("snapshot_create", fund.CreateSnapshot)).Methods(http.MethodPost)
	api.Handle("/fund/snapshots", gate.require("snapshot_list", fund.GetSnapshots)).Methods(http.MethodGet)

	api.Handle("/expenses", gate.require("expense_create", expenses.Create)).Methods(http.MethodPost)
	api.Handle("/expenses/{id:[0-9]+}", gate.require("expense_view", expenses.Get)).Methods(http.MethodGet)
	api.Handle("/expenses/{id:[0-9]+}/approval", gate.require("expense_review", expenses.Review)).Methods(http.MethodPut)
	api.Handle("/expenses/{id:[0-9]+}/pay", gate.require("expense_pay", expenses.MarkPaid)).Methods(http.MethodPost)
	api.Handle("/expenses/{id:[0-9]+}", gate.require("expense_delete", expenses.Delete)).Methods(http.MethodDelete)

	api.Handle("/ledger/payments", gate.require("payment_ingest", ledger.IngestPayments)).Methods(http.MethodPost)
	api.Handle("/ledger/diya-cases", gate.require("diya_ingest", ledger.IngestDiyaCases)).Methods(http.MethodPost)

	api.Handle("/audit/{resource_type}/{resource_id}", gate.require("audit_history_view", audit.GetHistory)).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithStatus(w, http.StatusNotFound, errRouteNotFound)
	})

	return router
}

func healthCheckHandler(db Pinger, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			log.Warn("health check failed", zap.Error(err))
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": "unreachable",
			})
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	}
}

var errRouteNotFound = apperrors.NotFound("ROUTE_NOT_FOUND", "Route not found")
