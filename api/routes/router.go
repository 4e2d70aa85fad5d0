package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/eventprize-backend/api/controllers"
	"github.com/angelmondragon/eventprize-backend/api/middleware"
	"github.com/angelmondragon/eventprize-backend/internal/escrow"
	"github.com/angelmondragon/eventprize-backend/internal/ledger"
	"github.com/angelmondragon/eventprize-backend/internal/wallets"
	"github.com/angelmondragon/eventprize-backend/pkg/config"
	"github.com/angelmondragon/eventprize-backend/pkg/db"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
	"github.com/angelmondragon/eventprize-backend/pkg/metrics"
	"github.com/angelmondragon/eventprize-backend/pkg/redis"
)

// NewRouter mounts health, metrics and the escrow API. redisClient may be nil,
// in which case idempotency and write rate limiting are skipped.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	httpMetrics *metrics.HTTPMetrics,
	metricsHandler http.Handler,
	escrowService escrow.Service,
	ledgerService ledger.Service,
	walletService wallets.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		chimw.RealIP,
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["db"] = dbP
	}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	var replays middleware.ReplayStore
	writeLimit := passthrough
	if redisClient != nil {
		replays = redisClient
		policy := middleware.NewRateLimitPolicy("escrow", cfg.Escrow.WriteRateWindow, cfg.Escrow.WriteRateLimit)
		writeLimit = middleware.RateLimit(policy, redisClient, logg)
	}
	moneyWrite := middleware.Idempotency(replays, middleware.EscrowReplayTTL, logg)
	adminWrite := middleware.Idempotency(replays, middleware.DefaultReplayTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/events/{eventId}", func(r chi.Router) {
			r.With(writeLimit, moneyWrite).Post("/verify", controllers.VerifyEvent(escrowService, logg))
			r.With(writeLimit, moneyWrite).Post("/winner", controllers.SelectWinner(escrowService, logg))
			r.Get("/transactions", controllers.EventTransactions(ledgerService, logg))
		})

		r.Get("/wallets/me", controllers.MyWallet(walletService, ledgerService, cfg.Escrow.WalletHistoryLimit, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

		r.With(writeLimit, adminWrite).Post("/events/{eventId}/unverify", controllers.UnverifyEvent(escrowService, logg))
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}
