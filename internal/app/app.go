// Package app wires the service graph: config, postgres store, redis
// snapshot cache, evaluator, usage mutator and the HTTP handler.
package app

import (
	"context"
	"log"
	"net/http"

	"brokerdesk/internal/auth"
	"brokerdesk/internal/cache"
	"brokerdesk/internal/config"
	"brokerdesk/internal/crmapi"
	"brokerdesk/internal/entitlements"
	"brokerdesk/internal/observability"
	"brokerdesk/internal/store"
	"brokerdesk/internal/usage"
)

type App struct {
	Config    config.Config
	Store     *store.Store
	Cache     *cache.Cache
	Auth      *auth.Service
	Evaluator *entitlements.Evaluator
	Usage     *usage.Service
	Observer  *observability.EntitlementObserver
	Handler   *crmapi.Handler
	Logger    *log.Logger
}

func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, st.DB()); err != nil {
		st.Close()
		return nil, err
	}

	// The cache is optional: without redis every read falls through to
	// postgres and the decisions stay correct, just slower.
	var snapshots *cache.Cache
	if cfg.Redis.URL != "" {
		snapshots, err = cache.New(cfg.Redis.URL, cfg.Entitlements.AccountCacheTTL)
		if err != nil {
			st.Close()
			return nil, err
		}
		if err := snapshots.Ping(ctx); err != nil {
			logger.Printf("redis unavailable, serving without snapshot cache err=%v", err)
			snapshots.Close()
			snapshots = nil
		}
	}

	observer := observability.NewEntitlementObserver(logger)
	authSvc := auth.NewService(cfg)
	evaluator := entitlements.NewEvaluator(cfg.Entitlements.PlanLimitsPath)
	usageSvc := usage.NewService(st, snapshots, observer, logger)
	handler := crmapi.NewHandler(cfg, st, snapshots, authSvc, evaluator, usageSvc, observer)

	return &App{
		Config:    cfg,
		Store:     st,
		Cache:     snapshots,
		Auth:      authSvc,
		Evaluator: evaluator,
		Usage:     usageSvc,
		Observer:  observer,
		Handler:   handler,
		Logger:    logger,
	}, nil
}

func (a *App) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	a.Handler.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", a.handleHealthz)
	return mux
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	summary, err := a.Store.HealthSummary(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if a.Cache != nil {
		if err := a.Cache.Ping(r.Context()); err != nil {
			summary["redis"] = "degraded"
		} else {
			summary["redis"] = "ok"
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	for k, v := range summary {
		w.Write([]byte(k + "=" + v + "\n"))
	}
}

func (a *App) Close() {
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
