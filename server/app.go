package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"linkhub/config"
	"linkhub/internal/cleanup"
	"linkhub/internal/db"
	"linkhub/internal/entitlement"
	"linkhub/internal/gate"
	"linkhub/internal/handlers"
	"linkhub/internal/health"
	"linkhub/internal/logs"
	"linkhub/internal/middleware"
	"linkhub/internal/models"
	"linkhub/internal/perm"
	"linkhub/internal/ratelimit"
	"linkhub/internal/repo"
	"linkhub/internal/token"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Router     *mux.Router
	httpServer *http.Server

	sweeper    *cleanup.Orchestrator
	sweepEvery time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	/* 1) Логи */
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	/* 2) DB */
	d, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	a.db = d

	if err := a.db.AutoMigrate(
		&models.Account{},
		&models.SubAccountRelationship{},
		&models.RefreshToken{},
		&models.Page{},
		&models.Link{},
		&models.APIKey{},
		&models.Appearance{},
		&models.CleanupAudit{},
	); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	/* 3) Хранилища */
	accounts := repo.NewAccountStore(a.db)
	tokens := repo.NewTokenStore(a.db)
	content := repo.NewContentStore(a.db)
	apiKeys := repo.NewAPIKeyStore(a.db)
	audits := repo.NewAuditStore(a.db)

	/* 4) Движок доступа */
	resolver := perm.NewResolver(perm.DefaultRoleConfig())

	catalog := entitlement.NewCatalog()
	if f := a.cfg.Tiers.File; f != "" {
		if err := catalog.Reload(f); err != nil {
			log.Fatalf("tier catalog load failed: %v", err)
		}
		logs.Logger.Infof("tier catalog loaded from %s (version %d)", f, catalog.Version())
	}

	tiers := entitlement.NewTierResolver(accounts, accounts)

	loader := gate.NewLoader(accounts, resolver)
	tokenSvc := token.NewService(a.cfg.Auth.AccessSecret, tokens, loader)

	var counters ratelimit.CounterStore
	if addr := a.cfg.Redis.Addr; addr != "" {
		counters = ratelimit.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		}))
		logs.Logger.Infof("rate limit counters: redis %s", addr)
	} else {
		counters = ratelimit.NewMemoryStore()
		logs.Logger.Warn("rate limit counters: in-memory (single instance only)")
	}
	limiter := ratelimit.NewLimiter(counters)

	// Карта endpoint → требуемое право; отсутствующий маршрут закрыт для всех.
	endpoints := map[string]perm.PermissionID{
		"GET /v1/me": perm.ProfileRead,

		"POST /v1/pages":        perm.PagesManage,
		"GET /v1/pages":         perm.PagesManage,
		"DELETE /v1/pages/{id}": perm.PagesManage,

		"POST /v1/links": perm.LinksManage,
		"GET /v1/links":  perm.LinksManage,

		"POST /v1/apikeys":        perm.APIKeysManage,
		"GET /v1/apikeys":         perm.APIKeysManage,
		"DELETE /v1/apikeys/{id}": perm.APIKeysManage,

		"POST /v1/subaccounts":        perm.SubAccountsManage,
		"GET /v1/subaccounts":         perm.SubAccountsManage,
		"DELETE /v1/subaccounts/{id}": perm.SubAccountsManage,

		"DELETE /v1/pack": perm.BillingManage,
	}
	g := gate.New(tokenSvc, accounts, apiKeys, resolver, tiers, catalog, limiter, endpoints)

	/* 5) Cleanup */
	orchestrator := cleanup.NewOrchestrator(accounts, content, apiKeys, audits, tokens, catalog)
	a.sweeper = orchestrator
	a.sweepEvery = a.cfg.Cleanup.SweepInterval

	/* 6) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	health.RegisterRoutesWithDB(a.Router, a.db) // /healthz, /readyz

	/* 7) Auth (публичные) */
	authH := handlers.NewAuthHandler(accounts, content, tokenSvc, resolver, a.cfg.Auth.SessionCookie)
	auth := a.Router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", authH.Signup).Methods(http.MethodPost)
	auth.HandleFunc("/login", authH.Login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", authH.Refresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", authH.Logout).Methods(http.MethodPost)

	/* 8) /v1 — за фасадом доступа */
	contentH := handlers.NewContentHandler(content)
	keysH := handlers.NewAPIKeyHandler(apiKeys)
	subsH := handlers.NewSubAccountHandler(accounts)

	v1 := a.Router.PathPrefix("/v1").Subrouter()
	v1.Use(g.Middleware(a.cfg.Auth.SessionCookie))
	v1.HandleFunc("/me", handlers.Me).Methods(http.MethodGet)
	v1.HandleFunc("/pages", contentH.CreatePage).Methods(http.MethodPost)
	v1.HandleFunc("/pages", contentH.ListPages).Methods(http.MethodGet)
	v1.HandleFunc("/pages/{id}", contentH.DeletePage).Methods(http.MethodDelete)
	v1.HandleFunc("/links", contentH.CreateLink).Methods(http.MethodPost)
	v1.HandleFunc("/links", contentH.ListLinks).Methods(http.MethodGet)
	v1.HandleFunc("/apikeys", keysH.Create).Methods(http.MethodPost)
	v1.HandleFunc("/apikeys", keysH.List).Methods(http.MethodGet)
	v1.HandleFunc("/apikeys/{id}", keysH.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/subaccounts", subsH.Create).Methods(http.MethodPost)
	v1.HandleFunc("/subaccounts", subsH.List).Methods(http.MethodGet)
	v1.HandleFunc("/subaccounts/{id}", subsH.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/pack", subsH.CancelPack).Methods(http.MethodDelete)

	/* 9) /internal — shared secret (биллинг, планировщик) */
	billingH := handlers.NewBillingHandler(orchestrator)
	cleanupH := handlers.NewCleanupHandler(orchestrator, audits)

	internal := a.Router.PathPrefix("/internal").Subrouter()
	internal.Use(middleware.SharedSecretAuth(a.cfg.Internal.SharedSecret))
	internal.HandleFunc("/billing/subscription-changed", billingH.SubscriptionChanged).Methods(http.MethodPost)
	internal.HandleFunc("/cleanup/run", cleanupH.Run).Methods(http.MethodPost)
	internal.HandleFunc("/cleanup/audits/{accountId}", cleanupH.Audits).Methods(http.MethodGet)

	/* (необязательно) вывести известные маршруты в лог при старте */
	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	// Встроенный sweep; при 0 очистку запускает только внешний
	// планировщик через POST /internal/cleanup/run.
	if a.sweepEvery > 0 {
		go a.runSweepLoop()
	}

	// Жёсткие таймауты — это важно для production
	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Logger.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	return nil
}

func (a *App) runSweepLoop() {
	logs.Logger.Infof("cleanup sweep every %s", a.sweepEvery)
	t := time.NewTicker(a.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-t.C:
			res, err := a.sweeper.RunScheduledCleanup(a.ctx)
			if err != nil {
				logs.Logger.Errorf("cleanup sweep: %v", err)
				continue
			}
			if res.ProcessedCount > 0 || res.ErrorCount > 0 {
				logs.Logger.Infof("cleanup sweep: processed=%d errors=%d", res.ProcessedCount, res.ErrorCount)
			}
		}
	}
}
