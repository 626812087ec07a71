// The relay service: real-time presence, group membership and message routing
// over WebSocket, with durable history in Postgres and an optional Redis
// mirror for profiles and Web Push subscriptions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/internal/config"
	"github.com/chatrelay/internal/group"
	"github.com/chatrelay/internal/handler"
	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/middleware"
	"github.com/chatrelay/internal/push"
	"github.com/chatrelay/internal/repository"
	"github.com/chatrelay/internal/startup"
	"github.com/chatrelay/internal/storage"
	"github.com/chatrelay/internal/storage/memory"
	"github.com/chatrelay/internal/ws"
	"github.com/chatrelay/migrations"
)

func main() {
	logger.SetPrefix("relay")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting relay service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres()
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	// Profile/presence mirror: Redis when configured, in-memory otherwise.
	var profiles storage.ProfileStore
	var pushSvc *push.Service
	if cfg.RedisURL != "" {
		rds := startup.ConnectRedisWithRetry(cfg.RedisURL, 60*time.Second)
		defer rds.Close()
		resetCtx, resetCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rds.FlushOnline(resetCtx); err != nil {
			logger.Errorf("reset online set: %v", err)
		}
		resetCancel()
		profiles = rds

		vapidPub, vapidPriv := cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey
		if vapidPub == "" || vapidPriv == "" {
			if keys, err := push.EnsureVAPIDKeys(""); err == nil {
				vapidPub, vapidPriv = keys.PublicKey, keys.PrivateKey
			} else {
				logger.Infof("VAPID keys unavailable, pushes disabled: %v", err)
			}
		}
		pushSvc = push.NewService(rds.Raw(), vapidPub, vapidPriv)
		logger.Info("redis connected")
	} else {
		profiles = memory.New()
		pushSvc = push.NewService(nil, "", "")
		logger.Info("REDIS_URL not set, using in-memory profile store, pushes disabled")
	}

	msgRepo := repository.NewMessageRepository(pool)
	groups := group.NewRegistry()

	var notifier ws.PushNotifier
	if pushSvc.Enabled() {
		notifier = pushSvc
	}
	hub := ws.NewHub(groups, msgRepo, profiles, notifier, cfg.TypingTimeout(), cfg.MaxWSConnections)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if avatars, err := profiles.Avatars(seedCtx); err != nil {
		logger.Errorf("load avatars: %v", err)
	} else {
		hub.SeedProfiles(avatars)
	}
	seedCancel()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	historyH := handler.NewHistoryHandler(msgRepo, cfg.HistoryLimit)
	bootstrapH := handler.NewBootstrapHandler(hub, groups)
	pushH := handler.NewPushHandler(pushSvc)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/ws", wsH.ServeWS)
	r.Get("/api/messages", historyH.GetMessages)
	r.Get("/api/groups", bootstrapH.GetGroups)
	r.Get("/api/statuses", bootstrapH.GetStatuses)
	r.Get("/api/push/vapid-public", pushH.VAPIDPublic)
	r.Post("/api/push/subscribe", pushH.Subscribe)
	r.Delete("/api/push/subscribe", pushH.Unsubscribe)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres() (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chatrelay"
		password = "chatrelay_secret"
		database = "chatrelay"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return db, nil
}
