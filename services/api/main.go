package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/edume/internal/chat"
	"github.com/edume/internal/config"
	"github.com/edume/internal/feed"
	"github.com/edume/internal/handler"
	"github.com/edume/internal/logger"
	"github.com/edume/internal/middleware"
	"github.com/edume/internal/moderation"
	"github.com/edume/internal/push"
	"github.com/edume/internal/repository"
	"github.com/edume/internal/service"
	"github.com/edume/internal/startup"
	"github.com/edume/internal/storage"
	"github.com/edume/internal/storage/memory"
	pgstorage "github.com/edume/internal/storage/postgres"
	"github.com/edume/internal/ws"
	"github.com/edume/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "postgres backend on embedded PostgreSQL (no external DB required)")
	flag.Parse()

	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	if *dev || *migrate {
		cfg.StoreBackend = config.BackendPostgres
	}
	logger.Infof("starting API service, store=%s", cfg.StoreBackend)

	if err := run(cfg, *dev, *migrate); err != nil {
		logger.Errorf("api: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, dev, migrateOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dev {
		db, err := startEmbeddedPostgres(cfg)
		if err != nil {
			return fmt.Errorf("embedded postgres: %w", err)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := db.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		store   storage.Store
		limiter middleware.Limiter = middleware.NewLocalLimiter()
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
		if err != nil {
			return fmt.Errorf("parse db config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 2
		pool, err := startup.ConnectDB(ctx, poolCfg, 60*time.Second)
		if err != nil {
			return err
		}
		defer pool.Close()

		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = startup.Migrate(migrateCtx, pool, migrations.Files)
		cancel()
		if err != nil {
			return err
		}
		if migrateOnly && !dev {
			return nil
		}
		pg := pgstorage.New(pool)
		defer pg.Close()
		g.Go(func() error { return pg.Listen(gctx) })
		store = pg
	case config.BackendRedis:
		rc, err := startup.ConnectRedis(ctx, cfg.Redis.URL, 60*time.Second)
		if err != nil {
			return err
		}
		defer rc.Close()
		store = rc
		limiter = rc
	default:
		mem := memory.New()
		defer mem.Close()
		store = mem
	}
	logger.Info("document store ready")

	classifier := moderation.NewClient(cfg.Moderation.URL, cfg.Moderation.APIKey, cfg.Moderation.Timeout)
	gate := moderation.NewGate(classifier)
	pushClient := push.NewClient(cfg.PushServiceURL)
	registry := chat.NewRegistry(store)

	hub := ws.NewHub(store, registry, pushClient, ws.Options{
		MaxConns:            cfg.MaxWSConnections,
		SendBuffer:          cfg.WSSendBufferSize,
		WriteWait:           time.Duration(cfg.WSWriteTimeout) * time.Second,
		PongWait:            time.Duration(cfg.WSPongTimeout) * time.Second,
		MaxMessageSize:      int64(cfg.WSMaxMessageSize),
		DefaultRadiusMeters: cfg.FeedDefaultRadiusMeters,
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// Общая лента процесса для REST GET /api/posts; у каждого WS-соединения своя.
	sharedFeed := feed.New(store)
	if err := sharedFeed.Start(gctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	defer sharedFeed.Cancel()

	postH := handler.NewPostHandler(service.NewPostService(store, gate), sharedFeed, cfg.FeedDefaultRadiusMeters)
	chatH := handler.NewChatHandler(registry,
		repository.NewPostRepository(store),
		repository.NewChatRepository(store),
		repository.NewMessageRepository(store))
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	configH := handler.NewConfigHandler(cfg)
	statsH := handler.NewStatsHandler(hub, gate)

	identity := middleware.DevIdentity
	if cfg.AuthServiceURL != "" {
		identity = middleware.AuthServiceValidate(cfg.AuthServiceURL, nil)
	} else {
		logger.Warnf("AUTH_SERVICE_URL is empty: trusting X-User-Id/X-User-Name headers")
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket, иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-Id", "X-Timestamp", "X-Signature", "X-User-Id", "X-User-Name"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/feed", configH.GetFeedConfig)
	r.With(middleware.InternalOnly(cfg.InternalSecret)).Get("/internal/stats", statsH.Get)

	r.Group(func(r chi.Router) {
		r.Use(identity)
		r.Use(middleware.RateLimitAPI(limiter, cfg.RateLimit.PerIP, cfg.RateLimit.PerUser))
		r.Get("/api/posts", postH.List)
		r.Post("/api/posts", postH.Publish)
		r.Get("/api/posts/mine", postH.ListMine)
		r.Delete("/api/posts/{id}", postH.Delete)
		r.Get("/api/chats", chatH.List)
		r.Post("/api/chats", chatH.Open)
		r.Get("/api/chats/{id}/messages", chatH.Messages)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g.Go(func() error {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
		logger.Info("server stopped accepting connections")
		return nil
	})

	return g.Wait()
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "edume"
		password = "edume_secret"
		database = "edume"
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

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
