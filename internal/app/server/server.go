package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/audit"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/events"
	"workforce/internal/domain/notifications"
	"workforce/internal/domain/projects"
	"workforce/internal/domain/reports"
	"workforce/internal/domain/resourcerequests"
	"workforce/internal/domain/skills"
	"workforce/internal/domain/tasks"
	"workforce/internal/domain/users"
	"workforce/internal/domain/workrequests"
	"workforce/internal/platform/blob"
	"workforce/internal/platform/config"
	"workforce/internal/platform/crypto"
	"workforce/internal/platform/db"
	"workforce/internal/platform/email"
	"workforce/internal/platform/jobs"
	"workforce/internal/platform/logging"
	"workforce/internal/platform/metrics"
	"workforce/internal/platform/realtime"
	allocationshandler "workforce/internal/transport/http/handlers/allocations"
	audithandler "workforce/internal/transport/http/handlers/audit"
	authhandler "workforce/internal/transport/http/handlers/auth"
	eventshandler "workforce/internal/transport/http/handlers/events"
	notificationshandler "workforce/internal/transport/http/handlers/notifications"
	projectshandler "workforce/internal/transport/http/handlers/projects"
	reportshandler "workforce/internal/transport/http/handlers/reports"
	resourcerequestshandler "workforce/internal/transport/http/handlers/resourcerequests"
	skillshandler "workforce/internal/transport/http/handlers/skills"
	taskshandler "workforce/internal/transport/http/handlers/tasks"
	usershandler "workforce/internal/transport/http/handlers/users"
	workrequestshandler "workforce/internal/transport/http/handlers/workrequests"
	"workforce/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

// Pinger reports database readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Registrar is implemented by every handler package.
type Registrar interface {
	RegisterRoutes(r chi.Router)
}

// RouterConfig carries what the router needs besides the API handlers.
type RouterConfig struct {
	Config    config.Config
	AccessLog *logging.Logger
	Metrics   *metrics.Collector
	Sessions  middleware.SessionChecker
	DB        Pinger
	Handlers  []Registrar
}

// App is a fully wired server. Close releases the pool and the access log.
type App struct {
	Config    config.Config
	DB        *db.Pool
	Router    http.Handler
	Jobs      *jobs.Service
	accessLog *logging.Logger
}

func Run() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()
	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "err", err)
		}
	}()

	slog.Info("workforce server listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
	app.Jobs.Wait()
}

// New connects to the database, applies migrations and seed data when
// enabled, and wires every service and handler. Scheduled jobs are
// registered but not started.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := checkNotificationDefaults(cfg.NotificationDefaults); err != nil {
		return nil, err
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	app := &App{Config: cfg, DB: pool}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			app.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	app.accessLog, err = logging.New().FromPath(cfg.AccessLogPath).WithLevel(cfg.AccessLogLevel).Make()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("access log: %w", err)
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	sealer, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	blobs, err := blob.Open(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("blob storage: %w", err)
	}
	mailer := email.New(cfg)
	hub := realtime.NewHub(cfg.WebSocketAllowedOrigin, collector)

	auditSvc := audit.New(pool)
	authSvc := auth.NewService(auth.NewStore(pool), sealer, cfg.JWTSecret)

	notifySvc := notifications.New(notifications.NewStore(pool), mailer)
	notifySvc.Publisher = hub
	notifySvc.Metrics = collector
	notifySvc.From = cfg.EmailFrom
	notifySvc.PublicURL = cfg.PublicURL
	for _, def := range cfg.NotificationDefaults {
		notifySvc.Defaults.Set(def.Role, def.Type, notifications.Preference{InApp: def.InApp, Email: def.Email})
	}

	usersSvc := users.NewService(users.NewStore(pool))
	projectsSvc := projects.NewService(projects.NewStore(pool))
	allocationsSvc := allocations.NewService(allocations.NewStore(pool), projectsSvc, usersSvc, notifySvc)
	skillsSvc := skills.NewService(skills.NewStore(pool), usersSvc)
	tasksSvc := tasks.NewService(tasks.NewStore(pool), projectsSvc, notifySvc)
	eventsSvc := events.NewService(events.NewStore(pool), projectsSvc, notifySvc)

	resourceSvc := resourcerequests.NewService(resourcerequests.NewStore(pool), projectsSvc, usersSvc, notifySvc)
	resourceSvc.Metrics = collector
	workSvc := workrequests.NewService(workrequests.NewStore(pool), projectsSvc, usersSvc, notifySvc, blobs)
	workSvc.Metrics = collector

	reportsSvc := reports.NewService(reports.NewStore(pool), allocationsSvc, notifySvc, blobs)

	app.Jobs = jobs.New(jobs.NewStore(pool), collector)
	app.Jobs.Every(jobs.JobAllocationExpiry, cfg.AllocationExpiryEvery, func(ctx context.Context) (any, error) {
		ended, err := allocationsSvc.ExpireEnded(ctx)
		return map[string]int{"ended": ended}, err
	})
	app.Jobs.Every(jobs.JobTaskDueReminders, cfg.TaskReminderEvery, func(ctx context.Context) (any, error) {
		sent, err := tasksSvc.DueReminders(ctx)
		return map[string]int{"reminded": sent}, err
	})

	idempotency := middleware.NewIdempotencyStore(pool)

	app.Router = NewRouter(RouterConfig{
		Config:    cfg,
		AccessLog: app.accessLog,
		Metrics:   collector,
		Sessions:  authSvc,
		DB:        pool,
		Handlers: []Registrar{
			authhandler.NewHandler(authSvc, authSvc, auditSvc, mailer, cfg.EmailFrom, cfg.PublicURL),
			usershandler.NewHandler(usersSvc, skillsSvc, authSvc, auditSvc),
			skillshandler.NewHandler(skillsSvc, authSvc, auditSvc),
			projectshandler.NewHandler(projectsSvc, authSvc, auditSvc),
			allocationshandler.NewHandler(allocationsSvc, authSvc, auditSvc),
			resourcerequestshandler.NewHandler(resourceSvc, authSvc, auditSvc, idempotency),
			workrequestshandler.NewHandler(workSvc, authSvc, auditSvc, idempotency),
			taskshandler.NewHandler(tasksSvc, authSvc, auditSvc),
			eventshandler.NewHandler(eventsSvc, authSvc, auditSvc),
			notificationshandler.NewHandler(notifySvc, hub),
			reportshandler.NewHandler(reportsSvc, app.Jobs, authSvc),
			audithandler.NewHandler(auditSvc, authSvc),
		},
	})
	slog.Info("server wired", "blobDriver", blobs.Driver(), "metrics", cfg.MetricsEnabled)
	return app, nil
}

// checkNotificationDefaults rejects notification_default blocks naming a role
// or notification type the service does not know.
func checkNotificationDefaults(defs []config.NotificationDefault) error {
	for _, def := range defs {
		if !auth.IsValidRole(def.Role) {
			return fmt.Errorf("notification_default %q: unknown role", def.Role)
		}
		if def.Type != notifications.AnyType && !notifications.IsKnownType(def.Type) {
			return fmt.Errorf("notification_default %q: unknown type %q", def.Role, def.Type)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.accessLog != nil {
		if err := a.accessLog.Close(); err != nil {
			slog.Warn("access log close failed", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// NewRouter assembles the middleware chain, the probes and the API routes.
func NewRouter(rc RouterConfig) http.Handler {
	cfg := rc.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if rc.AccessLog != nil {
		router.Use(middleware.AccessLog(rc.AccessLog.Logger, rc.Metrics))
	}
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, rc.Sessions))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rc.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rc.DB.Ping(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if rc.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rc.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
		for _, h := range rc.Handlers {
			h.RegisterRoutes(r)
		}
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})
	return router
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}
