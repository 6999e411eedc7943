package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workload/internal/api"
	"workload/internal/backend"
	"workload/internal/config"
	"workload/internal/database"
	"workload/internal/events"
	"workload/internal/metrics"
	"workload/internal/models"
	"workload/internal/notify"
	"workload/internal/service"
	"workload/internal/session"
	"workload/shared/audit"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load(os.Getenv("WORKLOAD_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.BackendTimeout())

	var sessions session.Store = session.NewMemoryStore()
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.ProjectsCacheTTL())
		sessions = session.NewFailoverStore(session.NewRedisStore(rdb, cfg.SessionTTL()), sessions, &logger)
	}

	options := config.NewOptionsHolder(config.Options{Roles: models.DefaultRoles, Clusters: models.DefaultClusters})
	if err := config.WatchOptions(ctx, cfg.App.OptionsPath, 30*time.Second, options.Set); err != nil {
		logger.Warn().Err(err).Str("path", cfg.App.OptionsPath).Msg("options file not loaded, using defaults")
	}

	bus := events.NewEventBus()
	bus.Subscribe(service.AuditRecorder(db),
		events.DetailsSaved, events.DetailsSaveFailed,
		events.ProfileSaved, events.ProfileSaveFailed,
		events.PasswordUpdated)

	var notifier *notify.Notifier
	if cfg.Telegram.Enabled {
		bot, err := notify.NewBot(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot error")
		}
		notifier = notify.New(bot, cfg.Telegram.ChatIDs, 20, &logger)
		bus.SubscribeAsync(notifier.HandleEvent, func(ev events.Event, err error) {
			logger.Warn().Err(err).Str("event", ev.Type).Msg("save notification failed")
		},
			events.DetailsSaved, events.DetailsSaveFailed,
			events.ProfileSaved, events.ProfileSaveFailed,
			events.PasswordUpdated)
	}
	defer bus.Wait()

	var auditSvc *audit.Service
	if cfg.Audit.Enabled {
		var reportNotifier audit.Notifier
		if notifier != nil {
			reportNotifier = notifier
		}
		auditSvc = audit.NewService(
			&audit.Config{
				DataRetentionDays: cfg.Audit.RetentionDays,
				ExportOnStart:     cfg.Audit.ExportOnStart,
				AppName:           cfg.App.Name,
				ReportDir:         cfg.Audit.ReportDir,
			},
			db,
			audit.NewExcelizeWriter,
			reportNotifier,
			db,
			audit.ZerologLogger{L: &logger},
		)
		auditSvc.Start()
		defer auditSvc.Stop()
	}

	backups := database.NewBackupService(db, cfg.Backup, &logger)
	go backups.Start(ctx, cfg.BackupInterval())

	svc := service.NewEmployeeService(client, sessions, bus, cfg.Location(), cfg.App.PasswordResetEnabled, &logger)

	ready := func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("db: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return client.HealthCheck(ctx)
	}

	srv := api.NewHTTPServer(api.Config{
		Address:        cfg.HTTP.Address,
		APIKey:         cfg.HTTP.APIKey,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	}, svc, options, ready, &logger)
	srv.SetHistory(db)
	if auditSvc != nil {
		srv.SetReports(auditSvc)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, ready, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("timezone", cfg.App.Timezone).Msg("workload gateway started")
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}
}

func startHealthServer(ctx context.Context, port int, ready func(context.Context) error, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := ready(ctxPing); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	serve(ctx, port, mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, port, mux, "metrics", logger)
}

func serve(ctx context.Context, port int, h http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
