package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hairstudio/internal/api"
	"hairstudio/internal/config"
	"hairstudio/internal/database"
	"hairstudio/internal/domain"
	"hairstudio/internal/events"
	"hairstudio/internal/google"
	"hairstudio/internal/logging"
	"hairstudio/internal/metrics"
	"hairstudio/internal/models"
	"hairstudio/internal/mongostore"
	"hairstudio/internal/notify"
	"hairstudio/internal/repository"
	"hairstudio/internal/service"
	"hairstudio/internal/slots"
	"hairstudio/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// storage is the selected document backend plus what depends on the driver.
type storage struct {
	docs   domain.DocumentStore
	sqlite *database.DB
	ping   func(ctx context.Context) error
	close  func()
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := initStorage(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer store.close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	catalog, err := initCatalog(cfg, &logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
	})
	metrics.Register()
	metrics.SubscribeEvents(bus)

	availability := repository.NewAvailabilityRepository(store.docs)
	appointments := repository.NewAppointmentRepository(store.docs)

	outbox := initWorker(ctx, cfg, store, appointments, redisClient, &logger)
	outbox.SubscribeSheetMirror(bus)
	go outbox.Start(ctx)
	// дожидаемся постановки задач до закрытия хранилищ
	defer outbox.Wait()

	calendar := service.NewBookingService(service.BookingDeps{
		Availability: availability,
		Appointments: appointments,
		Locker:       initLocker(cfg, redisClient, &logger),
		Notifier:     outbox,
		EventBus:     bus,
		Catalog:      catalog,
		Allocator:    newAllocator(cfg.Schedule),
	}, logging.Component(&logger, "booking"))

	if store.sqlite != nil {
		backups := database.NewBackupService(store.sqlite, cfg.Backup, logging.Component(&logger, "backup"))
		go backups.Start(ctx)
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	httpServer := api.NewHTTPServer(&cfg.API, api.HTTPDeps{
		Calendar:  calendar,
		Catalog:   catalog,
		Ready:     readiness(store, redisClient),
		ExportDir: cfg.Exports.Path,
	}, &logger)

	grpcServer, err := api.NewGRPCServer(&cfg.API, calendar, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*storage, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		mongo, err := mongostore.Connect(ctx, cfg.Database.Mongo, logger)
		if err != nil {
			logger.Error().Err(err).Msg("init mongo")
			return nil, err
		}
		return &storage{
			docs: mongo,
			ping: mongo.Ping,
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = mongo.Close(closeCtx)
			},
		}, nil

	case config.DriverMemory:
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return &storage{
			docs:  repository.NewMemoryStore(),
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil

	default:
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, err
		}
		return &storage{
			docs:   db,
			sqlite: db,
			ping:   db.PingContext,
			close:  func() { _ = db.Close() },
		}, nil
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initLocker(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.DateLocker {
	memory := repository.NewMemoryDateLocker()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverDateLocker(
		repository.NewRedisDateLocker(redisClient, cfg.Schedule.LockTTL),
		memory,
		logging.Component(logger, "locker"),
	)
}

func initCatalog(cfg *config.Config, logger *zerolog.Logger) (*service.CatalogService, error) {
	services := cfg.Services
	path := os.Getenv("SERVICES_PATH")
	if path == "" {
		path = cfg.ServicesPath
	}
	if len(services) == 0 && path != "" {
		loaded, err := service.LoadCatalogFile(path)
		if err != nil {
			logger.Error().Err(err).Str("services_path", path).Msg("load services")
			return nil, err
		}
		if err := config.ValidateServices(loaded); err != nil {
			return nil, fmt.Errorf("services %s: %w", path, err)
		}
		services = loaded
	}

	logger.Info().Int("services", len(services)).Msg("service catalog loaded")
	return service.NewCatalogService(services, logging.Component(logger, "catalog")), nil
}

func newAllocator(schedule config.ScheduleConfig) *slots.Allocator {
	allocator := slots.NewAllocator()
	allocator.Buffer = schedule.BufferMinutes
	allocator.Interval = schedule.SlotInterval
	allocator.DefaultHours = models.WorkingHours{Start: schedule.DayStart, End: schedule.DayEnd}
	allocator.DefaultDuration = schedule.ListingDuration
	allocator.BookedDuration = schedule.BookingDuration
	return allocator
}

func initWorker(
	ctx context.Context,
	cfg *config.Config,
	store *storage,
	appointments domain.AppointmentStore,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.OutboxWorker {
	deps := worker.Deps{
		Appointments: appointments,
		Redis:        redisClient,
		AdminEmail:   cfg.Notifications.AdminEmail,
	}
	// Очередь в sqlite переживает рестарт; для других драйверов задачи живут в памяти и redis
	if store.sqlite != nil {
		deps.Store = store.sqlite
	}
	if cfg.Notifications.SMTP.Host != "" {
		deps.Mailer = notify.NewSMTPMailer(cfg.Notifications.SMTP)
	}

	bot, err := notify.NewTelegramBot(cfg.Notifications.Telegram)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without admin chat")
	}
	if bot != nil {
		deps.Chat = notify.NewTelegramNotifier(bot, cfg.Notifications.Telegram.AdminChatIDs)
	}

	if sheets := initGoogleSheets(ctx, cfg, logger); sheets != nil {
		deps.Sheets = sheets
	}

	return worker.NewOutboxWorker(
		deps,
		worker.PolicyFromConfig(cfg.Notifications.Worker),
		cfg.Notifications.Worker.PollInterval,
		logging.Component(logger, "outbox"),
	)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.SpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("google sheets not reachable, share the spreadsheet with the service account")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func readiness(store *storage, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := store.ping(ctx); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if redisClient != nil {
			if err := repository.Ping(ctx, redisClient); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if cfg.API.GRPC.Enabled {
		if err := grpcServer.Listen(); err != nil {
			logger.Error().Err(err).Msg("grpc listen")
			return err
		}
		go func() {
			if err := grpcServer.Serve(nil); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
