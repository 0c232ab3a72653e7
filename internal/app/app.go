package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"CCNLMonitor/internal/change"
	"CCNLMonitor/internal/classifier"
	"CCNLMonitor/internal/config"
	"CCNLMonitor/internal/document"
	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/feed"
	"CCNLMonitor/internal/infrastructure/archive"
	"CCNLMonitor/internal/infrastructure/cache"
	"CCNLMonitor/internal/infrastructure/httpapi"
	"CCNLMonitor/internal/infrastructure/kafka"
	"CCNLMonitor/internal/infrastructure/llm"
	"CCNLMonitor/internal/infrastructure/ml"
	"CCNLMonitor/internal/infrastructure/parser"
	"CCNLMonitor/internal/infrastructure/scheduler"
	"CCNLMonitor/internal/infrastructure/storage"
	"CCNLMonitor/internal/infrastructure/telegram"
	"CCNLMonitor/internal/logging"
	"CCNLMonitor/internal/notify"
	"CCNLMonitor/internal/ports"
	"CCNLMonitor/internal/usecase"
	"CCNLMonitor/internal/version"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	orchestrator *usecase.Orchestrator
	scheduler    *usecase.Scheduler
	server       *httpapi.Server
	closers      []io.Closer
}

type persistence interface {
	ports.VersionStore
	ports.EventRepository
}

// New builds every component once and connects the configured adapters.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	store, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var seen ports.SeenStore = feed.NewMemorySeenStore()
	if cfg.Redis.Addr != "" {
		redisStore, err := cache.NewRedisSeenStore(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, redisStore)
		seen = redisStore
	}

	sources := make([]domain.FeedSource, 0, len(cfg.Feeds.Sources))
	for _, src := range cfg.Feeds.Sources {
		sources = append(sources, domain.FeedSource{ID: src.ID, Name: src.Name, URL: src.URL})
	}
	ingestor := feed.NewIngestor(feed.Options{
		Sources:     sources,
		Keywords:    cfg.Feeds.Keywords,
		Lookback:    time.Duration(cfg.Feeds.LookbackDays) * 24 * time.Hour,
		MaxFailures: cfg.Feeds.MaxFailures,
		Timeout:     cfg.Feeds.Timeout,
		Seen:        seen,
		Logger:      logging.Component(baseLogger, "feed"),
	})

	updateClassifier := classifier.New(classifier.DefaultRules(), semanticClassifier(cfg.Classifier), logging.Component(baseLogger, "classifier"))

	var docArchive ports.DocumentArchive
	if cfg.Documents.Archive.Bucket != "" {
		s3Archive, err := archive.NewS3Archive(ctx, archive.S3Config{
			Bucket:       cfg.Documents.Archive.Bucket,
			Prefix:       cfg.Documents.Archive.Prefix,
			Region:       cfg.Documents.Archive.Region,
			Profile:      cfg.Documents.Archive.Profile,
			UsePathStyle: cfg.Documents.Archive.UsePathStyle,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		docArchive = s3Archive
	}

	processor := document.NewProcessor(document.Deps{
		Registry: document.NewRegistry(
			parser.NewHTMLParser(),
			parser.NewPDFParser(),
			parser.NewCSVParser(),
			parser.NewTextParser(),
		),
		Archive:  docArchive,
		Logger:   logging.Component(baseLogger, "documents"),
		Timeout:  cfg.Documents.Timeout,
		MaxBytes: cfg.Documents.MaxBytes,
	})

	versions := version.NewManager(version.Deps{
		Store:    store,
		Analyzer: change.NewAnalyzer(logging.Component(baseLogger, "changes")),
		Logger:   logging.Component(baseLogger, "versions"),
	})

	gateways, err := a.buildGateways()
	if err != nil {
		a.Close()
		return nil, err
	}
	limits := make(map[domain.Channel]int, len(cfg.Notifications.ChannelLimits))
	for channel, limit := range cfg.Notifications.ChannelLimits {
		limits[domain.Channel(channel)] = limit
	}
	dispatcher := notify.NewDispatcher(notify.Deps{
		Gateways:          gateways,
		Directory:         notify.StaticDirectory(cfg.Notifications.Subscribers),
		SectorKeywords:    cfg.Notifications.SectorKeywords,
		OversightAccounts: cfg.Notifications.OversightAccounts,
		ChannelLimits:     limits,
		Logger:            logging.Component(baseLogger, "notify"),
	})

	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Feeds:       ingestor,
		Classifier:  updateClassifier,
		Documents:   processor,
		Versions:    versions,
		Notifier:    dispatcher,
		Repository:  store,
		Concurrency: cfg.Monitoring.Concurrency,
		Logger:      logging.Component(baseLogger, "orchestrator"),
	})

	cron, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), logging.Component(baseLogger, "scheduler"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scheduler = usecase.NewScheduler(cron, a.orchestrator, logging.Component(baseLogger, "scheduler"))

	if cfg.HTTP.Addr != "" {
		a.server = httpapi.NewServer(cfg.HTTP.Addr, a.orchestrator, versions, logging.Component(baseLogger, "http"))
	}
	return a, nil
}

// Run starts the scheduler and the status server and blocks until ctx ends.
func (a *Application) Run(ctx context.Context) error {
	defer a.Close()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.scheduler.Stop(stopCtx); err != nil {
			a.logger.Warn("scheduler stop", "error", err)
		}
	}()

	if a.server == nil {
		<-ctx.Done()
		return nil
	}
	return a.server.Run(ctx)
}

// RunOnce executes a single monitoring cycle.
func (a *Application) RunOnce(ctx context.Context) domain.CycleResult {
	defer a.Close()
	return a.orchestrator.RunMonitoringCycle(ctx)
}

// Close releases connections opened by New.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close resource", "error", err)
		}
	}
	a.closers = nil
}

func (a *Application) buildStore(ctx context.Context) (persistence, error) {
	if a.cfg.Database.DSN == "" {
		return storage.NewMemoryStore(), nil
	}

	db, err := storage.OpenPostgres(ctx, a.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db)

	repo := storage.NewPostgresRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (a *Application) buildGateways() ([]ports.ChannelGateway, error) {
	notifyLogger := logging.Component(a.logger, "notify")
	gateways := []ports.ChannelGateway{
		notify.NewLogGateway(domain.ChannelEmail, notifyLogger),
		notify.NewLogGateway(domain.ChannelSMS, notifyLogger),
		notify.NewLogGateway(domain.ChannelInApp, notifyLogger),
	}

	if token := a.cfg.Notifications.Telegram.BotToken; token != "" {
		push, err := telegram.NewPushGateway(token, a.cfg.Notifications.Telegram.Chats, notifyLogger)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, push)
	} else {
		gateways = append(gateways, notify.NewLogGateway(domain.ChannelPush, notifyLogger))
	}

	if brokers := a.cfg.Notifications.Kafka.Brokers; len(brokers) > 0 {
		webhook, err := kafka.NewWebhookGateway(kafka.Config{
			Brokers:  brokers,
			Topic:    a.cfg.Notifications.Kafka.Topic,
			ClientID: "ccnlmonitor",
		}, notifyLogger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, webhook)
		gateways = append(gateways, webhook)
	} else {
		gateways = append(gateways, notify.NewLogGateway(domain.ChannelWebhook, notifyLogger))
	}
	return gateways, nil
}

func semanticClassifier(cfg config.ClassifierConfig) ports.SemanticClassifier {
	switch {
	case cfg.ML.InferenceURL != "":
		return ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey)
	case cfg.ChatGPT.APIKey != "":
		return llm.NewChatGPTClient(cfg.ChatGPT)
	default:
		return nil
	}
}
