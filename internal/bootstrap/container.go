package bootstrap

import (
	"context"

	"ai-factcheck-be/internal/config"
	"ai-factcheck-be/internal/controller"
	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/internal/repository/unitofwork"
	"ai-factcheck-be/internal/service"
	"ai-factcheck-be/internal/tracer"
	"ai-factcheck-be/internal/upload"
	"ai-factcheck-be/pkg/fetcher"
	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/llm/factory"
	"ai-factcheck-be/pkg/prompt"
	"ai-factcheck-be/pkg/session"
	"ai-factcheck-be/pkg/stream"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AnalysisController controller.IAnalysisController
	HistoryController  controller.IHistoryController
	ContentController  controller.IContentController
	ModelsController   controller.IModelsController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	SessionManager *session.Manager
	Logger         logger.ILogger

	pubSub *gochannel.GoChannel
	redis  *redis.Client
}

func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermillLogger,
	)

	publisherService := service.NewPublisherService(cfg.Keys.TurnPersistedTopic, pubSub)
	persistenceService := service.NewPersistenceService(
		uowFactory,
		publisherService,
		cfg.Stream.HistoryCacheTTL,
		sysLogger,
	)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Keys.TurnPersistedTopic,
		persistenceService,
		sysLogger,
	)

	// 3. Content cache (Redis is optional)
	rdb := newRedisClient(cfg.App.RedisURL, sysLogger)
	contentService := service.NewContentService(
		uowFactory,
		fetcher.New(),
		rdb,
		cfg.App.ContentCacheTTL,
		sysLogger,
	)

	// 4. Model adapters
	registry := factory.NewRegistryFromConfig(factory.Config{
		GeminiAPIKey:       cfg.Keys.GoogleGemini,
		GeminiModels:       cfg.Ai.GeminiModels,
		OpenAIAPIKey:       cfg.Keys.OpenAI,
		OpenAIBaseURL:      cfg.Ai.OpenAIBaseURL,
		OpenAIModels:       cfg.Ai.OpenAIModels,
		AnthropicAPIKey:    cfg.Keys.Anthropic,
		AnthropicModels:    cfg.Ai.AnthropicModels,
		OllamaBaseURL:      cfg.Ai.OllamaBaseURL,
		OllamaModels:       cfg.Ai.OllamaModels,
		HuggingFaceAPIKey:  cfg.Keys.HuggingFace,
		HuggingFaceBaseURL: cfg.Ai.HuggingFaceURL,
		HuggingFaceModels:  cfg.Ai.HuggingFaceModels,
		EnableDemo:         cfg.Ai.EnableDemo,
		Retry: llm.RetryOptions{
			MaxRetries: cfg.Ai.RetryMax,
			BaseDelay:  cfg.Ai.RetryBaseDelay,
		},
	})
	sysLogger.Info("BOOTSTRAP", "Model adapters registered", map[string]interface{}{
		"models": registry.Models(),
	})

	// 5. Sessions
	prompts := prompt.NewResolver()
	manager := session.NewManager(session.Deps{
		Adapters:  registry,
		Prompts:   prompts,
		Persister: service.NewSessionPersister(persistenceService),
		Logger:    sysLogger,
		Tracer:    otel.Tracer(tracer.ServiceName),
		Relay: stream.Options{
			Buffer:      cfg.Stream.Buffer,
			SendTimeout: cfg.Stream.WriteTimeout,
		},
		GenerationTimeout: cfg.Stream.GenerationTimeout,
	}, session.NewStore(cfg.Stream.SessionTTL, session.DefaultCleanupInterval))

	uploader := upload.NewHandler(cfg.App.UploadDir, int64(cfg.App.UploadMaxBytes))

	// 6. Controllers
	return &Container{
		AnalysisController: controller.NewAnalysisController(
			manager,
			uploader,
			controller.StreamSettings{
				Heartbeat:    cfg.Stream.Heartbeat,
				WriteTimeout: cfg.Stream.WriteTimeout,
			},
			cfg.App.JwtSecret,
			sysLogger,
		),
		HistoryController: controller.NewHistoryController(persistenceService, cfg.App.JwtSecret),
		ContentController: controller.NewContentController(contentService, cfg.App.JwtSecret),
		ModelsController:  controller.NewModelsController(registry, prompts),

		ConsumerService: consumerService,
		SessionManager:  manager,
		Logger:          sysLogger,

		pubSub: pubSub,
		redis:  rdb,
	}
}

// Close stops every session and releases the event bus and cache.
func (c *Container) Close(ctx context.Context) error {
	err := c.SessionManager.Shutdown(ctx)
	if cerr := c.pubSub.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if c.redis != nil {
		if cerr := c.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func newRedisClient(url string, log logger.ILogger) *redis.Client {
	if url == "" {
		log.Info("BOOTSTRAP", "REDIS_URL not set, content cache uses the database only", nil)
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("BOOTSTRAP", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{
			"error": err.Error(),
		})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Warn("BOOTSTRAP", "Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return rdb
}
