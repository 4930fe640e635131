package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/aihub/classroom-rag/internal/auth"
	"github.com/aihub/classroom-rag/internal/config"
	"github.com/aihub/classroom-rag/internal/consul"
	"github.com/aihub/classroom-rag/internal/database"
	"github.com/aihub/classroom-rag/internal/di"
	"github.com/aihub/classroom-rag/internal/etcd"
	"github.com/aihub/classroom-rag/internal/kafka"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/aihub/classroom-rag/internal/llm"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/services"
	"github.com/aihub/classroom-rag/internal/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// consulConfigPrefix Consul KV 中可热更新参数的前缀
const consulConfigPrefix = "classroom-rag/config"

// Options 控制启动哪些常驻组件
type Options struct {
	// Serve 为 true 时启动后台健康检查、Kafka 重处理消费者并注册到 Consul
	Serve bool
}

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config   *config.Config
	Infra    *di.Infrastructure
	Services *di.Services
	Health   *database.HealthChecker
	JWT      *auth.JWTService

	cancel       context.CancelFunc
	cleanupTasks []func() error
}

// Init bootstraps configuration, logger, database connections and other shared
// infrastructure components. Optional components degrade to local defaults.
func Init(ctx context.Context, opts Options) (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.Get()

	runCtx, cancel := context.WithCancel(context.Background())
	app := &App{Config: cfg, cancel: cancel}
	ok := false
	defer func() {
		if !ok {
			app.Shutdown()
		}
	}()

	// Consul 可用时先覆盖可调参数，再构建服务
	var consulClient *consul.Client
	if cfg.Consul.Enabled {
		client, err := consul.NewClient(cfg.Consul.Address, true, logger.Named("consul"))
		if err != nil {
			logger.Warn("Failed to initialize Consul client", zap.Error(err))
		} else {
			consulClient = client
			consul.ApplyTunables(client, consulConfigPrefix, cfg, logger.Named("consul"))
		}
	}

	if err := knowledge.ApplyUnidocLicense(cfg.PDF.LicenseKey); err != nil {
		logger.Warn("Failed to apply document parser license", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	infra := &di.Infrastructure{Config: cfg, Metrics: services.NewMetrics(registry)}
	app.Infra = infra

	db, err := database.Open(cfg.Database, cfg.Server.Env)
	if err != nil {
		return nil, err
	}
	infra.DB = db
	app.cleanupTasks = append(app.cleanupTasks, func() error { return database.Close(db) })
	if cfg.Server.Env == "development" {
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	if err := app.initHealth(runCtx, db, registry, opts.Serve); err != nil {
		return nil, err
	}

	app.initCoordination(ctx)

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	infra.Blobs = blobs

	embedder, err := knowledge.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	infra.Embedder = embedder

	index, err := knowledge.NewVectorIndex(ctx, cfg.VectorIndex, embedder, db)
	if err != nil {
		return nil, err
	}
	infra.Index = index
	app.cleanupTasks = append(app.cleanupTasks, index.Close)

	backend, err := llm.NewBackend(cfg.Generation)
	if err != nil {
		return nil, err
	}
	infra.Backend = backend

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		if err != nil {
			logger.Warn("Failed to initialize Kafka producer, document events disabled", zap.Error(err))
		} else {
			infra.Events = producer
			app.cleanupTasks = append(app.cleanupTasks, producer.Close)
		}
	}

	svcs, err := di.Build(infra)
	if err != nil {
		return nil, err
	}
	app.Services = svcs

	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.TTLHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	app.JWT = jwtService

	config.Watch(func(next *config.Config) {
		svcs.Retriever.SetDefaultK(next.Retrieval.TopK)
		logger.Info("configuration reloaded", zap.Int("retrieval_top_k", next.Retrieval.TopK))
	})

	if opts.Serve {
		app.startReprocessConsumer(cfg, svcs.Ingestion)
		app.registerService(cfg, consulClient)
	}

	logger.Info("application initialised",
		zap.String("env", cfg.Server.Env),
		zap.String("vector_index", cfg.VectorIndex.Provider),
		zap.String("embedding_model", embedder.ModelName()),
		zap.String("generation_model", backend.Model()))
	ok = true
	return app, nil
}

// initHealth 数据库健康检查与连接池指标
func (a *App) initHealth(ctx context.Context, db *gorm.DB, registry *prometheus.Registry, background bool) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	registry.MustRegister(database.NewPoolCollector(sqlDB, "primary"))

	healthLogger := logrus.New()
	healthLogger.SetFormatter(&logrus.JSONFormatter{})
	a.Health = database.NewHealthChecker(sqlDB, healthLogger)
	if background {
		go a.Health.Run(ctx)
	} else if err := a.Health.Check(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// initCoordination Redis 状态缓存与按配置选择的文档锁
func (a *App) initCoordination(ctx context.Context) {
	cfg := a.Config
	if cfg.Redis.Enabled {
		rdb, err := database.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("Failed to initialize Redis, step status cache disabled", zap.Error(err))
		} else {
			a.cleanupTasks = append(a.cleanupTasks, rdb.Close)
			a.Infra.Status = services.NewRedisStatusCache(rdb, cfg.Redis.StatusTTL)
			if cfg.Ingestion.LockProvider == "redis" {
				a.Infra.Locker = services.NewRedisLocker(rdb, cfg.Ingestion.LockTTL)
			}
		}
	}

	if cfg.Ingestion.LockProvider == "etcd" {
		client, err := etcd.NewClient(cfg.Etcd.Endpoints, cfg.Etcd.Enabled, logger.Named("etcd"))
		if err != nil {
			logger.Warn("Failed to initialize etcd client", zap.Error(err))
			return
		}
		locker, err := etcd.NewLocker(client, cfg.Ingestion.LockTTL)
		if err != nil {
			logger.Warn("etcd lock unavailable, using in-process lock", zap.Error(err))
			_ = client.Close()
			return
		}
		a.cleanupTasks = append(a.cleanupTasks, client.Close)
		a.Infra.Locker = locker
	}

	if a.Infra.Locker == nil && cfg.Ingestion.LockProvider != "local" {
		logger.Warn("document lock provider unavailable, using in-process lock",
			zap.String("provider", cfg.Ingestion.LockProvider))
	}
}

func openBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.Provider == "memory" {
		return storage.NewMemoryStore(cfg.Storage.Bucket), nil
	}
	store, err := storage.NewMinioStore(ctx, cfg.Storage)
	if err == nil {
		return store, nil
	}
	if cfg.Server.Env == "production" {
		return nil, err
	}
	logger.Warn("Failed to initialize MinIO, keeping originals in memory", zap.Error(err))
	return storage.NewMemoryStore(cfg.Storage.Bucket), nil
}

// startReprocessConsumer 消费重处理请求
func (a *App) startReprocessConsumer(cfg *config.Config, ingestion *services.IngestionService) {
	if !cfg.Kafka.Enabled {
		return
	}
	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{cfg.Kafka.ReprocessTopic})
	if err != nil {
		logger.Warn("Failed to initialize Kafka consumer", zap.Error(err))
		return
	}
	consumer.RegisterHandler(cfg.Kafka.ReprocessTopic, func(ctx context.Context, message *sarama.ConsumerMessage) error {
		req, err := kafka.ParseReprocessMessage(message.Value)
		if err != nil {
			return err
		}
		logger.Info("reprocess requested",
			zap.Uint("document_id", req.DocumentID),
			zap.String("reason", req.Reason))
		return ingestion.ReprocessByID(ctx, req.DocumentID)
	})
	consumer.Start()
	a.cleanupTasks = append(a.cleanupTasks, consumer.Close)
}

func (a *App) registerService(cfg *config.Config, client *consul.Client) {
	if client == nil || !client.IsEnabled() {
		return
	}
	registry := consul.NewServiceRegistry(client, cfg.Consul.ServiceID, cfg.Consul.ServiceName, logger.Named("consul"))
	if err := registry.Register(cfg); err != nil {
		logger.Warn("Failed to register service with Consul", zap.Error(err))
		return
	}
	a.cleanupTasks = append(a.cleanupTasks, registry.Deregister)
}

// Shutdown closes resources in reverse order and flushes the logger.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	a.cleanupTasks = nil
	logger.Sync()
}
