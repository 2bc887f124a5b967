// Package app 按配置装配存储、补全服务与业务服务，供各个二进制共用
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"sprintmail/internal/config"
	"sprintmail/internal/embedding"
	"sprintmail/internal/llm"
	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/internal/repository/memstore"
	"sprintmail/internal/service/assistant"
	"sprintmail/internal/service/catalog"
	"sprintmail/internal/service/generation"
	"sprintmail/internal/service/learning"
	"sprintmail/pkg/db"
	"sprintmail/pkg/otel"
	"sprintmail/pkg/outbox"
)

// Store 两种存储实现共同满足的能力
type Store interface {
	learning.Store
	generation.Store
	catalog.Store
	assistant.Store
	Ping(ctx context.Context) error
	RecomputeSuccessRate(ctx context.Context, templateID int64) (float64, error)
	GetGenerationRecord(ctx context.Context, id int64) (*model.GenerationRecord, error)
}

var (
	_ Store = (*repository.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Store Store
	// 内存存储时为 nil
	Pool   *pgxpool.Pool
	Outbox *outbox.Repository

	LLM        llm.Completer
	Learning   *learning.Service
	Generation *generation.Pipeline
	Catalog    *catalog.Service
	Assistant  *assistant.Service

	closers []func()
}

// New serviceName 用于 tracing 的 service.name
func New(cfg *config.Config, logger *zap.Logger, serviceName string) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	shutdown, err := otel.Init(otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Endpoint:       cfg.Otel.Endpoint,
		SampleRatio:    cfg.Otel.SampleRatio,
		Enabled:        cfg.Otel.Enabled,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage, data is lost on exit")
		a.Store = memstore.New()
	default:
		if cfg.Storage.AutoMigrate {
			// vector 扩展必须先于连接池创建，AfterConnect 才能注册类型
			if err := db.Migrate(cfg.DB, logger); err != nil {
				a.Close()
				return nil, err
			}
		}
		pool, err := db.NewConnection(cfg.DB, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.Pool = pool
		a.Outbox = outbox.NewRepository(pool)
		a.Store = repository.NewStore(pool)
	}

	c, err := llm.New(cfg.AI, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.LLM = c

	embed := embedding.Select(cfg.AI.MockEmbeddings)
	a.Learning = learning.NewService(a.Store, c, embed, logger)
	a.Generation = generation.NewPipeline(a.Store, c, embed, logger)
	a.Catalog = catalog.NewService(a.Store, logger)
	a.Assistant = assistant.NewService(a.Store, c, logger)
	return a, nil
}

// Close 逆序释放资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
