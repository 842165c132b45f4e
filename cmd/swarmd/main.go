package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pvtclawn/swarm-verifier/internal/api"
	"github.com/pvtclawn/swarm-verifier/internal/chain"
	"github.com/pvtclawn/swarm-verifier/internal/chain/ethereum"
	"github.com/pvtclawn/swarm-verifier/internal/config"
	"github.com/pvtclawn/swarm-verifier/internal/jobs"
	"github.com/pvtclawn/swarm-verifier/internal/observability/metrics"
	"github.com/pvtclawn/swarm-verifier/internal/storage/mysql"
	"github.com/pvtclawn/swarm-verifier/internal/verifier"
	"github.com/pvtclawn/swarm-verifier/pkg/logger"
)

// main 是验证守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("swarmd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SWARMVERIFIER_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "swarmd.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Audit: logger.AuditConfig{
			Enabled: true,
			Path:    filepath.Join(cfg.Logging.AuditDir, "audit.log"),
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	var verificationStore verifier.Store
	switch cfg.Storage.Verifications.Driver {
	case "", "memory":
		repo, err := mysql.NewMemoryVerificationRepository(dataDir)
		if err != nil {
			return err
		}
		verificationStore = repo
	case "mysql":
		repo, err := mysql.NewSQLVerificationRepository(cfg.Storage.Verifications.DSN)
		if err != nil {
			return err
		}
		verificationStore = repo
	default:
		return fmt.Errorf("未知的验证存储驱动: %s", cfg.Storage.Verifications.Driver)
	}
	if closer, ok := verificationStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	var jobStore jobs.Store
	switch cfg.Storage.Jobs.Driver {
	case "", "memory":
		jobStore = jobs.NewMemoryStore()
	case "mysql":
		store, err := jobs.NewMySQLStore(cfg.Storage.Jobs.DSN)
		if err != nil {
			return err
		}
		jobStore = store
	default:
		return fmt.Errorf("未知的任务存储驱动: %s", cfg.Storage.Jobs.Driver)
	}
	defer func() {
		_ = jobStore.Close()
	}()

	var jobQueue jobs.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		jobQueue = jobs.NewMemoryQueue(1024)
	case "redis":
		queue, err := jobs.NewRedisQueue(jobs.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Queue,
		})
		if err != nil {
			return err
		}
		jobQueue = queue
	case "rabbitmq":
		queue, err := jobs.NewRabbitMQQueue(jobs.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		jobQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			logger.L().Warn("关闭任务队列失败", slog.Any("error", err))
		}
	}()

	verifierOpts := []verifier.Option{
		verifier.WithStore(verificationStore),
		verifier.WithDefaultTimeout(time.Duration(cfg.Verifier.DefaultTimeoutMs) * time.Millisecond),
	}
	if cfg.Verifier.Identity != "" {
		verifierOpts = append(verifierOpts, verifier.WithIdentity(cfg.Verifier.Identity))
	}
	if cfg.Verifier.Policy != nil {
		verifierOpts = append(verifierOpts, verifier.WithPolicy(*cfg.Verifier.Policy))
	}
	v := verifier.New(verifierOpts...)

	// 链上承诺揭示接口仅在能解析出账本 RPC 地址时启用。
	// 账本定义提供按出块间隔标定的挑战窗口默认值。
	serverOpts := []api.ServerOption{}
	rpcURL := cfg.Chain.RPCURL
	if cfg.Chain.LedgersPath != "" {
		definitions, err := chain.LoadLedgerDefinitions(cfg.Chain.LedgersPath)
		if err != nil {
			return err
		}
		if def, ok := definitions.Ledgers[cfg.Chain.Ledger]; ok {
			if rpcURL == "" {
				rpcURL = def.RPCURL
			}
			serverOpts = append(serverOpts, api.WithChallengeWindows(def.CommitBlocks, def.RevealBlocks))
		}
		logger.L().Info("账本定义加载完成", slog.Int("ledgers", len(definitions.Ledgers)))
	}
	if rpcURL != "" {
		clock, err := ethereum.NewClock(ctx, ethereum.Config{Name: cfg.Chain.Ledger, RPCURL: rpcURL})
		if err != nil {
			return err
		}
		defer clock.Close()

		height, err := clock.BlockNumber(ctx)
		if err != nil {
			return err
		}
		logger.L().Info("账本时钟就绪", slog.Uint64("height", height))

		serverOpts = append(serverOpts, api.WithChainMachine(chain.NewMachine(clock), clock))
	}

	jobService := jobs.NewService(jobStore, jobQueue, cfg.Verifier.MaxRetries)
	processor := jobs.NewProcessor(v, jobStore, jobQueue, jobQueue,
		jobs.WithWorkerCount(cfg.Queue.Workers),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, v, jobService, serverOpts...)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
