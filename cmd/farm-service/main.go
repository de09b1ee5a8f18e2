// Command farm-service runs the proof farm: it validates its security
// posture, consumes proof jobs from kafka into a priority queue, runs
// them through sandboxed workers and collects the results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prooffarm/internal/common/cache"
	"prooffarm/internal/common/db"
	"prooffarm/internal/common/mq"
	"prooffarm/internal/common/storage"
	"prooffarm/internal/farm/collector"
	"prooffarm/internal/farm/compiler"
	"prooffarm/internal/farm/controller"
	"prooffarm/internal/farm/intake"
	"prooffarm/internal/farm/pool"
	"prooffarm/internal/farm/queue"
	"prooffarm/internal/farm/repository"
	"prooffarm/internal/farm/sandbox"
	"prooffarm/internal/farm/security"
	"prooffarm/pkg/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/farm_service.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := LoadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error(ctx, "farm service exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg AppConfig) error {
	// Security gate: refuse to start in an unsafe posture.
	var scanner security.Scanner
	if cfg.Security.Scan.Enabled {
		s, err := security.NewCommandScanner(cfg.Security.Scan.Command)
		if err != nil {
			return err
		}
		scanner = s
	}
	if err := security.NewValidator(cfg.Security, scanner, nil).Validate(ctx); err != nil {
		logger.Error(ctx, "security validation failed, refusing to start", zap.Error(err))
		return err
	}
	logger.Info(ctx, "security validation passed")

	redis, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redis.Close()

	var store storage.ObjectStorage
	if cfg.MinIO.Endpoint != "" {
		store, err = storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			return err
		}
	}

	kq, err := mq.NewKafkaQueue(cfg.Kafka.ToKafkaConfig())
	if err != nil {
		return err
	}
	defer kq.Close()

	var database db.Database
	if cfg.MySQL.DSN != "" {
		mysql, err := db.NewMySQLWithConfig(&cfg.MySQL)
		if err != nil {
			return err
		}
		defer mysql.Close()
		database = mysql
	}

	statusRepo, err := repository.NewRedisStatusRepository(redis, cfg.Status.KeyPrefix, cfg.Status.TTL)
	if err != nil {
		return err
	}
	var resultStore repository.ResultStore
	if database != nil {
		rs, err := repository.NewMySQLResultStore(database)
		if err != nil {
			return err
		}
		resultStore = rs
	}
	var publisher repository.ResultPublisher
	if cfg.ResultsTopic != "" {
		p, err := repository.NewKafkaResultPublisher(kq, cfg.ResultsTopic)
		if err != nil {
			return err
		}
		publisher = p
	}

	q := queue.New(cfg.QueueSize)

	rt, err := sandbox.NewRuntime(cfg.Runtime)
	if err != nil {
		return err
	}
	tc, err := compiler.NewHTTPCompiler(cfg.Compiler)
	if err != nil {
		return err
	}
	executor, err := sandbox.NewExecutor(rt, store, tc, cfg.Executor)
	if err != nil {
		return err
	}

	workers, err := pool.New(q, executor, cfg.Pool)
	if err != nil {
		return err
	}
	coll, err := collector.New(cfg.Collector, statusRepo, store, resultStore, publisher)
	if err != nil {
		return err
	}
	in, err := intake.New(kq, q, statusRepo, cfg.Intake)
	if err != nil {
		return err
	}

	if err := workers.Start(ctx); err != nil {
		return err
	}
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		coll.Run(context.Background(), workers.Results())
	}()

	if err := in.Start(ctx); err != nil {
		return err
	}
	if err := kq.Start(); err != nil {
		return err
	}
	logger.Info(ctx, "farm pipeline started",
		zap.Int("queue_capacity", cfg.QueueSize),
		zap.Int("workers", cfg.Pool.Workers))

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), controller.TraceMiddleware())
	controller.NewFarmController(workers, coll, statusRepo, resultStore).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}
	logger.Info(ctx, "shutting down")

	// Stop intake first so no new jobs arrive, then drain the workers.
	if err := kq.Stop(); err != nil {
		logger.Warn(ctx, "consumer stop failed", zap.Error(err))
	}
	workers.Stop()
	<-collectorDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "http shutdown failed", zap.Error(err))
	}
	logger.Info(ctx, "farm service stopped")
	return nil
}
