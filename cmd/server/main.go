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
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"gt06gateway/internal/api/router"
	"gt06gateway/internal/cache"
	"gt06gateway/internal/config"
	"gt06gateway/internal/core/repository"
	"gt06gateway/internal/core/service"
	"gt06gateway/internal/intake"
	"gt06gateway/internal/logger"
	"gt06gateway/internal/protocol/server"
	"gt06gateway/internal/recorder"
)

func main() {
	configPath := flag.String("config", os.Getenv("GT06_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Error("gateway stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Backing services
	var db *mongo.Database
	if cfg.MongoDB.URI != "" {
		var err error
		db, err = config.ConnectMongoDB(ctx, cfg.MongoDB)
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			db.Client().Disconnect(dctx)
		}()
	}

	redisClient := cache.New(cfg.Redis.URL)
	defer redisClient.Close()
	if cfg.Store.Backend == config.StoreRedis && !redisClient.Enabled() {
		return errors.New("store.backend redis but Redis is unavailable")
	}

	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		var err error
		nc, err = config.ConnectNATS(cfg.NATS)
		if err != nil {
			return err
		}
		defer nc.Drain()
	}

	// Repositories
	var (
		commandRepo  repository.CommandRepository
		deviceRepo   repository.DeviceRepository
		positionRepo repository.PositionRepository
	)
	if db != nil {
		mongoDevices := repository.NewMongoDeviceRepository(db)
		mongoPositions := repository.NewMongoPositionRepository(db)
		mongoCommands := repository.NewMongoCommandRepository(db)
		for _, ensure := range []func(context.Context) error{
			mongoCommands.EnsureIndexes, mongoDevices.EnsureIndexes, mongoPositions.EnsureIndexes,
		} {
			if err := ensure(ctx); err != nil {
				logrus.WithError(err).Warn("failed to create MongoDB index")
			}
		}
		deviceRepo, positionRepo = mongoDevices, mongoPositions
		if cfg.Store.Backend == config.StoreMongo {
			commandRepo = mongoCommands
		}
	} else {
		deviceRepo = repository.NewInMemoryDeviceRepository()
		positionRepo = repository.NewInMemoryPositionRepository(repository.DefaultPositionsPerDevice)
	}
	switch cfg.Store.Backend {
	case config.StoreRedis:
		commandRepo = repository.NewRedisCommandRepository(redisClient)
	case config.StoreMemory:
		commandRepo = repository.NewInMemoryCommandRepository()
	}

	pending, err := commandRepo.FindAll()
	if err != nil {
		return fmt.Errorf("failed to load pending commands: %w", err)
	}

	journal := repository.NewJournal(commandRepo, cfg.Command.JournalQueue)
	positionService := service.NewPositionService(positionRepo)

	// Frame recording
	sinks := []recorder.Sink{
		recorder.NewLogSink(),
		recorder.NewStoreSink(deviceRepo, positionService),
	}
	var deviceLog *recorder.DeviceLogSink
	if cfg.DeviceLog.Enabled {
		deviceLog, err = recorder.NewDeviceLogSink(cfg.DeviceLog, logger.LoadLocation(cfg.Log.Timezone))
		if err != nil {
			return err
		}
		defer deviceLog.Close()
		sinks = append(sinks, deviceLog)
	}
	if redisClient.Enabled() {
		sinks = append(sinks, recorder.NewRedisSink(redisClient, cfg.Redis.SessionTTL, cfg.Redis.ShadowTTL))
	}
	if nc != nil {
		sinks = append(sinks, recorder.NewNATSSink(nc, cfg.NATS.SubjectPrefix))
	}
	emitter := recorder.NewEmitter(cfg.Recorder.Queue, sinks...)

	// Device server
	srv := server.NewTCPServer(server.Options{
		Addr:             cfg.Server.Addr(),
		ReadBufferSize:   cfg.Server.ReadBufferSize,
		MaxBufferedBytes: cfg.Server.MaxBufferedBytes,
		OutboundQueue:    cfg.Server.OutboundQueue,
		EventQueue:       cfg.Server.EventQueue,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		VerifyChecksum:   cfg.Protocol.VerifyChecksum,
		BatteryLockDelay: cfg.Command.BatteryLockDelay,
		Store:            journal,
		Recorder:         emitter,
	})
	srv.Restore(pending)

	// Command intake
	var noter intake.DeviceNoter
	if deviceLog != nil {
		noter = deviceLog
	}
	var watcher *intake.FileWatcher
	if cfg.Command.Watch {
		watcher = intake.NewFileWatcher(cfg.Command.Dir, srv, noter)
		srv.RegisterFulfiller(intake.SourceFile, watcher)
		srv.AddLoginObserver(watcher)
	}
	var natsIntake *intake.NATSSubscriber
	if nc != nil {
		natsIntake = intake.NewNATSSubscriber(nc, cfg.NATS.CommandSubject, cfg.NATS.ConfirmSubject, srv)
		srv.RegisterFulfiller(intake.SourceNATS, natsIntake)
	}

	// Workers are stopped only after the server has finished.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go journal.Run(workerCtx)
	go emitter.Run(workerCtx)

	if err := srv.Start(ctx); err != nil {
		return err
	}

	if watcher != nil {
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logrus.WithError(err).Error("command file intake stopped")
			}
		}()
	}
	if natsIntake != nil {
		if err := natsIntake.Start(); err != nil {
			return err
		}
		defer natsIntake.Stop()
	}

	// HTTP API
	var httpServer *http.Server
	if cfg.API.Enabled {
		deviceService := service.NewDeviceService(srv, deviceRepo)
		httpServer = &http.Server{
			Addr: cfg.API.Addr,
			Handler: router.NewRouter(router.Options{
				JWTSecret:      cfg.API.JWTSecret,
				AllowedOrigins: cfg.API.AllowedOrigins,
			}, deviceService, positionService),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logrus.WithField("addr", cfg.API.Addr).Info("API server starting")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Error("API server failed")
			}
		}()
	}

	<-ctx.Done()
	logrus.Info("shutting down")

	if httpServer != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpServer.Shutdown(sctx)
		cancel()
	}
	srv.Wait()

	stopWorkers()
	<-journal.Done()
	<-emitter.Done()
	logrus.Info("gateway stopped")
	return nil
}
