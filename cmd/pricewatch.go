package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/cache"
	"pricewatch/internal/configuration"
	"pricewatch/internal/database"
	"pricewatch/internal/database/memory"
	mongodb "pricewatch/internal/database/mongo"
	"pricewatch/internal/database/postgres"
	"pricewatch/internal/job"
	"pricewatch/internal/logger"
	"pricewatch/internal/notifier"
	"pricewatch/internal/parser"
	"pricewatch/internal/scheduler"
	"pricewatch/internal/server"
)

const cycleLockKey = "pricewatch:cycle"

func main() {
	if err := runApp(); err != nil {
		os.Exit(1)
	}
}

func runApp() (err error) {
	appContext, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logOutput, errOutput := io.Writer(os.Stdout), io.Writer(os.Stderr)
	appLogger := logger.NewLogger(logger.LevelError, logOutput, errOutput)

	defer func() {
		if r := recover(); r != nil {
			appLogger.Errorf("APPLICATION CRASHED: %+v", r)
			err = errors.Errorf("panic: %v", r)
		}
	}()

	config, err := configuration.GetConfig("config.toml")
	if err != nil {
		appLogger.Error("Error getting configuration from config.toml:", err)
		return err
	}

	if config.LogToFile {
		logFile, err := os.OpenFile("pricewatch.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			appLogger.Error("Error opening log file:", err)
			return err
		}
		defer func() {
			if err := logFile.Close(); err != nil {
				appLogger.Error("Error closing log file:", err)
			}
		}()
		logOutput = io.MultiWriter(logOutput, logFile)
		errOutput = io.MultiWriter(errOutput, logFile)
	}
	appLogger = logger.NewLogger(config.LogLevel, logOutput, errOutput)

	if config.LogLevel >= logger.LevelDebug {
		conf, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			appLogger.Error("Error marshalling Config to JSON:", err)
			return err
		}
		appLogger.Debugf("Config:\n%s", conf)
	}

	store, closeStore, err := openStore(appContext, config, appLogger)
	if err != nil {
		appLogger.Error("Error opening store:", err)
		return err
	}
	defer closeStore()

	var (
		rdb    *cache.Redis
		locker scheduler.Locker
	)
	if config.RedisAddress != "" {
		appLogger.Info("Connecting to Redis at", config.RedisAddress)
		rdb, err = cache.NewRedis(appContext, config.RedisAddress, config.RedisPassword, config.RedisDB)
		if err != nil {
			appLogger.Error("Error connecting to Redis:", err)
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				appLogger.Error("Error closing Redis client:", err)
			}
		}()
		locker = cache.NewMutex(rdb, cycleLockKey, config.CycleTimeout)
	}

	pc := parser.Client{
		HTTP:   &http.Client{Timeout: config.FetchTimeout},
		Logger: appLogger,
	}
	blibli := parser.Blibli{Client: pc}
	if rdb != nil {
		blibli.Cache = rdb
	}
	registry := parser.NewRegistry(
		parser.Shopee{Client: pc},
		parser.Tokopedia{Client: pc},
		blibli,
	)
	for _, m := range config.OpenGraphMarketplaces {
		registry.Register(parser.OpenGraph{Client: pc, Name: m})
	}
	appLogger.Info("Registered marketplaces:", strings.Join(registry.Marketplaces(), ", "))

	notifyClient := &http.Client{Timeout: 15 * time.Second}
	var channel notifier.Channel
	switch config.Notifier {
	case configuration.NotifierFCM:
		channel = notifier.FCM{Client: notifyClient, Key: config.FCMKey, Logger: appLogger}
	default:
		channel = notifier.Telegram{Client: notifyClient, Token: config.TelegramBotToken, Logger: appLogger}
	}

	j := &job.Job{
		Store:    store,
		Gateway:  parser.NewGateway(registry, config.FetchTimeout, config.FetchSpacing, appLogger),
		Notifier: channel,
		Logger:   appLogger,
		Workers:  config.Workers,
	}
	sch := scheduler.New(j, locker, config.FetchDataInterval, config.CycleTimeout, appLogger)

	appLogger.Info("Starting scheduler with interval:", config.FetchDataInterval)
	stopScheduler := runInBackground(appContext, sch.Run)
	defer func() {
		if err := stopScheduler(); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("Error stopping scheduler:", err)
		}
	}()

	srv := server.Server{
		Scheduler:         sch,
		Logger:            appLogger,
		AuthSecretKey:     config.AuthSecretKey,
		AdminPasswordHash: config.AdminPasswordHash,
	}
	httpSrv := &http.Server{
		Handler:      srv.Router(),
		Addr:         config.ServerAddress,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		<-appContext.Done()
		appLogger.Info("Shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			appLogger.Error("Error shutting down HTTP server:", err)
		}
	}()

	appLogger.Info("Serving on", httpSrv.Addr)
	if err = httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLogger.Error("Error serving HTTP:", err)
		return err
	}
	return nil
}

// runInBackground starts fn in its own goroutine. The returned stop cancels
// fn's context and blocks until fn has returned.
func runInBackground(ctx context.Context, fn func(context.Context) error) (stop func() error) {
	ctx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		return fn(ctx)
	})
	return func() error {
		cancel()
		return g.Wait()
	}
}

func openStore(ctx context.Context, config *configuration.Config, l *logger.Logger) (database.Opener, func(), error) {
	switch config.DatabaseDriver {
	case configuration.DriverMemory:
		l.Warn("Using in-memory store, nothing will be kept across restarts")
		return memory.NewStore(), func() {}, nil
	case configuration.DriverPostgres:
		l.Info("Connecting to Postgres")
		pool, err := postgres.NewPool(ctx, config.DatabaseURI)
		if err != nil {
			return nil, nil, err
		}
		if err = pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pool, pool.Close, nil
	default:
		l.Info("Connecting to MongoDB at", config.DatabaseURI)
		c, err := mongodb.ConnectDB(ctx, config.DatabaseURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := c.Disconnect(context.Background()); err != nil {
				l.Error("Error disconnecting from MongoDB:", err)
			}
		}
		return mongodb.Database{Database: c.Database(mongodb.Name)}, closeFn, nil
	}
}
