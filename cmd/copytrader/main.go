package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/namewasntdrown/ton-bot-sub000/internal/client/custody"
	"github.com/namewasntdrown/ton-bot-sub000/internal/client/dedust"
	"github.com/namewasntdrown/ton-bot-sub000/internal/client/tonapi"
	"github.com/namewasntdrown/ton-bot-sub000/internal/config"
	cronrunner "github.com/namewasntdrown/ton-bot-sub000/internal/cron"
	"github.com/namewasntdrown/ton-bot-sub000/internal/db"
	"github.com/namewasntdrown/ton-bot-sub000/internal/handler"
	"github.com/namewasntdrown/ton-bot-sub000/internal/logger"
	gormrepository "github.com/namewasntdrown/ton-bot-sub000/internal/repository/gorm"
	"github.com/namewasntdrown/ton-bot-sub000/internal/service"
)

func main() {
	cfgPath := os.Getenv("TB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	tonapiHTTP := &http.Client{Timeout: cfg.Tonapi.Timeout}
	chainClient := tonapi.NewClient(tonapiHTTP, cfg.Tonapi.BaseURL, cfg.Tonapi.APIToken)
	dexHTTP := &http.Client{Timeout: cfg.Dex.Timeout}
	dexClient := dedust.NewClient(dexHTTP, cfg.Dex.BaseURL)
	custodyHTTP := &http.Client{Timeout: cfg.Custody.Timeout}
	gateway := custody.NewClient(custodyHTTP, cfg.Custody.BaseURL, cfg.Custody.APIKey)
	store := gormrepository.New(dbConn.Gorm)

	fanout := &service.Fanout{Repo: store, Logger: logger}
	watcher := &service.Watcher{
		Repo:   store,
		Chain:  chainClient,
		Sink:   fanout,
		Logger: logger,
		Config: cfg.Watcher,
	}
	executor := service.NewExecutor(store, chainClient, dexClient, gateway, fanout, logger, cfg.Executor)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	walletHandler := &handler.WalletHandler{Repo: store}
	walletHandler.Register(engine)
	subHandler := &handler.SubscriptionHandler{Repo: store}
	subHandler.Register(engine)
	orderHandler := &handler.OrderHandler{Repo: store}
	orderHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)

	if cfg.Watcher.Enabled {
		// Load the tracked-leader set before the first poll tick.
		if err := watcher.RefreshSources(ctx); err != nil {
			logger.Warn("initial leader refresh failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Watcher.SourceRefresh, func(ctx context.Context) {
			if err := watcher.RefreshSources(ctx); err != nil {
				logger.Warn("leader refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register leader refresh failed", zap.Error(err))
		}

		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("watcher stopped", zap.Error(err))
			}
		}()

		if cfg.Watcher.Stream {
			stream := tonapi.NewStreamClient(cfg.Tonapi.StreamURL, cfg.Tonapi.APIToken)
			go func() {
				if err := watcher.RunStream(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("account stream stopped", zap.Error(err))
				}
			}()
		}
	}

	var executorDone chan struct{}
	if cfg.Executor.Enabled {
		executorDone = make(chan struct{})
		go func() {
			defer close(executorDone)
			if err := executor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("executor stopped", zap.Error(err))
			}
		}()

		if cfg.Executor.LeaseSeconds > 0 {
			_, err = cronRunner.Add("@every 30s", func(ctx context.Context) {
				if err := executor.ReleaseStuck(ctx); err != nil {
					logger.Warn("stuck order release failed", zap.Error(err))
				}
			})
			if err != nil {
				logger.Warn("cron register stuck order release failed", zap.Error(err))
			}
		}
	}

	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// An in-flight claimed order finishes before the process exits; the
	// executor's per-order timeout bounds the wait.
	if executorDone != nil {
		logger.Info("waiting for executor to drain")
		<-executorDone
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
