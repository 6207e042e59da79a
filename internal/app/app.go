package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/trimbox/trimbox/internal/auth"
	"github.com/trimbox/trimbox/internal/config"
	"github.com/trimbox/trimbox/internal/httpserver"
	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/logger"
	"github.com/trimbox/trimbox/internal/redis"
	"github.com/trimbox/trimbox/internal/scan"
	"github.com/trimbox/trimbox/internal/scheduler"
	"github.com/trimbox/trimbox/internal/sources/credfile"
	redisstore "github.com/trimbox/trimbox/internal/store/redis"
	"github.com/trimbox/trimbox/internal/unsub"
	"github.com/trimbox/trimbox/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	janitor     *scheduler.Janitor
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient)

	// OAuth application credentials
	creds, err := credfile.NewLoader(cfg.CredentialsFile).Load()
	if err != nil {
		loggerClient.Errorf("Failed to load credentials file: %v", err)
		os.Exit(1)
	}
	oauthCfg := credfile.NewMapper().MapOAuthConfig(creds)

	provider := auth.NewProvider(oauthCfg, store, loggerClient)
	login := auth.NewLogin(oauthCfg, store, cfg.SessionTTL, loggerClient)

	scanner := scan.NewService(provider, store, scan.Config{
		Budget: cfg.ScanBudget,
		Pager: scan.PagerConfig{
			PageSize:  cfg.PageSize,
			PageDelay: cfg.PageDelay,
		},
	}, loggerClient)

	unsubscriber := unsub.NewExecutor(store,
		&http.Client{Timeout: cfg.UnsubPostTimeout}, loggerClient)

	janitor := scheduler.NewJanitor(store, loggerClient,
		cfg.JanitorInterval, cfg.JanitorThreshold)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		RedisClient:  redisClient,
		Sessions:     store,
		Auth:         login,
		SessionTTL:   cfg.SessionTTL,
		Scanner:      scanner,
		Unsubscriber: unsubscriber,
		Mail:         provider,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		janitor:     janitor,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Trimbox v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("Trimbox %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start orphan janitor
	if err := a.janitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start janitor: %w", err)
	}
	a.logger.Info("janitor started",
		logger.Duration("interval", a.cfg.JanitorInterval),
		logger.Duration("threshold", a.cfg.JanitorThreshold))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.janitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ Trimbox stopped cleanly")
	return nil
}
