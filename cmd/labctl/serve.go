package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"three-tier-lab/internal/cache"
	"three-tier-lab/internal/config"
	"three-tier-lab/internal/database"
	"three-tier-lab/internal/handler"
	"three-tier-lab/internal/logger"
	"three-tier-lab/internal/middleware"
	"three-tier-lab/internal/router"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	loadConfig     = config.Load
	newPgxPool     = database.NewPgxPool
	newRedisClient = cache.NewRedisClient
	startServer    = func(e *echo.Echo, addr string) error { return e.Start(addr) }
	notifyContext  = signal.NotifyContext
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the users API (configured from the environment)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.AppEnv)

	ctx, stop := notifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 連線池延遲建立連線，資料庫未就緒時服務仍可啟動並回報 unhealthy
	db, err := newPgxPool(ctx, cfg.DatabaseURL, int32(cfg.Workers))
	if err != nil {
		return fmt.Errorf("DB 連線池建立失敗: %w", err)
	}
	defer db.Close()

	var cch cache.Cache
	if cfg.CacheEnabled() {
		c, err := newRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, users cache disabled")
		} else {
			cch = c
			defer c.Close()
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	opts := handler.Options{
		AcquireTimeout: cfg.AcquireTimeout,
		VerboseErrors:  cfg.VerboseErrors,
		Log:            log,
	}
	if cch != nil {
		opts.CacheTTL = cfg.UsersCacheTTL
	}
	router.Setup(e, db, cch, opts)

	errCh := make(chan error, 1)
	go func() { errCh <- startServer(e, cfg.Addr) }()
	log.WithFields(logrus.Fields{"addr": cfg.Addr, "pool_max_conns": cfg.Workers}).Info("api listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
