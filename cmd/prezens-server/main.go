package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BrandonDHaskell/prezens/server/internal/config"
	dbpkg "github.com/BrandonDHaskell/prezens/server/internal/db"
	"github.com/BrandonDHaskell/prezens/server/internal/grpcapi"
	"github.com/BrandonDHaskell/prezens/server/internal/httpapi"
	"github.com/BrandonDHaskell/prezens/server/internal/logging"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/service"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store/gormstore"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store/memory"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store/sqlite"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
	"github.com/BrandonDHaskell/prezens/server/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Log)
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel, "prezens-server")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Services
	opts := service.Options{Logger: logger, Location: cfg.Location()}
	locks := service.NewKeyedMutex()
	roster := service.NewRoster(st, opts)
	checkIn := service.NewCheckInService(st, roster, locks, opts)
	approvals := service.NewApprovalService(st, locks, opts)
	meetings := service.NewMeetingService(st, roster, opts)
	dashboard := service.NewDashboardService(st, opts)

	refresher := service.NewStatusRefresher(st, cfg.StatusRefreshInterval(), opts)
	refresher.Start(ctx)
	defer refresher.Stop()

	auth := httpapi.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if !cfg.IsProd() {
		tok, err := auth.Issue(types.Actor{ID: 1, Username: "admin", Role: types.RoleAdmin}, 24*time.Hour)
		if err == nil {
			logger.Info("dev admin token", "token", tok)
		}
	}

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logger,
		Addr:      cfg.HTTPAddr,
		Auth:      auth,
		Store:     st,
		Location:  cfg.Location(),
		CheckIn:   checkIn,
		Approvals: approvals,
		Meetings:  meetings,
		Dashboard: dashboard,
	})

	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr, "env", cfg.Env, "db_driver", cfg.DB.Driver)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// gRPC health
	grpcDone := make(chan error, 1)
	if cfg.GRPCAddr != "" {
		hs, err := grpcapi.New(cfg.GRPCAddr, st, cfg.HealthProbeInterval(), logger)
		if err != nil {
			return err
		}
		go func() {
			err := hs.Serve(ctx)
			if err != nil {
				logger.Error("grpc server error", "error", err)
				stop()
			}
			grpcDone <- err
		}()
	} else {
		close(grpcDone)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-grpcDone
	return nil
}

// openStore selects the backend named by cfg.DB.Driver. The returned func
// releases it.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.DB.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil

	case "mysql", "postgres":
		gdb, err := gormstore.Open(ctx, gormstore.Config{
			Driver:      cfg.DB.Driver,
			DSN:         cfg.DB.DSN,
			Logger:      logger,
			AutoMigrate: !cfg.IsProd(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.DB.Driver, err)
		}
		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return gormstore.New(gdb), closeFn, nil

	default:
		sqlDB, err := dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DB.Path, Env: cfg.Env, Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if !cfg.IsProd() {
			if err := dbpkg.SeedDev(ctx, sqlDB, dbpkg.SeedDevOptions{}); err != nil {
				_ = sqlDB.Close()
				return nil, nil, fmt.Errorf("seed dev data: %w", err)
			}
		}
		writer := dbpkg.NewWorker(sqlDB, dbpkg.WithLogger(logger, 250*time.Millisecond))
		closeFn := func() {
			writer.Close()
			_ = sqlDB.Close()
		}
		return sqlite.New(sqlDB, writer), closeFn, nil
	}
}
