package orderstore

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"orderboard/internal/orderstore/api/http"
	"orderboard/internal/orderstore/app/core"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/config"
	"orderboard/pkg/logger"
)

type params struct {
	storeParams *core.StoreParams
	configPath  string
	backend     string
	cfg         *config.Config
}

// Execute starts the order store
func Execute(ctx context.Context, mylog logger.Logger, args []string) error {
	newCtx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	params, err := parseParams(args)
	if err != nil {
		if !errors.Is(err, apperr.ErrHelp) {
			mylog.Action("command_parse_failed").Error("Invalid command received", err)
		}
		return err
	}
	if err = validateParams(params); err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}
	mylog.Action("command_validation_completed").Info("Successfully validate params")

	server := http.NewServer(newCtx, context.Background(), params.cfg, params.storeParams, mylog)

	g, gctx := errgroup.WithContext(newCtx)
	g.Go(func() error {
		if err := server.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mylog.Action("order_store_failed").Error("Server failed unexpectedly", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		mylog.Action("shutdown_signal_received").Info("Shutdown signal received")
		return server.Stop(context.Background())
	})

	if err := g.Wait(); err != nil {
		return err
	}
	mylog.Action("server_stopped").Info("Server exited normally")
	return nil
}

func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("order-store", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")

	port := fs.Int("port", 3000, "Port to run the order store on")
	backend := fs.String("backend", "", "Storage backend: postgres or memory (default from config)")
	migrate := fs.Bool("migrate", true, "Apply database migrations on startup")

	if err := fs.Parse(args); err != nil {
		return nil, apperr.ErrParseCmd
	}

	if *showHelp {
		fs.Usage()
		return nil, apperr.ErrHelp
	}

	return &params{
		storeParams: &core.StoreParams{
			Port:    *port,
			Migrate: *migrate,
		},
		configPath: *configPath,
		backend:    *backend,
	}, nil
}

func validateParams(params *params) error {
	cfg, err := config.LoadConfig(params.configPath)
	if err != nil {
		return err
	}
	if params.backend != "" {
		cfg.Store.Backend = params.backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	params.cfg = cfg
	params.storeParams.Backend = cfg.Store.Backend

	if p := params.storeParams.Port; p <= 0 || p >= 65536 {
		return fmt.Errorf("port must be in [1: 65,535]: %d", p)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (AUTH_JWT_SECRET): %w", apperr.ErrFieldIsEmpty)
	}
	return nil
}
