package notsub

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"orderboard/internal/notsub/adapter/consumer"
	"orderboard/internal/notsub/app/core"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/config"
	"orderboard/pkg/logger"
	"orderboard/pkg/rabbitmq"
)

type params struct {
	configPath string
	subParams  core.SubscriberParams
	cfg        *config.Config
}

// Execute starts the notification subscriber
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
	mylog.Action("command_parse_completed").Debug("Received params", "config_path", params.configPath)

	if err = validateParams(params); err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}
	mylog.Action("command_validation_completed").Info("Successfully validate params")

	mb, err := rabbitmq.Connect(params.cfg.RMQ, mylog)
	if err != nil {
		mylog.Action("mb_connection_failed").Error("Failed to connect to message broker", err)
		return fmt.Errorf("%w: %w", apperr.ErrMBConn, err)
	}

	notsub := consumer.NewNotification(newCtx, mb, params.subParams, os.Stdout, mylog)
	if err := notsub.Run(); err != nil {
		mylog.Action("notsub_run_failed").Error("Notification subscriber stopped with error", err)
		_ = mb.Close()
		return err
	}
	return notsub.Stop(context.Background())
}

func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("notification-subscriber", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")
	queue := fs.String("queue", rabbitmq.NotificationsQueue, "Queue bound to the status exchange")
	prefetch := fs.Int("prefetch", 10, "Unacknowledged deliveries per consumer")

	if err := fs.Parse(args); err != nil {
		return nil, apperr.ErrParseCmd
	}

	if *showHelp {
		fs.Usage()
		return nil, apperr.ErrHelp
	}

	return &params{
		configPath: *configPath,
		subParams:  core.SubscriberParams{Queue: *queue, Prefetch: *prefetch},
	}, nil
}

func validateParams(params *params) error {
	cfg, err := config.LoadConfig(params.configPath)
	if err != nil {
		return err
	}
	params.cfg = cfg

	if params.subParams.Queue == "" {
		return fmt.Errorf("queue: %w", apperr.ErrFieldIsEmpty)
	}
	if params.subParams.Prefetch < 0 {
		return fmt.Errorf("prefetch cannot be negative: %d", params.subParams.Prefetch)
	}
	return nil
}
