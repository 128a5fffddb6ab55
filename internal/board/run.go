package board

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"orderboard/internal/board/adapter/remote"
	"orderboard/internal/board/app/projector"
	"orderboard/internal/board/app/reconcile"
	"orderboard/internal/board/app/view"
	"orderboard/internal/session"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/config"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

const tokenEnv = "BOARD_TOKEN"

type params struct {
	view       string
	token      string
	storeURL   string
	interval   time.Duration
	configPath string
	status     string
	search     string

	cfg    *config.Config
	kind   projector.Kind
	sess   session.Session
	filter projector.Filter
}

// Execute mounts one role-scoped view against the order store and logs
// every change until a signal arrives or the view loses access.
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
	if err = validateParams(params, time.Now()); err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}
	mylog.Action("command_validation_completed").Info("Successfully validate params")
	viewLog := mylog.With("view", string(params.kind), "tenant_id", params.sess.TenantID())

	client, err := remote.New(params.storeURL, params.token, remote.WithLogger(mylog))
	if err != nil {
		return err
	}

	halted := make(chan error, 1)
	v, err := view.New(params.sess, params.kind, client, viewOptions(params, viewLog, halted), mylog)
	if err != nil {
		mylog.Action("view_unauthorized").Error("Session cannot open this view", err)
		return err
	}
	if err := v.Start(newCtx); err != nil {
		return err
	}
	viewLog.Action("view_mounted").Info("Board is running", "store_url", params.storeURL)

	select {
	case <-newCtx.Done():
		viewLog.Action("shutdown_signal_received").Info("Shutdown signal received")
		v.Stop()
		return nil
	case err := <-halted:
		v.Stop()
		viewLog.Action("board_exit").Error("Board stopped after losing access", err)
		return err
	}
}

func viewOptions(p *params, mylog logger.Logger, halted chan<- error) view.Options {
	sc := p.cfg.Sync
	interval := p.interval
	if interval <= 0 {
		interval = IntervalFor(p.kind, sc)
	}

	return view.Options{
		Interval:     interval,
		Timeout:      sc.FetchTimeout,
		MaxBackoff:   sc.MaxBackoff,
		ReadyGrace:   sc.ReadyGrace,
		RetainCycles: sc.RetainCycles,
		PageLimit:    sc.PageLimit,
		Filter:       p.filter,
		OnChange: func(st view.State, changes []reconcile.Change) {
			report(mylog, st, changes)
			if st.Fatal {
				select {
				case halted <- st.Err:
				default:
				}
			}
		},
	}
}

// IntervalFor is the configured poll cadence of a view kind.
func IntervalFor(kind projector.Kind, sc *config.Sync) time.Duration {
	switch kind {
	case projector.Kitchen:
		return sc.KitchenInterval
	case projector.Server:
		return sc.ServerInterval
	case projector.Cancelled:
		return sc.CancelledInterval
	case projector.Customer:
		return sc.CustomerInterval
	default:
		return sc.AdminInterval
	}
}

func report(mylog logger.Logger, st view.State, changes []reconcile.Change) {
	for _, ch := range changes {
		l := mylog.Action("order_" + ch.Kind.String())
		switch ch.Kind {
		case reconcile.StatusChanged:
			l.Info("Order status changed", "order_id", ch.OrderID, "number", ch.Order.Number,
				"from", ch.OldStatus.String(), "to", ch.NewStatus.String())
		case reconcile.RemovedFromView:
			l.Info("Order left the view", "order_id", ch.OrderID, "last_status", ch.OldStatus.String())
		default:
			l.Info("Order shown", "order_id", ch.OrderID, "number", ch.Order.Number, "status", ch.Order.Status.String())
		}
	}

	switch {
	case st.Fatal:
		// reported by Execute
	case st.Stale:
		mylog.Action("view_stale").Warn("Showing the last good snapshot", "error", errString(st.Err), "orders", len(st.Orders))
	case len(changes) > 0:
		mylog.Action("view_reconciled").Debug("View reconciled", "orders", len(st.Orders), "changes", len(changes))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")

	viewName := fs.String("view", "", "View to mount: "+strings.Join(viewNames(), ", "))
	token := fs.String("token", "", "Session token (default $"+tokenEnv+")")
	storeURL := fs.String("store-url", "http://localhost:3000", "Base URL of the order store")
	interval := fs.Duration("interval", 0, "Poll interval (0 uses the configured interval of the view)")
	status := fs.String("status", "", "Admin view: comma separated statuses to show")
	search := fs.String("search", "", "Admin view: free text search")

	if err := fs.Parse(args); err != nil {
		return nil, apperr.ErrParseCmd
	}

	if *showHelp {
		fs.Usage()
		return nil, apperr.ErrHelp
	}

	return &params{
		view:       *viewName,
		token:      *token,
		storeURL:   *storeURL,
		interval:   *interval,
		configPath: *configPath,
		status:     *status,
		search:     *search,
	}, nil
}

func validateParams(p *params, now time.Time) error {
	cfg, err := config.LoadConfig(p.configPath)
	if err != nil {
		return err
	}
	p.cfg = cfg

	kind, err := session.ParseView(p.view)
	if err != nil {
		return fmt.Errorf("--view: %w", err)
	}
	p.kind = kind

	if p.token == "" {
		p.token = os.Getenv(tokenEnv)
	}
	if p.token == "" {
		return fmt.Errorf("--token or %s: %w", tokenEnv, apperr.ErrFieldIsEmpty)
	}
	if cfg.Auth.JWTSecret != "" {
		p.sess, err = session.ParseToken(cfg.Auth.JWTSecret, p.token, now)
	} else {
		p.sess, err = session.ReadToken(p.token, now)
	}
	if err != nil {
		return err
	}

	if p.interval < 0 {
		return fmt.Errorf("--interval cannot be negative: %s", p.interval)
	}

	statuses, err := models.ParseStatuses(p.status)
	if err != nil {
		return fmt.Errorf("--status: %w", err)
	}
	p.filter = projector.Filter{Statuses: statuses, Search: strings.TrimSpace(p.search)}
	return nil
}

func viewNames() []string {
	var out []string
	for _, v := range session.Views() {
		out = append(out, string(v))
	}
	return out
}
