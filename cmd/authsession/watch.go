package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/bootstrap"
	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/health"
)

var errBackendUnreachable = errors.New("backend unreachable")

type watchOptions struct {
	Components string
}

func runHealth(cmdCtx *commandContext, _ []string) error {
	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		online := rt.Coordinator.ForceCheck(ctx)
		if err := printHealth(cmdCtx, rt.Coordinator.Status()); err != nil {
			return err
		}
		if !online {
			return errBackendUnreachable
		}
		return nil
	})
}

func printHealth(cmdCtx *commandContext, st health.Status) error {
	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "ONLINE\t%t\n", st.IsOnline); err != nil {
		return fmt.Errorf("print health: %w", err)
	}
	if !st.LastCheckTime.IsZero() {
		if _, err := fmt.Fprintf(tw, "CHECKED\t%s\n", st.LastCheckTime.Local().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("print health: %w", err)
		}
	}
	if st.ConsecutiveFailures > 0 {
		if _, err := fmt.Fprintf(tw, "FAILURES\t%d\n", st.ConsecutiveFailures); err != nil {
			return fmt.Errorf("print health: %w", err)
		}
	}
	if st.LastErrorType != "" {
		if _, err := fmt.Fprintf(tw, "ERROR\t%s\n", st.LastErrorType); err != nil {
			return fmt.Errorf("print health: %w", err)
		}
	}
	if !st.RateLimitedUntil.IsZero() {
		if _, err := fmt.Fprintf(tw, "RATE LIMITED UNTIL\t%s\n",
			st.RateLimitedUntil.Local().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("print health: %w", err)
		}
	}
	return tw.Flush()
}

// runWatch keeps the client stack alive: session refresh, health checks and recovery run
// until SIGINT or SIGTERM.
func runWatch(cmdCtx *commandContext, args []string) error {
	opts, err := parseWatchFlags(args)
	if err != nil {
		return err
	}
	cfg := cmdCtx.Config
	if opts.Components != "" {
		cfg.Components = opts.Components
	}
	if validateErr := bootstrap.ValidateComponentConfig(&cfg); validateErr != nil {
		return validateErr
	}
	components, err := cfg.GetEnabledComponents()
	if err != nil {
		return err
	}
	cmdCtx.Config = cfg

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, cleanup, err := openRuntime(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	unsubscribe := rt.Sessions.Subscribe(func(s domainauth.Session) {
		cmdCtx.Logger.Info("session changed", "status", string(s.Status), "error", s.Error)
	})
	defer unsubscribe()

	cmdCtx.Logger.InfoContext(ctx, "starting authsession watch",
		"api", cfg.API.BaseURL,
		"store", string(cfg.Store.Backend),
		"components", bootstrap.GetEnabledComponents(&cfg))

	return rt.Run(ctx, components)
}

func parseWatchFlags(args []string) (watchOptions, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts watchOptions
	fs.StringVar(&opts.Components, "components", "",
		"Comma-separated components to run (default: $WATCH_COMPONENTS); one of "+componentNames())
	if err := fs.Parse(args); err != nil {
		return watchOptions{}, err
	}
	opts.Components = strings.TrimSpace(opts.Components)
	return opts, nil
}

func componentNames() string {
	names := make([]string, 0, len(config.ValidComponents()))
	for _, c := range config.ValidComponents() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
