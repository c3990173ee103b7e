package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	In     io.Reader
	Out    io.Writer

	reader *bufio.Reader
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		In:     os.Stdin,
		Out:    os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Sign in with email and password, completing two-factor when asked",
			run:         runLogin,
		},
		"logout": {
			name:        "logout",
			description: "Sign out and clear the stored session",
			run:         runLogout,
		},
		"status": {
			name:        "status",
			description: "Restore the stored session and print its state",
			run:         runStatus,
		},
		"register": {
			name:        "register",
			description: "Create an account; confirm it with verify",
			run:         runRegister,
		},
		"verify": {
			name:        "verify",
			description: "Confirm a registered account with the emailed code",
			run:         runVerify,
		},
		"magic-link": {
			name:        "magic-link",
			description: "Request a sign-in link, or sign in with its token",
			run:         runMagicLink,
		},
		"reset-password": {
			name:        "reset-password",
			description: "Complete a password reset with the emailed token",
			run:         runResetPassword,
		},
		"2fa-status": {
			name:        "2fa-status",
			description: "Report whether two-factor is enabled for the signed-in account",
			run:         runTwoFactorStatus,
		},
		"health": {
			name:        "health",
			description: "Probe the backend once and print the coordinator status",
			run:         runHealth,
		},
		"watch": {
			name:        "watch",
			description: "Run the enabled components until interrupted",
			run:         runWatch,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: authsession <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

// openRuntime opens the state store and observability sinks and builds the client runtime.
// The returned func releases all of them.
func openRuntime(cmdCtx *commandContext) (*bootstrap.Runtime, func(), error) {
	cfg := cmdCtx.Config
	store, err := bootstrap.OpenStore(bootstrap.StoreDeps{
		Store:  cfg.Store,
		Redis:  cfg.Redis,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	obs := bootstrap.BuildObservability(cmdCtx.Logger, cfg.Observability)

	rt, err := bootstrap.NewRuntime(bootstrap.RuntimeDeps{
		Config:  &cfg,
		KV:      store.KV,
		Metrics: obs.Metrics(),
		Notices: obs.Notices,
		Logger:  cmdCtx.Logger,
	})
	if err != nil {
		closeQuietly(cmdCtx.Logger, "store", store.Close)
		closeQuietly(cmdCtx.Logger, "metrics", obs.Close)
		return nil, nil, err
	}

	cleanup := func() {
		rt.Close()
		closeQuietly(cmdCtx.Logger, "store", store.Close)
		closeQuietly(cmdCtx.Logger, "metrics", obs.Close)
	}
	return rt, cleanup, nil
}

func closeQuietly(logger *slog.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn("close failed", "resource", what, "error", err)
	}
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
