package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/cli"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/observability"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(openEnv, os.Stdout)
	if err := root.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openEnv connects with the server's configuration; logs go to stderr so
// stdout stays parseable
func openEnv(ctx context.Context) (*cli.Env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.Observability.Level(), os.Stderr).
		WithField("service", "warden-admin")

	a, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		return nil, err
	}

	env := &cli.Env{
		Sync:        a.Sync,
		Audit:       a.Audit,
		Retention:   cfg.Audit.Retention(),
		AuditWriter: a.AuditStore,
		Close:       a.Close,
	}
	if a.DeadLetter != nil {
		env.DeadLetter = a.DeadLetter
	}
	return env, nil
}
