// Command numctl administers document number allocation: it validates
// configuration, applies migrations, seeds sequences and manages the
// recycling pool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docnum/internal/app"
	"docnum/internal/config"
	appctx "docnum/internal/core/context"
	"docnum/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "numctl",
	Short: "Administer case-law document numbering",
	Long: `numctl manages the document number allocator.

Configuration is read from --config (or DOCNUM_CONFIG) and DOCNUM_* environment
variables, the same way the server and worker read it.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", os.Getenv("DOCNUM_CONFIG"), "path to the YAML configuration file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFlag)
}

// commandContext carries the logger and a fresh trace, so every log line of
// one invocation shares a request ID.
func commandContext(parent context.Context, log *logger.Logger) context.Context {
	ctx := logger.WithLogger(parent, log)
	return appctx.WithTrace(ctx, appctx.NewTraceContext())
}

// withApp connects to the stores for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := commandContext(cmd.Context(), log)
	a, err := app.New(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
