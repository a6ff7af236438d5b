package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"docnum/internal/app"
	"docnum/internal/core/numerator"
	"docnum/internal/infrastructure/storage/postgres"
)

var (
	auditFileFlag   string
	olderThanFlag   time.Duration
	purgeAllFlag    bool
	statusListLimit int
)

func init() {
	auditCmd.Flags().StringVar(&auditFileFlag, "file", "-", "file with one document number per line (- for stdin)")
	purgeCmd.Flags().DurationVar(&olderThanFlag, "older-than", 0, "purge numbers of every office released longer ago than this")
	purgeCmd.Flags().BoolVar(&purgeAllFlag, "all", false, "purge the whole pool of the given office")
	statusCmd.Flags().IntVar(&statusListLimit, "list", 0, "also list up to N recycled numbers per office")

	rootCmd.AddCommand(checkConfigCmd, migrateCmd, allocateCmd, releaseCmd,
		validateCmd, auditCmd, seedCmd, purgeCmd, statusCmd)
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration and office patterns without connecting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := app.BuildRegistry(cfg.Numbering)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "OFFICE\tTEMPLATE")
		for _, office := range registry.Offices() {
			tpl, _ := registry.TemplateFor(office)
			fmt.Fprintf(w, "%s\t%s\n", office, tpl)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d offices OK\n", len(registry.Offices()))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the numbering tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pool, err := postgres.NewPool(cmd.Context(), postgres.DefaultPoolConfig(cfg.Database.DSN))
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var allocateCmd = &cobra.Command{
	Use:   "allocate <office>",
	Short: "Allocate a document number without persisting a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			number, err := a.Allocator.Allocate(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), number)
			return nil
		})
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release <office> <number>",
	Short: "Return a number to the office's recycling pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Allocator.Release(ctx, args[0], args[1])
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <office> <number>",
	Short: "Check a number against the office pattern",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := app.BuildRegistry(cfg.Numbering)
		if err != nil {
			return err
		}
		ok, err := registry.Matches(args[0], args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s does not match the pattern of %s", args[1], args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), "valid")
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <office>",
	Short: "List historical numbers that do not match the office pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := app.BuildRegistry(cfg.Numbering)
		if err != nil {
			return err
		}
		tpl, err := registry.TemplateFor(args[0])
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if auditFileFlag != "-" {
			f, err := os.Open(auditFileFlag)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		numbers, err := readNumbers(in)
		if err != nil {
			return err
		}

		invalid := 0
		for _, n := range numbers {
			if !tpl.Matches(n) {
				invalid++
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d numbers do not match %s\n", invalid, len(numbers), tpl)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <office> <next>",
	Short: "Set the next sequence value of an office",
	Long: `Seed positions an office's counter so that the next minted number uses <next>.
Use it when migrating from a legacy numbering system. Counters never move
backwards: a value below the office's next value is refused.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || next < 1 {
			return fmt.Errorf("next must be a positive integer, got %q", args[1])
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if _, err := a.Registry.TemplateFor(args[0]); err != nil {
				return err
			}
			return a.Sequences.SetNext(ctx, args[0], next)
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge [office]",
	Short: "Drop recycled numbers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case olderThanFlag > 0 && len(args) == 0:
		case purgeAllFlag && len(args) == 1 && olderThanFlag == 0:
		default:
			return fmt.Errorf("use either --older-than <duration> or <office> --all")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var (
				n   int64
				err error
			)
			if olderThanFlag > 0 {
				n, err = a.Pool.PurgeOlderThan(ctx, time.Now(), olderThanFlag)
			} else {
				n, err = a.Pool.Purge(ctx, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d numbers\n", n)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sequence counters and recycling pool sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			states, err := a.Sequences.Snapshot(ctx)
			if err != nil {
				return err
			}
			current := make(map[string]int64, len(states))
			updated := make(map[string]time.Time, len(states))
			for _, s := range states {
				current[s.Office] = s.CurrentVal
				updated[s.Office] = s.UpdatedAt
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OFFICE\tCURRENT\tHEADROOM\tRECYCLED\tUPDATED")
			for _, office := range a.Registry.Offices() {
				tpl, err := a.Registry.TemplateFor(office)
				if err != nil {
					return err
				}
				size, err := a.Pool.Size(ctx, office)
				if err != nil {
					return err
				}
				last := "-"
				if t, ok := updated[office]; ok {
					last = t.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
					office, current[office], headroom(tpl, current[office]), size, last)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if statusListLimit <= 0 {
				return nil
			}
			for _, office := range a.Registry.Offices() {
				entries, err := a.Pool.List(ctx, office, statusListLimit)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", office, e.Number, e.ReleasedAt.UTC().Format(time.RFC3339))
				}
			}
			return nil
		})
	},
}

// headroom is how many more values the sequence run of t can render after
// current.
func headroom(t numerator.Template, current int64) int64 {
	if current >= t.MaxSequence() {
		return 0
	}
	return t.MaxSequence() - current
}

// readNumbers returns the non-blank lines of r, trimmed.
func readNumbers(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
