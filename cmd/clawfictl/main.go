// clawfictl is the operator CLI for the clawfi signal engine.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/gniumg-source/clawfi-g-sub001/internal/app"
	"github.com/gniumg-source/clawfi-g-sub001/internal/cache/memory"
	"github.com/gniumg-source/clawfi-g-sub001/internal/cache/redis"
	"github.com/gniumg-source/clawfi-g-sub001/internal/config"
	"github.com/gniumg-source/clawfi-g-sub001/internal/discovery"
	"github.com/gniumg-source/clawfi-g-sub001/internal/ingest"
	"github.com/gniumg-source/clawfi-g-sub001/internal/pipeline"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "clawfictl",
		Short:         "Operate the clawfi signal engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(emitCmd())
	rootCmd.AddCommand(resnapshotCmd())
	rootCmd.AddCommand(archiveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func logger() *slog.Logger {
	lvl := slog.LevelWarn
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print it with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			redacted := config.RedactedConfig(cfg)
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(redacted)
		},
	})
	return cmd
}

// localEngine builds a discovery engine that needs no database or Redis.
func localEngine(cfg *config.Config) *discovery.Engine {
	deps := &app.Dependencies{
		CandidateCache: memory.NewCandidateCache(),
		Cooldowns:      memory.NewCooldownStore(time.Now),
	}
	return app.NewEngine(cfg, deps, logger())
}

func scanCmd() *cobra.Command {
	var (
		chains string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one discovery scan and print qualifying tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var list []string
			for _, c := range strings.Split(chains, ",") {
				if c = strings.TrimSpace(c); c != "" {
					list = append(list, c)
				}
			}
			evals, err := localEngine(cfg).Scan(cmd.Context(), discovery.ScanOptions{Chains: list, Limit: limit})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), evals)
		},
	}
	cmd.Flags().StringVar(&chains, "chains", "", "comma-separated chains (default: configured chains)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default: configured scan limit)")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var chain string
	cmd := &cobra.Command{
		Use:   "analyze <address>",
		Short: "Evaluate one token against the discovery gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ev, err := localEngine(cfg).AnalyzeToken(cmd.Context(), args[0], chain)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ev)
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "", "chain id, e.g. base or solana")
	return cmd
}

func emitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emit [file]",
		Short: "Validate newline-delimited events and append them to the ingest stream",
		Long: `Reads one JSON event per line from file (or stdin) and appends each valid
event to the Redis stream the detector consumes. Invalid lines are reported
and skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled {
				return errors.New("emit needs redis.enabled")
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			ctx := cmd.Context()
			rc, err := redis.New(ctx, redis.ClientConfig{
				URL:        cfg.Redis.URL,
				Addr:       cfg.Redis.Addr,
				Password:   cfg.Redis.Password,
				DB:         cfg.Redis.DB,
				PoolSize:   1,
				TLSEnabled: cfg.Redis.TLSEnabled,
			})
			if err != nil {
				return err
			}
			defer rc.Close()
			bus := redis.NewSignalBusWithMaxLen(rc, cfg.Redis.StreamMax)

			sc := bufio.NewScanner(in)
			sent, skipped, line := 0, 0, 0
			for sc.Scan() {
				line++
				raw := strings.TrimSpace(sc.Text())
				if raw == "" {
					continue
				}
				if _, err := ingest.Decode([]byte(raw)); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", line, err)
					skipped++
					continue
				}
				if err := bus.StreamAppend(ctx, cfg.Ingest.Stream, []byte(raw)); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				sent++
			}
			if err := sc.Err(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appended %d events to %s (%d skipped)\n", sent, cfg.Ingest.Stream, skipped)
			return nil
		},
	}
}

// withDeps wires the full backend set for commands that touch stored state.
func withDeps(ctx context.Context, fn func(cfg *config.Config, deps *app.Dependencies) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	deps, cleanup, err := app.Wire(ctx, cfg, logger())
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(cfg, deps)
}

func resnapshotCmd() *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:   "resnapshot",
		Short: "Reset molt baselines to current holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(cfg *config.Config, deps *app.Dependencies) error {
				n, err := app.NewDetector(cfg, deps, nil, logger()).ResnapshotBaselines(cmd.Context(), wallet)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "re-baselined %d positions\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "limit to one wallet (default: all)")
	return cmd
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Archive acknowledged signals past the retention window now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(cfg *config.Config, deps *app.Dependencies) error {
				if deps.Archiver == nil {
					return errors.New("archive.enabled is false")
				}
				arch := pipeline.NewArchiver(deps.Archiver, cfg.Archive.RetentionDays, logger())
				orch := pipeline.NewOrchestrator(deps.LockManager, 30*time.Minute, logger(), arch.Job(cfg.Archive.Cron))
				return orch.RunNamed(cmd.Context(), "archive-signals")
			})
		},
	}
}
