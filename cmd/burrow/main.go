package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/manager"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - write-optimized encrypted document store",
	Long: `Burrow stores JSON documents addressed by paths such as
company/<id>/channel/<id>/message/<id>.

Writes are appended to a durable task store and acknowledged at once;
a projector applies them to the materialized views in the background.
Reads catch up on pending writes of their collection first.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
			Output:     os.Stderr,
		})
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "YAML config file")
	flags.String("env-file", "", "dotenv file with BURROW_* overrides")
	flags.String("data-dir", "", "Data directory (overrides config)")
	flags.String("backend", "", "Storage backend: bolt or pebble (overrides config)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fastForwardCmd)
	rootCmd.AddCommand(docCmd)
}

// loadConfig layers flags over the config file, dotenv file and environment
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if cmd.Flags().Changed("api-addr") {
		cfg.API.Addr, _ = cmd.Flags().GetString("api-addr")
	}
	if cmd.Flags().Changed("read-only") {
		cfg.API.ReadOnly, _ = cmd.Flags().GetBool("read-only")
	}
	return cfg, nil
}

func openManager(cmd *cobra.Command) (*manager.Manager, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := manager.NewManager(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create manager: %w", err)
	}
	return mgr, cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document store",
	Long: `Run the projector, the recovery sweep and the HTTP API until
interrupted. Tasks left in the task store by a previous run are
re-triggered at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cfg, err := openManager(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		metrics.Health().SetVersion(Version)
		if err := mgr.Start(ctx); err != nil {
			_ = mgr.Shutdown()
			return err
		}

		var recon *reconciler.Reconciler
		if cfg.Reconciler.Enabled {
			recon, err = reconciler.NewReconciler(mgr, cfg.Reconciler.Schedule)
			if err != nil {
				_ = mgr.Shutdown()
				return err
			}
			recon.Start(ctx)
		}

		apiServer := api.NewServer(mgr, api.Config{
			Addr:        cfg.API.Addr,
			MaxBodySize: cfg.API.MaxBodySize.Int64(),
			ReadOnly:    cfg.API.ReadOnly,
		})
		errCh := make(chan error, 1)
		go func() {
			errCh <- apiServer.Start()
		}()

		log.Logger.Info().Str("addr", cfg.API.Addr).Str("version", Version).Msg("Burrow is running")

		select {
		case <-ctx.Done():
			log.Info("Shutting down")
		case err = <-errCh:
			log.Errorf("API server stopped", err)
		}

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if serr := apiServer.Stop(stopCtx); serr != nil {
			log.Errorf("API server shutdown", serr)
		}
		if recon != nil {
			recon.Stop()
		}
		if serr := mgr.Shutdown(); serr != nil {
			return fmt.Errorf("failed to shutdown: %w", serr)
		}
		return err
	},
}

var fastForwardCmd = &cobra.Command{
	Use:   "fast-forward",
	Short: "Project every pending task of the task store",
	Long: `Drain the task store synchronously against a stopped data directory.
Useful after a crash or before taking a copy of the views.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, err := openManager(cmd)
		if err != nil {
			return err
		}

		n, err := mgr.Drain(cmd.Context())
		if serr := mgr.Shutdown(); serr != nil {
			err = errors.Join(err, serr)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Drained %d path(s)\n", n)
		return nil
	},
}

func init() {
	serveCmd.Flags().String("api-addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().Bool("read-only", false, "Reject writes on the HTTP API")
}
