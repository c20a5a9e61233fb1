package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/minus-twelve/tablesess"
	"github.com/minus-twelve/tablesess/internal/logging"
	"github.com/minus-twelve/tablesess/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tablesessctl",
	Short: "Inspect and maintain a table-backed session store",
	Long: `tablesessctl works on the session table described by a YAML config file:
it counts, reads and deletes sessions, sweeps expired ones, and can run the
sweeper on a schedule with a metrics endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Commands run until they finish or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file (defaults to an in-memory table)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")
}

type env struct {
	cfg   types.Config
	log   *logrus.Logger
	store *tablesess.TableStore
}

func loadConfig(cmd *cobra.Command) (types.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return tablesess.DefaultConfig(), nil
	}
	return tablesess.LoadConfig(path)
}

// setup loads the config and builds the logger and store shared by every
// command. Extra observers are added next to the log observer.
func setup(ctx context.Context, cmd *cobra.Command, observers ...tablesess.Observer) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if f := cmd.Flags().Lookup("policy"); f != nil && f.Value.String() != "" {
		cfg.Sweep.Policy = f.Value.String()
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	if cfg.Log.Output == "" {
		log.SetOutput(cmd.ErrOrStderr())
	}

	observers = append([]tablesess.Observer{tablesess.NewLogObserver(log)}, observers...)
	store, err := tablesess.CreateStore(ctx, cfg, tablesess.WithObserver(tablesess.MultiObserver(observers...)))
	if err != nil {
		return nil, fmt.Errorf("open %s session table: %w", cfg.Backend, err)
	}

	log.WithFields(logrus.Fields{
		"backend":   cfg.Backend,
		"table":     cfg.TableName,
		"partition": cfg.PartitionKey,
	}).Debug("session store ready")
	return &env{cfg: cfg, log: log, store: store}, nil
}
