package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Veraticus/idlewatch/pkg/config"
)

var (
	cfgFile string

	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   "idlewatch",
	Short: "Idle-aware stopwatch driven by an activity sensor",
	Long: `idlewatch supervises a platform activity sensor, counts the time the
user is actively working and surfaces sensor failures as they happen.

Running idlewatch without a subcommand is the same as "idlewatch run".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMonitor,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the supervisor and read start/stop/restart/status/quit from stdin",
	Args:  cobra.NoArgs,
	RunE:  runMonitor,
}

// Execute adds all child commands to the root command and runs it.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed).Sprint("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file")

	config.BindFlags(rootCmd.Flags())
	config.BindFlags(runCmd.Flags())

	rootCmd.AddCommand(runCmd)
}

// loadConfig reads the file and environment configuration and applies the
// flags the user set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps, err := NewDependencies(cfg)
	if err != nil {
		return fmt.Errorf("creating dependencies: %w", err)
	}
	defer deps.Close()

	app := NewApplication(deps)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps.Logger.Debug("starting",
		"version", buildVersion,
		"sensor_pty", cfg.Sensor.PTY,
		"threshold", cfg.IdleThreshold,
		"listen", cfg.Listen,
	)

	return app.Run(ctx, os.Stdin, cmd.OutOrStdout())
}
