package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"irrigation-go-home/internal/caddy"
	"irrigation-go-home/internal/coordinator"
	"irrigation-go-home/internal/discovery"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// app is the state shared by all subcommands, filled in before each run.
type app struct {
	cfgFile      string
	logLevel     string
	outputFormat string
	debug        bool

	cfg       *Config
	logger    *slog.Logger
	formatter Formatter
	newDevice discovery.Factory
	scanner   coordinator.Scanner
}

func main() {
	root := newRootCmd(&app{})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "irrigation-home",
		Short: "Discover, inspect and manage IrrigationCaddy controllers",
		Long: `irrigation-home finds IrrigationCaddy controllers on the local network,
reads their clock, status, calendar and programs, and pushes clock, NTP and
zone name changes. The serve command runs the long-lived service with the
REST API, MQTT bridge and Lua automations.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "config.yaml", "config file; defaults apply when the default file is missing")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&a.outputFormat, "output", "o", "table", "output format: table, json, yaml")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "dump every controller HTTP exchange to stderr")

	root.AddCommand(
		newScanCmd(a),
		newReportCmd(a),
		newStatusCmd(a),
		newBootTimeCmd(a),
		newTimeCmd(a),
		newCalendarCmd(a),
		newProgramCmd(a),
		newZonesCmd(a),
		newSetClockCmd(a),
		newSetNTPCmd(a),
		newSetZonesCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads the config, builds the logger and the device factory.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.cfgFile)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = defaultConfig()
	case err != nil:
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	// Command output owns stdout; only the service logs there.
	logOut := cmd.ErrOrStderr()
	if cmd.Name() == "serve" {
		logOut = cmd.OutOrStdout()
	}
	a.logger = newLogger(cfg, logOut)
	slog.SetDefault(a.logger)

	a.formatter = NewFormatter(a.outputFormat)

	if a.newDevice == nil {
		opts := []caddy.Option{
			caddy.WithTimeouts(cfg.Discovery.ConnectTimeout, cfg.Discovery.ReadTimeout),
			caddy.WithLogger(a.logger),
		}
		if a.debug {
			opts = append(opts, caddy.WithDebug(cmd.ErrOrStderr()))
		}
		a.newDevice = func(addr string) caddy.Device {
			return caddy.New(addr, opts...)
		}
	}
	if a.scanner == nil {
		a.scanner = discovery.New(
			discovery.WithFactory(a.newDevice),
			discovery.WithConcurrency(cfg.Discovery.Concurrency),
			discovery.WithLogger(a.logger),
		)
	}
	return nil
}

// print writes v to the command's stdout using the selected format.
func (a *app) print(cmd *cobra.Command, v any) {
	fmt.Fprint(cmd.OutOrStdout(), a.formatter.Format(v))
}

// device validates addr and returns a handle for it.
func (a *app) device(addr string) (caddy.Device, error) {
	addr, err := coordinator.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return a.newDevice(addr), nil
}
