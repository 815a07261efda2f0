package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Runner is implemented by App; commands only parse flags and delegate
type Runner interface {
	LoadConfig(path string) error
	RunSimulate(opts SimulateOptions) error
	RunReplay(opts ReplayOptions) error
	RunServe(opts ServeOptions) error
}

// SimulateOptions are the flags of the simulate command
type SimulateOptions struct {
	Steps     int
	Particles int
	Seed      int64
	Output    string
	Plot      bool
}

// ReplayOptions are the flags of the replay command
type ReplayOptions struct {
	Source    string // file path or http(s) URL
	Particles int
	Seed      int64
	Limit     int
	Output    string
	Plot      bool
}

// ServeOptions are the flags of the serve command
type ServeOptions struct {
	HTTPPort int
	NoMQTT   bool
}

func main() {
	if err := newRootCmd(NewApp(), os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(app Runner, out io.Writer) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "fastslam",
		Short:         "FastSLAM particle filter for 2D laser scans",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return app.LoadConfig(configFile)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml); defaults are used when empty")

	var sim SimulateOptions
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "drive a simulated robot through a room and map it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunSimulate(sim)
		},
	}
	simulateCmd.Flags().IntVar(&sim.Steps, "steps", 200, "filter cycles to run")
	simulateCmd.Flags().IntVar(&sim.Particles, "particles", 0, "override filter.numParticles")
	simulateCmd.Flags().Int64Var(&sim.Seed, "seed", 0, "override filter.seed")
	simulateCmd.Flags().StringVar(&sim.Output, "output", "", "write the final map (.png, .svg or .geojson)")
	simulateCmd.Flags().BoolVar(&sim.Plot, "plot", true, "plot Neff history in the terminal")

	var replay ReplayOptions
	replayCmd := &cobra.Command{
		Use:   "replay [dataset]",
		Short: "run the filter over a recorded dataset (file or URL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replay.Source = args[0]
			return app.RunReplay(replay)
		},
	}
	replayCmd.Flags().IntVar(&replay.Particles, "particles", 0, "override filter.numParticles")
	replayCmd.Flags().Int64Var(&replay.Seed, "seed", 0, "override filter.seed")
	replayCmd.Flags().IntVar(&replay.Limit, "limit", 0, "process at most this many records (0 = all)")
	replayCmd.Flags().StringVar(&replay.Output, "output", "", "write the final map (.png, .svg or .geojson)")
	replayCmd.Flags().BoolVar(&replay.Plot, "plot", true, "plot Neff history in the terminal")

	var serve ServeOptions
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "consume scans over MQTT, publish poses and serve the map over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunServe(serve)
		},
	}
	serveCmd.Flags().IntVar(&serve.HTTPPort, "http-port", 0, "override http.port")
	serveCmd.Flags().BoolVar(&serve.NoMQTT, "no-mqtt", false, "do not connect to MQTT")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fastslam version: %s\n", Version)
		},
	}

	rootCmd.AddCommand(simulateCmd, replayCmd, serveCmd, versionCmd)
	return rootCmd
}
