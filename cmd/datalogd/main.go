// Command datalogd is the CLI wrapping the evaluation engine: `run`
// evaluates a program against a data directory and prints its declared
// outputs, `serve` starts the HTTP query surface, `query` reads a
// relation back from a running server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfg        Config
	logger     *slog.Logger
	configPath string
	explain    bool
)

func main() {
	root := &cobra.Command{
		Use:   "datalogd",
		Short: "Evaluate stratified Datalog programs",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			loaded, err := LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = loaded
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "datalog.yaml", "path to run configuration file")
	root.PersistentFlags().BoolVar(&explain, "explain", false, "print the compiled join plan for every rule")

	root.AddCommand(newRunCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newQueryCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
