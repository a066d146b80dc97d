package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"danny/nn/internal/config"
	"danny/nn/internal/logging"
	"danny/nn/internal/store"
)

// DBFileName is the artifact database looked for when walking up from the CWD.
const DBFileName = ".danny.db"

var (
	dbPath     string
	configPath string
	logLevel   string
	logFormat  string

	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:           "danny",
	Short:         "Batch nearest neighbors over user-entity visit logs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return nil
	},
}

// Execute runs the root command. An interrupt cancels the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to .danny.db database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (default $DANNY_CONFIG or ./danny.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")
}

var errNoDB = errors.New("no .danny.db found (set DANNY_DB, use --db, or run from a directory containing .danny.db)")

// DiscoverDB finds the database path using priority: env > flag > config > walk-up > XDG fallback
func DiscoverDB() (string, error) {
	// 1. Environment variable
	if envPath := os.Getenv("DANNY_DB"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	// 2. CLI flag, then config file
	for _, explicit := range []string{dbPath, cfg.Store.Path} {
		if explicit == "" {
			continue
		}
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("database not found at %s", explicit)
	}

	// 3. Walk up from CWD
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, DBFileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// 4. XDG fallback
	if xdgPath, err := xdgDBPath(); err == nil {
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", errNoDB
}

func xdgDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "danny", "danny.db"), nil
}

// OpenDatabase discovers and opens the database
func OpenDatabase() (*store.Store, error) {
	path, err := DiscoverDB()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

// OpenOrCreateDatabase opens the discovered database, or creates one at the
// requested path (or .danny.db in the CWD) when none exists yet.
func OpenOrCreateDatabase() (*store.Store, error) {
	path, err := DiscoverDB()
	if errors.Is(err, errNoDB) {
		path = DBFileName
		err = nil
	}
	if err != nil {
		for _, explicit := range []string{dbPath, cfg.Store.Path} {
			if explicit != "" {
				path, err = explicit, nil
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}
	logging.Debug().Str("path", path).Msg("opening database")
	return store.Open(path)
}
