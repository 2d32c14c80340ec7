// Command lvq trains and evaluates learning vector quantization classifiers.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/mimir-aip/mimir-lvq/pkg/config"
	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/metadatastore"
	"github.com/mimir-aip/mimir-lvq/pkg/mlmodel"
)

func main() {
	app := &commander.Command{
		UsageLine: filepath.Base(os.Args[0]),
		Short:     "learning vector quantization trainer",
		Subcommands: []*commander.Command{
			trainCmd(),
			scheduleCmd(),
			runsCmd(),
			recommendCmd(),
		},
		Flag: *flag.NewFlagSet("lvq", flag.ExitOnError),
	}

	if err := app.Dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "**err**: %v\n", err)
		os.Exit(1)
	}
}

// environment bundles the services every subcommand needs
type environment struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *metadatastore.SQLiteStore
	service *mlmodel.Service
}

// setup loads the env configuration and opens the run store. storeDir overrides STORAGE_DIR.
func setup(storeDir string) (*environment, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if storeDir != "" {
		cfg.StorageDir = storeDir
	}

	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	dbPath := filepath.Join(cfg.StorageDir, "runs.db")
	store, err := metadatastore.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
	}
	logger.Debug("Initialized SQLite storage", logging.String("path", dbPath), logging.String("environment", cfg.Environment))

	return &environment{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		service: mlmodel.NewService(store, logger),
	}, nil
}

func (e *environment) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("Failed to close storage", err)
	}
}

// loadRun reads the run definition, or the iris defaults when path is empty
func loadRun(path string) (*config.RunFile, error) {
	if path == "" {
		return config.DefaultRunFile(), nil
	}
	return config.LoadRunFile(path)
}
