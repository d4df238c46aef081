// Package commands implements the quorum CLI command handlers.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/0Ankit0-0/quorum/internal/config"
	"github.com/0Ankit0-0/quorum/internal/node"
	"github.com/0Ankit0-0/quorum/internal/observability"
	"github.com/0Ankit0-0/quorum/internal/store"
	"github.com/0Ankit0-0/quorum/pkg/version"
)

// App bundles the shared runtime every command needs: config, logging,
// metrics, the local store, and the node identity.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Store   *store.Store
	NodeID  string
}

// OpenApp loads configuration, resolves the node identity, and opens the
// local database. Callers must Close.
func OpenApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	err = cfg.EnsureDirs()
	if err != nil {
		return nil, err
	}

	nodeID, err := node.LoadOrCreateID(cfg.NodeIDPath())
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.App.Name, nodeID, cfg.Logging.Level, cfg.Logging.Format)

	st, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Store:   st,
		NodeID:  nodeID,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	err := a.Store.Close()
	if err != nil {
		a.Logger.Warn("closing store", "error", err)
	}
}

// Hostname is the local hostname, or a placeholder when unavailable.
func Hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}

	return name
}

// AppVersion is the CLI build identity.
func AppVersion() string {
	return version.Version
}

// readKey loads a PEM key file.
func readKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}

	return data, nil
}
