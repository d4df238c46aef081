// Package config provides configuration loading and validation for Quorum.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidThreshold     = errors.New("anomaly threshold must be in (0,1]")
	ErrInvalidContamination = errors.New("contamination must be in (0,0.5]")
	ErrInvalidBatchSize     = errors.New("batch size must be positive")
	ErrInvalidWorkers       = errors.New("max workers must be positive")
)

// Default configuration values.
const (
	defaultAnomalyThreshold       = 0.70
	defaultContamination          = 0.05
	defaultRandomSeed             = 42
	defaultSVMMaxSamples          = 10000
	defaultLargeDatasetThreshold  = 100000
	defaultChunkSize              = 10000
	defaultBatchSize              = 10000
	defaultMaxWorkers             = 4
	defaultTailerPollIntervalMS   = 500
	defaultTailerQueueSize        = 1024
	defaultStreamPersistThreshold = 0.55
)

// Config holds all configuration for Quorum.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	AI      AIConfig      `mapstructure:"ai"`
	Tailer  TailerConfig  `mapstructure:"tailer"`
	Logging LoggingConfig `mapstructure:"logging"`
	Hub     HubConfig     `mapstructure:"hub"`
}

// AppConfig holds application-wide settings and data paths.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	DataDir string `mapstructure:"data_dir"`
	Debug   bool   `mapstructure:"debug"`
}

// AIConfig holds detection engine settings.
type AIConfig struct {
	AnomalyThreshold      float64 `mapstructure:"anomaly_threshold"`
	Contamination         float64 `mapstructure:"contamination"`
	RandomSeed            int64   `mapstructure:"random_seed"`
	SVMMaxSamples         int     `mapstructure:"svm_max_samples"`
	LargeDatasetThreshold int     `mapstructure:"large_dataset_threshold"`
	ChunkSize             int     `mapstructure:"chunk_size"`
	BatchSize             int     `mapstructure:"batch_size"`
	MaxWorkers            int     `mapstructure:"max_workers"`
}

// TailerConfig holds real-time monitoring settings.
type TailerConfig struct {
	PollIntervalMS   int     `mapstructure:"poll_interval_ms"`
	QueueSize        int     `mapstructure:"queue_size"`
	PersistThreshold float64 `mapstructure:"persist_threshold"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HubConfig holds node identity and sync settings.
type HubConfig struct {
	Role           string `mapstructure:"role"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
	PublicKeyFile  string `mapstructure:"public_key_file"`
}

// Load reads configuration from an optional file plus QUORUM_* and legacy
// AI_* environment variables.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/quorum")
	}

	viperCfg.SetEnvPrefix("QUORUM")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindLegacyEnv(viperCfg)

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validate(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// bindLegacyEnv keeps the unprefixed AI_* environment variables working; the
// detection engine has always been tuned through them.
func bindLegacyEnv(viperCfg *viper.Viper) {
	legacy := map[string]string{
		"ai.anomaly_threshold":       "AI_ANOMALY_THRESHOLD",
		"ai.contamination":           "AI_CONTAMINATION",
		"ai.random_seed":             "AI_RANDOM_SEED",
		"ai.svm_max_samples":         "AI_SVM_MAX_SAMPLES",
		"ai.large_dataset_threshold": "AI_LARGE_DATASET_THRESHOLD",
	}

	for key, env := range legacy {
		if value := os.Getenv(env); value != "" {
			viperCfg.Set(key, value)
		}
	}
}

func setDefaults(viperCfg *viper.Viper) {
	// App defaults.
	viperCfg.SetDefault("app.name", "quorum")
	viperCfg.SetDefault("app.version", "1.0.0")
	viperCfg.SetDefault("app.data_dir", defaultDataDir())
	viperCfg.SetDefault("app.debug", false)

	// AI defaults.
	viperCfg.SetDefault("ai.anomaly_threshold", defaultAnomalyThreshold)
	viperCfg.SetDefault("ai.contamination", defaultContamination)
	viperCfg.SetDefault("ai.random_seed", defaultRandomSeed)
	viperCfg.SetDefault("ai.svm_max_samples", defaultSVMMaxSamples)
	viperCfg.SetDefault("ai.large_dataset_threshold", defaultLargeDatasetThreshold)
	viperCfg.SetDefault("ai.chunk_size", defaultChunkSize)
	viperCfg.SetDefault("ai.batch_size", defaultBatchSize)
	viperCfg.SetDefault("ai.max_workers", defaultMaxWorkers)

	// Tailer defaults.
	viperCfg.SetDefault("tailer.poll_interval_ms", defaultTailerPollIntervalMS)
	viperCfg.SetDefault("tailer.queue_size", defaultTailerQueueSize)
	viperCfg.SetDefault("tailer.persist_threshold", defaultStreamPersistThreshold)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")

	// Hub defaults.
	viperCfg.SetDefault("hub.role", "terminal")
	viperCfg.SetDefault("hub.private_key_file", "private_key.pem")
	viperCfg.SetDefault("hub.public_key_file", "public_key.pem")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".quorum")
}

func validate(config *Config) error {
	if config.AI.AnomalyThreshold <= 0 || config.AI.AnomalyThreshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, config.AI.AnomalyThreshold)
	}

	if config.AI.Contamination <= 0 || config.AI.Contamination > 0.5 {
		return fmt.Errorf("%w: %v", ErrInvalidContamination, config.AI.Contamination)
	}

	if config.AI.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, config.AI.BatchSize)
	}

	if config.AI.MaxWorkers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.AI.MaxWorkers)
	}

	// A non-positive sampling cap means "use the default", not a hard error.
	if config.AI.SVMMaxSamples <= 0 {
		config.AI.SVMMaxSamples = defaultSVMMaxSamples
	}

	return nil
}

// DatabasePath returns the sqlite database file path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.App.DataDir, "databases", "quorum.db")
}

// ModelsDir returns the trained model directory.
func (c *Config) ModelsDir() string {
	return filepath.Join(c.App.DataDir, "models")
}

// KeysDir returns the signing key directory.
func (c *Config) KeysDir() string {
	return filepath.Join(c.App.DataDir, "keys")
}

// PrivateKeyPath returns the signing private key path.
func (c *Config) PrivateKeyPath() string {
	return filepath.Join(c.KeysDir(), c.Hub.PrivateKeyFile)
}

// PublicKeyPath returns the verification public key path.
func (c *Config) PublicKeyPath() string {
	return filepath.Join(c.KeysDir(), c.Hub.PublicKeyFile)
}

// MitreDir returns the ATT&CK data directory.
func (c *Config) MitreDir() string {
	return filepath.Join(c.App.DataDir, "mitre_attack")
}

// NodeIDPath returns the node identity file path.
func (c *Config) NodeIDPath() string {
	return filepath.Join(c.App.DataDir, "node_id")
}

// UpdatesDir returns the offline update staging directory.
func (c *Config) UpdatesDir() string {
	return filepath.Join(c.App.DataDir, "updates")
}

// EnsureDirs creates the data directory tree.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		filepath.Dir(c.DatabasePath()),
		c.ModelsDir(),
		c.KeysDir(),
		c.MitreDir(),
		c.UpdatesDir(),
	}

	for _, dir := range dirs {
		err := os.MkdirAll(dir, 0o750)
		if err != nil {
			return fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}

	return nil
}
