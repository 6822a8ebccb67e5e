package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/roomlist/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Processor     ProcessorConfig `mapstructure:"processor" yaml:"processor"`
	Metrics       MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Logging       LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ProcessorConfig controls the room list processor.
type ProcessorConfig struct {
	SubscriberDepth  int  `mapstructure:"subscriber_depth" yaml:"subscriber_depth"`
	BuildConcurrency int  `mapstructure:"build_concurrency" yaml:"build_concurrency"`
	LogRoomNames     bool `mapstructure:"log_room_names" yaml:"log_room_names"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// LoggingConfig controls diagnostic logging.
type LoggingConfig struct {
	TraceUpdates bool `mapstructure:"trace_updates" yaml:"trace_updates"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".roomlist", "state"),
		Processor: ProcessorConfig{
			SubscriberDepth:  schema.DefaultSubscriberDepth,
			BuildConcurrency: schema.DefaultBuildConcurrency,
		},
		Metrics: MetricsConfig{
			Namespace: "roomlist",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".roomlist", "config.yaml"), nil
}

// ProcessorSettings converts the file config into processor settings.
func (c Config) ProcessorSettings() schema.ProcessorConfig {
	return schema.NormalizeProcessorConfig(schema.ProcessorConfig{
		SubscriberDepth:  c.Processor.SubscriberDepth,
		BuildConcurrency: c.Processor.BuildConcurrency,
		LogRoomNames:     c.Processor.LogRoomNames,
		TraceUpdates:     c.Logging.TraceUpdates,
	})
}
