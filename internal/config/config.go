// Package config loads vescnode settings from a file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NodeConfig identifies the node on the bus.
type NodeConfig struct {
	Address       uint8         `mapstructure:"address"`
	Bitrate       uint32        `mapstructure:"bitrate"`
	RemoteEnable  bool          `mapstructure:"remoteEnable"`
	Firmware      string        `mapstructure:"firmware"`
	ControlPeriod time.Duration `mapstructure:"controlPeriod"`
}

// Transport kinds.
const (
	TransportSocketCAN = "socketcan"
	TransportSLCAN     = "slcan"
	TransportLoopback  = "loopback"
)

// TransportConfig selects and tunes the CAN interface.
type TransportConfig struct {
	Kind               string `mapstructure:"kind"`
	Interface          string `mapstructure:"interface"`
	ConfigureInterface bool   `mapstructure:"configureInterface"`
	SerialDevice       string `mapstructure:"serialDevice"`
	SerialBaud         int    `mapstructure:"serialBaud"`
	QueueDepth         int    `mapstructure:"queueDepth"`
	LogFrames          bool   `mapstructure:"logFrames"`
}

// MotorConfig parameterizes the simulated motor.
type MotorConfig struct {
	CurrentLimit float64 `mapstructure:"currentLimit"`
	BusVoltage   float64 `mapstructure:"busVoltage"`
}

// LumberjackConfig controls log file rotation. An empty Filename disables
// the file output.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig selects level, format and outputs.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// Config is the full vescnode configuration.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Transport TransportConfig `mapstructure:"transport"`
	Motor     MotorConfig     `mapstructure:"motor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// Load reads configuration from path (YAML, TOML or JSON) and the
// environment. Environment variables use the VESCNODE_ prefix with dots
// replaced by underscores, e.g. VESCNODE_NODE_ADDRESS. An empty path falls
// back to VESCNODE_CONFIG, then to ./vescnode.yaml or ./configs/vescnode.yaml;
// a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("VESCNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("vescnode")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.address", 0x0A)
	v.SetDefault("node.bitrate", 500000)
	v.SetDefault("node.remoteEnable", false)
	v.SetDefault("node.firmware", "6.2.0")
	v.SetDefault("node.controlPeriod", "1ms")

	v.SetDefault("transport.kind", TransportSocketCAN)
	v.SetDefault("transport.interface", "can0")
	v.SetDefault("transport.configureInterface", false)
	v.SetDefault("transport.serialDevice", "/dev/ttyACM0")
	v.SetDefault("transport.serialBaud", 115200)
	v.SetDefault("transport.queueDepth", 64)
	v.SetDefault("transport.logFrames", false)

	v.SetDefault("motor.currentLimit", 10.0)
	v.SetDefault("motor.busVoltage", 24.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9102")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks values that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportSocketCAN, TransportSLCAN, TransportLoopback:
	default:
		return fmt.Errorf("config: unknown transport kind %q", c.Transport.Kind)
	}
	if c.Node.ControlPeriod <= 0 {
		return fmt.Errorf("config: node.controlPeriod must be positive, got %s", c.Node.ControlPeriod)
	}
	if c.Motor.CurrentLimit <= 0 {
		return fmt.Errorf("config: motor.currentLimit must be positive, got %v", c.Motor.CurrentLimit)
	}
	return nil
}
