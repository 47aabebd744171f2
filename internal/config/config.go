package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eja/tazlink/internal/logger"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TAZLINK_BACKEND_NAME.
const EnvPrefix = "TAZLINK"

// Config represents the tazlink configuration
type Config struct {
	Backend Backend       `mapstructure:"backend"`
	Hotspot Hotspot       `mapstructure:"hotspot"`
	BLE     BLE           `mapstructure:"ble"`
	Scan    Scan          `mapstructure:"scan"`
	Log     logger.Config `mapstructure:"log"`
}

// Backend describes the supervised backend executable
type Backend struct {
	Binary   string `mapstructure:"binary"`
	URL      string `mapstructure:"url"` // download location used when the binary is missing
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`
	Public   *bool  `mapstructure:"public"`
}

// IsPublic returns whether the backend listens on every interface.
// Defaults to true when not explicitly set.
func (b *Backend) IsPublic() bool {
	if b.Public == nil {
		return true
	}
	return *b.Public
}

// Hotspot contains access point settings
type Hotspot struct {
	Interface   string        `mapstructure:"interface"`
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// BLE contains credential channel settings
type BLE struct {
	Enabled    *bool  `mapstructure:"enabled"`
	DeviceName string `mapstructure:"device_name"`
}

// IsEnabled returns whether the credential channel is used.
// Defaults to true when not explicitly set.
func (b *BLE) IsEnabled() bool {
	if b.Enabled == nil {
		return true
	}
	return *b.Enabled
}

// Scan contains subnet scan settings
type Scan struct {
	Workers int           `mapstructure:"workers"`
	Budget  time.Duration `mapstructure:"budget"`
}

// Load loads the configuration from ~/.tazlink/config.yaml or returns defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads the configuration from path, or from the default location
// when path is empty. A missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	// A .env in the working directory feeds TAZLINK_* overrides
	_ = godotenv.Load()

	viper.Reset()
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		configDir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Try to read config file, but don't fail if it doesn't exist
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Backend.Binary != "" {
		if expanded, err := homedir.Expand(cfg.Backend.Binary); err == nil {
			cfg.Backend.Binary = expanded
		}
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("backend.binary", "")
	viper.SetDefault("backend.url", "")
	viper.SetDefault("backend.name", "")
	viper.SetDefault("backend.password", "")
	viper.SetDefault("backend.public", true)

	viper.SetDefault("hotspot.interface", "")
	viper.SetDefault("hotspot.join_timeout", "30s")
	viper.SetDefault("hotspot.settle_delay", "5s")

	viper.SetDefault("ble.enabled", true)
	viper.SetDefault("ble.device_name", "tazlink")

	viper.SetDefault("scan.workers", 30)
	viper.SetDefault("scan.budget", "10s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.debug", false)
	viper.SetDefault("log.format", logger.FormatAuto)
}

// ConfigDir returns the tazlink configuration directory path
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tazlink"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	configDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(configDir, 0755)
}
