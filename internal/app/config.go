package app

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home          string // data directory, e.g. $HOME/.courier
	DBPath        string // sqlite file; defaults to <Home>/courier.db
	DeviceName    string // stable local device handle
	RotationDays  int    // key-rotation window in days
	RetentionDays int    // processed-ciphertext retention for gc
	MasterSecret  string // hex seed for the development scheme
	Verbose       bool
}

// Rotation returns the configured key-rotation window.
func (c Config) Rotation() time.Duration {
	return time.Duration(c.RotationDays) * 24 * time.Hour
}

// Retention returns the configured processed-ciphertext retention.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// MasterSecretBytes decodes the configured scheme seed.
func (c Config) MasterSecretBytes() ([]byte, error) {
	b, err := hex.DecodeString(c.MasterSecret)
	if err != nil {
		return nil, fmt.Errorf("decode master secret: %w", err)
	}
	return b, nil
}

// LoadConfig reads <home>/config.yaml if present, layering environment
// variables (COURIER_*) and defaults underneath. A missing file is not an
// error; the defaults stand.
func LoadConfig(home string) (Config, error) {
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		home = filepath.Join(dir, ".courier")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)
	v.SetEnvPrefix("courier")
	v.AutomaticEnv()

	v.SetDefault("db_path", filepath.Join(home, "courier.db"))
	v.SetDefault("device_name", defaultDeviceName())
	v.SetDefault("rotation_days", 28)
	v.SetDefault("retention_days", 30)
	v.SetDefault("verbose", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	}

	return Config{
		Home:          home,
		DBPath:        v.GetString("db_path"),
		DeviceName:    v.GetString("device_name"),
		RotationDays:  v.GetInt("rotation_days"),
		RetentionDays: v.GetInt("retention_days"),
		MasterSecret:  v.GetString("master_secret"),
		Verbose:       v.GetBool("verbose"),
	}, nil
}

func defaultDeviceName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "courier"
}
