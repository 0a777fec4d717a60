// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the daemon configuration from a YAML file and
// WALLBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	modbus "github.com/edgeo-scada/wallbox-modbus"
	"github.com/edgeo-scada/wallbox-modbus/internal/registers"
)

// EnvPrefix prefixes every environment override, e.g. WALLBOX_MODBUS_TCP_PORT.
const EnvPrefix = "WALLBOX"

// Config is the complete wallboxd configuration.
type Config struct {
	ModbusTCP ModbusTCPConfig `mapstructure:"modbus_tcp"`
	Device    DeviceConfig    `mapstructure:"device"`
	State     StateConfig     `mapstructure:"state"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
}

// ModbusTCPConfig configures the Modbus TCP server.
type ModbusTCPConfig struct {
	Enable         bool          `mapstructure:"enable" json:"enable"`
	Port           uint16        `mapstructure:"port" json:"port"`
	Table          string        `mapstructure:"table" json:"table"`
	MaxConnections int           `mapstructure:"max_connections" json:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	KeepAlive      time.Duration `mapstructure:"keep_alive" json:"keep_alive"`
	// Unit id used by the read command. The server answers every unit id.
	UnitID uint8 `mapstructure:"unit_id" json:"unit_id"`
}

// DeviceConfig holds the identity values reported in the register tables.
type DeviceConfig struct {
	UID            uint32         `mapstructure:"uid"`
	Firmware       FirmwareConfig `mapstructure:"firmware"`
	BuildTimestamp uint32         `mapstructure:"build_timestamp"`
}

// FirmwareConfig is the reported firmware version.
type FirmwareConfig struct {
	Major uint32 `mapstructure:"major"`
	Minor uint32 `mapstructure:"minor"`
	Patch uint32 `mapstructure:"patch"`
}

// StateConfig selects the state snapshot loaded at startup.
type StateConfig struct {
	// Seed is a YAML snapshot loaded at startup. Empty uses the built-in one.
	Seed string `mapstructure:"seed"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers the default for every key so environment
// overrides work without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("modbus_tcp.enable", true)
	v.SetDefault("modbus_tcp.port", modbus.DefaultPort)
	v.SetDefault("modbus_tcp.table", "WARP")
	v.SetDefault("modbus_tcp.max_connections", 100)
	v.SetDefault("modbus_tcp.read_timeout", "30s")
	v.SetDefault("modbus_tcp.keep_alive", "30s")
	v.SetDefault("modbus_tcp.unit_id", 1)

	v.SetDefault("device.uid", 0)
	v.SetDefault("device.firmware.major", 2)
	v.SetDefault("device.firmware.minor", 0)
	v.SetDefault("device.firmware.patch", 0)
	v.SetDefault("device.build_timestamp", 0)

	v.SetDefault("state.seed", "")

	v.SetDefault("http.enable", true)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the YAML file at path into v and decodes the result. An
// empty path skips the file and uses defaults plus environment.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the current settings of v.
func Decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values the decoder cannot.
func (c *Config) Validate() error {
	var errs []error
	if _, err := registers.ParseTable(c.ModbusTCP.Table); err != nil {
		errs = append(errs, fmt.Errorf("modbus_tcp.table: %w", err))
	}
	if c.ModbusTCP.Port == 0 {
		errs = append(errs, errors.New("modbus_tcp.port: must not be 0"))
	}
	if c.ModbusTCP.MaxConnections <= 0 {
		errs = append(errs, errors.New("modbus_tcp.max_connections: must be positive"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address of the Modbus server.
func (c ModbusTCPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RegisterTable returns the parsed table selection.
func (c ModbusTCPConfig) RegisterTable() registers.Table {
	t, err := registers.ParseTable(c.Table)
	if err != nil {
		return registers.TableWARP
	}
	return t
}

// Info converts the device section for the register engine.
func (c DeviceConfig) Info() registers.DeviceInfo {
	return registers.DeviceInfo{
		UID:            c.UID,
		FirmwareMajor:  c.Firmware.Major,
		FirmwareMinor:  c.Firmware.Minor,
		FirmwarePatch:  c.Firmware.Patch,
		BuildTimestamp: c.BuildTimestamp,
	}
}

// ParseLevel maps a level name to a slog level. "trace" is one step
// below debug.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return registers.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

// Watch calls fn with the new configuration whenever the config file
// changes. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger *slog.Logger, fn func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		c, err := Decode(v)
		if err != nil {
			logger.Warn("ignoring invalid config change",
				slog.String("file", e.Name),
				slog.String("error", err.Error()))
			return
		}
		logger.Info("config reloaded", slog.String("file", e.Name))
		fn(c)
	})
	v.WatchConfig()
}
