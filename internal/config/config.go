package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/HMasataka/devserve/pkg/port"
	"github.com/HMasataka/devserve/pkg/static"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server ServerConfig `toml:"server"`
	Port   PortConfig   `toml:"port"`
	Log    LogConfig    `toml:"log"`
}

type ServerConfig struct {
	Host            string            `toml:"host" env:"DEVSERVE_HOST"`
	Root            string            `toml:"root" env:"DEVSERVE_ROOT"`
	ShutdownTimeout int               `toml:"shutdown_timeout" env:"DEVSERVE_SHUTDOWN_TIMEOUT"`
	ContentTypes    map[string]string `toml:"content_types"`
}

type PortConfig struct {
	Start int `toml:"start" env:"DEVSERVE_PORT_START"`
	Count int `toml:"count" env:"DEVSERVE_PORT_COUNT"`
}

type LogConfig struct {
	Debug bool `toml:"debug" env:"DEVSERVE_DEBUG"`
}

// Default は引数なしで起動したときの設定を返す
func Default() Config {
	portOpts := port.DefaultOptions()
	staticOpts := static.DefaultOptions()

	return Config{
		Server: ServerConfig{
			Host:            staticOpts.Host,
			Root:            staticOpts.Root,
			ShutdownTimeout: int(staticOpts.ShutdownTimeout / time.Second),
			ContentTypes:    staticOpts.ContentTypes,
		},
		Port: PortConfig{
			Start: portOpts.Start,
			Count: portOpts.Count,
		},
	}
}

// Load builds a Config from the defaults, the TOML file at path (skipped
// when path is empty) and DEVSERVE_* environment variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := ParseFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ParseFile はTOMLファイルを読み込む
func ParseFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target *Config) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Merge は other のゼロ値でないフィールドで c を上書きした設定を返す。
// ContentTypes は拡張子ごとにマージする。
func (c Config) Merge(other Config) Config {
	return Config{
		Server: ServerConfig{
			Host:            lo.CoalesceOrEmpty(other.Server.Host, c.Server.Host),
			Root:            lo.CoalesceOrEmpty(other.Server.Root, c.Server.Root),
			ShutdownTimeout: lo.CoalesceOrEmpty(other.Server.ShutdownTimeout, c.Server.ShutdownTimeout),
			ContentTypes:    lo.Assign(c.Server.ContentTypes, other.Server.ContentTypes),
		},
		Port: PortConfig{
			Start: lo.CoalesceOrEmpty(other.Port.Start, c.Port.Start),
			Count: lo.CoalesceOrEmpty(other.Port.Count, c.Port.Count),
		},
		Log: LogConfig{
			Debug: c.Log.Debug || other.Log.Debug,
		},
	}
}

func (c Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("%w: server.host is empty", ErrInvalidConfig)
	}
	if c.Server.Root == "" {
		return fmt.Errorf("%w: server.root is empty", ErrInvalidConfig)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := c.PortOptions().Candidates(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LogLevel returns the slog level selected by Log.Debug.
func (c Config) LogLevel() slog.Level {
	if c.Log.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// PortOptions はポート探索の設定に変換する
func (c Config) PortOptions() port.Options {
	opts := port.DefaultOptions()
	opts.Host = c.Server.Host
	opts.Start = c.Port.Start
	opts.Count = c.Port.Count
	return opts
}

// StaticOptions は選択済みのポートでサーバーの設定に変換する
func (c Config) StaticOptions(p int, logger *slog.Logger) static.Options {
	opts := static.DefaultOptions()
	opts.Host = c.Server.Host
	opts.Port = p
	opts.Root = c.Server.Root
	opts.ContentTypes = lo.Assign(c.Server.ContentTypes)
	opts.ShutdownTimeout = time.Duration(c.Server.ShutdownTimeout) * time.Second
	opts.Logger = logger
	return opts
}
