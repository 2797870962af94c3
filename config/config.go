// Package config loads runtime settings from the environment, an optional .env file
// and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "PANPIPE"

// Config is everything the daemon and the clients need.
type Config struct {
	Volume          float64       `mapstructure:"volume"`
	FadeIn          time.Duration `mapstructure:"-"`
	FadeOut         time.Duration `mapstructure:"-"`
	MinPlayTime     uint64        `mapstructure:"min_play_time"`
	WeightDecayDays uint64        `mapstructure:"weight_decay_days"`
	SkipThreshold   uint64        `mapstructure:"skip_threshold"`
	SampleRate      int           `mapstructure:"sample_rate"`

	DBPath     string   `mapstructure:"db_path"`
	SocketPath string   `mapstructure:"socket_path"`
	HTTPAddr   string   `mapstructure:"http_addr"`
	MusicDirs  []string `mapstructure:"music_dirs"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
	LogFile  string `mapstructure:"log_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("volume", 0.7)
	v.SetDefault("fade_in_ms", 300)
	v.SetDefault("fade_out_ms", 200)
	v.SetDefault("min_play_time", 10)
	v.SetDefault("weight_decay_days", 30)
	v.SetDefault("skip_threshold", 30)
	v.SetDefault("sample_rate", 44100)
	v.SetDefault("db_path", "panpipe.db")
	v.SetDefault("socket_path", "/tmp/panpipe.sock")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("music_dirs", []string{})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("log_file", "")
}

// Default returns the built-in defaults without touching the environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg, _ := decode(v)
	return cfg
}

// Load reads envFile (if present) into the process environment, then resolves
// every key from PANPIPE_* variables, configFile (if non-empty) and defaults.
func Load(envFile, configFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("load env file: %w", err)
			}
			log.Debugf("[Config] No env file at %s", envFile)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	// Durations are configured in milliseconds.
	cfg.FadeIn = time.Duration(v.GetInt64("fade_in_ms")) * time.Millisecond
	cfg.FadeOut = time.Duration(v.GetInt64("fade_out_ms")) * time.Millisecond
	// AutomaticEnv does not split lists for Unmarshal.
	cfg.MusicDirs = v.GetStringSlice("music_dirs")
	return cfg, nil
}

// Validate clamps the volume and rejects settings the engine cannot work with.
func (c *Config) Validate() error {
	c.Volume = min(max(c.Volume, 0), 1)
	if c.FadeIn < 0 || c.FadeOut < 0 {
		return fmt.Errorf("fade durations must not be negative")
	}
	if c.WeightDecayDays == 0 {
		return fmt.Errorf("weight_decay_days must be positive")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive")
	}
	return nil
}
