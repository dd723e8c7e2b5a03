package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/erikbos/tvloop/database"
)

const envPrefix = "TVLOOP"

type cfgMain struct {
	Listen    cfgListen       `mapstructure:"listen"`
	Content   cfgContent      `mapstructure:"content"`
	State     cfgState        `mapstructure:"state"`
	Cache     cfgCache        `mapstructure:"cache"`
	Database  database.Config `mapstructure:"database"`
	Channels  cfgChannels     `mapstructure:"channels"`
	Scheduler cfgScheduler    `mapstructure:"scheduler"`
	Encoder   cfgEncoder      `mapstructure:"encoder"`
	Library   cfgLibrary      `mapstructure:"library"`
	FFProbe   cfgFFProbe      `mapstructure:"ffprobe"`
}

type cfgListen struct {
	Address string `mapstructure:"address"`
}

type cfgContent struct {
	// Dir holds the JSON documents and the videos and thumbnails directories.
	Dir string `mapstructure:"dir"`
}

func (c cfgContent) VideoDir() string     { return filepath.Join(c.Dir, "videos") }
func (c cfgContent) ThumbnailDir() string { return filepath.Join(c.Dir, "thumbnails") }

type cfgState struct {
	// Dir holds the signal files shared with the frontend and the encoder.
	Dir string `mapstructure:"dir"`
}

type cfgCache struct {
	// Dir holds resized thumbnails, empty disables caching.
	Dir string `mapstructure:"dir"`
}

type cfgChannels struct {
	Fallback string `mapstructure:"fallback"`
}

type cfgScheduler struct {
	PendingTTL   time.Duration `mapstructure:"pending_ttl"`
	StickyWindow time.Duration `mapstructure:"sticky_window"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	Jitter       float64       `mapstructure:"jitter"`
}

type cfgEncoder struct {
	Command       string        `mapstructure:"command"`
	VolumeTimeout time.Duration `mapstructure:"volume_timeout"`
	VolumeStep    int           `mapstructure:"volume_step"`
}

type cfgLibrary struct {
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

type cfgFFProbe struct {
	Command string `mapstructure:"command"`
}

var defaults = map[string]any{
	"listen.address":          ":5000",
	"content.dir":             "./content",
	"state.dir":               "/tmp",
	"cache.dir":               "",
	"database.type":           "json",
	"database.filename":       "",
	"channels.fallback":       "base",
	"scheduler.pending_ttl":   "12s",
	"scheduler.sticky_window": "3s",
	"scheduler.cooldown":      "3s",
	"scheduler.jitter":        0.01,
	"encoder.command":         "./native/encoder_reader",
	"encoder.volume_timeout":  "3.2s",
	"encoder.volume_step":     5,
	"library.scan_interval":   "5m",
	"ffprobe.command":         "ffprobe",
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"listen":      "listen.address",
	"content-dir": "content.dir",
	"state-dir":   "state.dir",
	"cache-dir":   "cache.dir",
	"db-type":     "database.type",
}

// addConfigFlags registers the flags that override configuration keys.
func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("listen", "", "HTTP listen address")
	flags.String("content-dir", "", "directory with catalog, channels, videos and thumbnails")
	flags.String("state-dir", "", "directory for signal files")
	flags.String("cache-dir", "", "thumbnail resize cache directory")
	flags.String("db-type", "", `play counter backend, "json" or "sqlite"`)
}

// loadConfig reads the configuration from, in order of precedence, flags,
// TVLOOP_ environment variables, the config file and defaults.
func loadConfig(configFile string, flags *pflag.FlagSet) (*cfgMain, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tvloop")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tvloop")
		v.AddConfigPath("$HOME/.config/tvloop")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var config cfgMain
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	config.Database.Dir = config.Content.Dir
	config.Database.FallbackChannel = config.Channels.Fallback
	return &config, nil
}
