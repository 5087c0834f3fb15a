package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultRecognitionURL = "https://inputtools.google.com/request?ime=handwriting&app=autodraw&dbg=1&cs=1&oe=UTF-8"

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	Secret       string        `mapstructure:"secret"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	Backpressure string        `mapstructure:"backpressure"`

	Screenshot  Screenshot  `mapstructure:"screenshot"`
	Redis       Redis       `mapstructure:"redis"`
	MDNS        MDNS        `mapstructure:"mdns"`
	Client      Client      `mapstructure:"client"`
	Recognition Recognition `mapstructure:"recognition"`
}

type Screenshot struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Redis struct {
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
}

type MDNS struct {
	Enabled bool   `mapstructure:"enabled"`
	Service string `mapstructure:"service"`
}

type Client struct {
	RelayURL     string  `mapstructure:"relay_url"`
	CanvasWidth  float64 `mapstructure:"canvas_width"`
	CanvasHeight float64 `mapstructure:"canvas_height"`
	StrictMerge  bool    `mapstructure:"strict_merge"`
	ShareFPS     int     `mapstructure:"share_fps"`
}

type Recognition struct {
	URL         string        `mapstructure:"url"`
	Language    string        `mapstructure:"language"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LabelOffset float64       `mapstructure:"label_offset"`
}

// ShareInterval converts the frame rate into a capture period.
func (c Client) ShareInterval() time.Duration {
	if c.ShareFPS <= 0 {
		return time.Second / 10
	}
	return time.Second / time.Duration(c.ShareFPS)
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "canvas-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 8<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("backpressure", "drop")
	v.SetDefault("screenshot.limit", 5)
	v.SetDefault("screenshot.interval", "10s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "canvas:relay")
	v.SetDefault("mdns.enabled", false)
	v.SetDefault("mdns.service", "_canvas._tcp")
	v.SetDefault("client.relay_url", "ws://localhost:8080/api/ws")
	v.SetDefault("client.canvas_width", 1280)
	v.SetDefault("client.canvas_height", 720)
	v.SetDefault("client.strict_merge", false)
	v.SetDefault("client.share_fps", 10)
	v.SetDefault("recognition.url", defaultRecognitionURL)
	v.SetDefault("recognition.language", "en")
	v.SetDefault("recognition.timeout", "5s")
	v.SetDefault("recognition.label_offset", 20)
	return v
}

// Load reads config/config.<CONFIG_ENV>.yaml. A missing file means
// defaults plus environment.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return load(fmt.Sprintf("config/config.%s.yaml", env), true)
}

// LoadFile reads an explicit file; it must exist.
func LoadFile(path string) (*Config, error) {
	return load(path, false)
}

func load(fileName string, optional bool) (*Config, error) {
	v := newViper()
	v.SetConfigFile(fileName)

	lg := log.With().Str("module", "config").Str("file", fileName).Logger()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !optional || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		lg.Warn().Msg("config file not found, using defaults")
	} else {
		lg.Info().Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	lg.Info().Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}
