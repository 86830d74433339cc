package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	API      APIConfig      `mapstructure:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Viewer   ViewerConfig   `mapstructure:"viewer"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Control  ControlConfig  `mapstructure:"control"`
}

// ServerConfig is the local control surface listener.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Timeout of zero means no client-side timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

type RealtimeConfig struct {
	URL  string `mapstructure:"url"`
	Path string `mapstructure:"path"`
	// Transports in preference order: "websocket", "polling".
	Transports        []string      `mapstructure:"transports"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	PollWait          time.Duration `mapstructure:"poll_wait"`
}

// ViewerConfig seeds the identity at startup. Either field may be empty;
// the identity can also be set later through PUT /viewer.
type ViewerConfig struct {
	ID    string `mapstructure:"id"`
	Token string `mapstructure:"token"`
}

type AuthConfig struct {
	CookieName string `mapstructure:"cookie_name"`
}

type ControlConfig struct {
	// Token, when set, is required as a bearer token on the control surface.
	Token string `mapstructure:"token"`
}

// Load reads configuration from environment variables and config files.
// Environment variables override file values. Prefix: NOTIFIER_
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8095")
	v.SetDefault("server.env", "development")
	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", 0)
	v.SetDefault("realtime.url", "http://localhost:5000")
	v.SetDefault("realtime.path", "/socket")
	v.SetDefault("realtime.transports", []string{"websocket", "polling"})
	v.SetDefault("realtime.reconnect_attempts", 5)
	v.SetDefault("realtime.reconnect_delay", time.Second)
	v.SetDefault("realtime.poll_wait", 25*time.Second)
	v.SetDefault("auth.cookie_name", "token")

	v.SetEnvPrefix("NOTIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names for Docker Compose convenience
	v.BindEnv("api.base_url", "API_BASE_URL")
	v.BindEnv("realtime.url", "REALTIME_URL")
	v.BindEnv("viewer.id", "VIEWER_ID")
	v.BindEnv("viewer.token", "AUTH_TOKEN")
	v.BindEnv("control.token", "CONTROL_TOKEN")
	v.BindEnv("server.port", "PORT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // Not required

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.base_url: %w", err))
	}
	if _, err := url.ParseRequestURI(c.Realtime.URL); err != nil {
		errs = append(errs, fmt.Errorf("realtime.url: %w", err))
	}
	if len(c.Realtime.Transports) == 0 {
		errs = append(errs, errors.New("realtime.transports: at least one transport required"))
	}
	for _, t := range c.Realtime.Transports {
		if t != "websocket" && t != "polling" {
			errs = append(errs, fmt.Errorf("realtime.transports: unknown transport %q", t))
		}
	}
	if c.Realtime.ReconnectAttempts < 0 {
		errs = append(errs, errors.New("realtime.reconnect_attempts: must not be negative"))
	}
	if c.Realtime.ReconnectDelay < 0 {
		errs = append(errs, errors.New("realtime.reconnect_delay: must not be negative"))
	}
	return errors.Join(errs...)
}
