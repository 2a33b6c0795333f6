package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Address      string        `yaml:"address"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
	} `yaml:"signal"`

	Studio struct {
		CanvasWidth      int           `yaml:"canvas_width"`
		CanvasHeight     int           `yaml:"canvas_height"`
		FrameRate        int           `yaml:"frame_rate"`
		CountdownSeconds int           `yaml:"countdown_seconds"`
		IntroClipPath    string        `yaml:"intro_clip_path"`
		IntroSeconds     int           `yaml:"intro_seconds"`
		SocialCardTTL    time.Duration `yaml:"social_card_ttl"`
		DefaultLayout    string        `yaml:"default_layout"`
	} `yaml:"studio"`

	Audio struct {
		SampleRate        int     `yaml:"sample_rate"`
		SpeakingThreshold float64 `yaml:"speaking_threshold"`
		Smoothing         float64 `yaml:"smoothing"`
	} `yaml:"audio"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		QualitySampleInterval time.Duration `yaml:"quality_sample_interval"`
	} `yaml:"webrtc"`

	Provisioning struct {
		BaseURL      string        `yaml:"base_url"`
		APIKey       string        `yaml:"api_key"`
		PollAttempts int           `yaml:"poll_attempts"`
		PollInterval time.Duration `yaml:"poll_interval"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"provisioning"`

	Relay struct {
		Address        string        `yaml:"address"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
	} `yaml:"relay"`

	Recording struct {
		Directory string `yaml:"directory"`
	} `yaml:"recording"`

	Backup struct {
		Enabled       bool          `yaml:"enabled"`
		Directory     string        `yaml:"directory"`
		Interval      time.Duration `yaml:"interval"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		StudioKey      string        `yaml:"studio_key"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}

	// Studio
	if c.Studio.CanvasWidth <= 0 || c.Studio.CanvasHeight <= 0 {
		return fmt.Errorf("studio.canvas dimensions must be > 0")
	}
	if c.Studio.FrameRate <= 0 || c.Studio.FrameRate > 120 {
		return fmt.Errorf("studio.frame_rate must be in (0, 120]")
	}
	if c.Studio.CountdownSeconds < 0 {
		return fmt.Errorf("studio.countdown_seconds must be >= 0")
	}
	if c.Studio.IntroSeconds < 0 {
		return fmt.Errorf("studio.intro_seconds must be >= 0")
	}
	if c.Studio.SocialCardTTL <= 0 {
		return fmt.Errorf("studio.social_card_ttl must be > 0")
	}

	// Audio
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.SpeakingThreshold <= 0 || c.Audio.SpeakingThreshold >= 1 {
		return fmt.Errorf("audio.speaking_threshold must be in (0, 1)")
	}
	if c.Audio.Smoothing < 0 || c.Audio.Smoothing >= 1 {
		return fmt.Errorf("audio.smoothing must be in [0, 1)")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}
	if c.WebRTC.QualitySampleInterval <= 0 {
		return fmt.Errorf("webrtc.quality_sample_interval must be > 0")
	}

	// Provisioning
	if c.Provisioning.PollAttempts <= 0 {
		return fmt.Errorf("provisioning.poll_attempts must be > 0")
	}
	if c.Provisioning.PollInterval <= 0 {
		return fmt.Errorf("provisioning.poll_interval must be > 0")
	}

	// Relay
	if c.Relay.ConnectTimeout <= 0 {
		return fmt.Errorf("relay.connect_timeout must be > 0")
	}
	if c.Relay.WriteTimeout <= 0 {
		return fmt.Errorf("relay.write_timeout must be > 0")
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.RetentionDays <= 0 {
			return fmt.Errorf("backup.retention_days must be > 0 when backup.enabled=true")
		}
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Address = ":8081"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second

	cfg.Studio.CanvasWidth = 1280
	cfg.Studio.CanvasHeight = 720
	cfg.Studio.FrameRate = 30
	cfg.Studio.CountdownSeconds = 30
	cfg.Studio.IntroSeconds = 5
	cfg.Studio.SocialCardTTL = 10 * time.Second
	cfg.Studio.DefaultLayout = "group"

	cfg.Audio.SampleRate = 48000
	cfg.Audio.SpeakingThreshold = 0.04
	cfg.Audio.Smoothing = 0.8

	cfg.WebRTC.QualitySampleInterval = 2 * time.Second

	cfg.Provisioning.BaseURL = "http://localhost:9000"
	cfg.Provisioning.PollAttempts = 10
	cfg.Provisioning.PollInterval = 1 * time.Second
	cfg.Provisioning.Timeout = 5 * time.Second

	cfg.Relay.Address = "localhost:1935"
	cfg.Relay.ConnectTimeout = 5 * time.Second
	cfg.Relay.WriteTimeout = 5 * time.Second

	cfg.Recording.Directory = os.TempDir()

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "/var/lib/stagecast/backups"
	cfg.Backup.Interval = time.Hour
	cfg.Backup.RetentionDays = 7

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.StudioKey = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("STAGECAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("STAGECAST_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if level := os.Getenv("STAGECAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("STAGECAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if key := os.Getenv("STAGECAST_STUDIO_KEY"); key != "" {
		c.Auth.StudioKey = key
	}
	if key := os.Getenv("STAGECAST_PROVISIONING_API_KEY"); key != "" {
		c.Provisioning.APIKey = key
	}
	if dir := os.Getenv("STAGECAST_RECORDING_DIR"); dir != "" {
		c.Recording.Directory = dir
	}
}
