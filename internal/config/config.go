package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is read once at start-up from the environment.
type Config struct {
	AppEnv string `env:"APP_ENV,default=prod"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	GRPCPort string `env:"PORT,default=50051"`
	WebPort  string `env:"WEB_PORT,default=8080"`

	RedisAddr     string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	CacheTTL      time.Duration `env:"CACHE_TTL,default=5m"`

	UploadDir      string `env:"UPLOAD_DIR,default=./uploads"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`
	UploadMaxBytes int64  `env:"UPLOAD_MAX_BYTES,default=10485760"`

	InferenceURL    string  `env:"INFERENCE_URL"`
	InferenceRPS    float64 `env:"INFERENCE_RPS,default=2"`
	InferenceLabels string  `env:"INFERENCE_LABELS"`

	AccessTTL  time.Duration `env:"ACCESS_TTL,default=15m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL,default=720h"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=10"`

	// TrustedProxies lists comma separated CIDRs or addresses whose
	// X-Forwarded-For / X-Real-IP headers are believed. Empty trusts none.
	TrustedProxies string `env:"TRUSTED_PROXIES"`

	SweepSchedule string `env:"SWEEP_SCHEDULE,default=@every 15m"`
	FeedSchedule  string `env:"FEED_SCHEDULE,default=@every 6h"`
}

// Load reads an optional .env file and decodes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 bytes")
	}
	if c.RateLimitBurst < 1 {
		return errors.New("config: RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.Proxies(); err != nil {
		return err
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	return nil
}

// Proxies parses TrustedProxies. A bare address is a single-host prefix.
func (c *Config) Proxies() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, f := range strings.Split(c.TrustedProxies, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !strings.Contains(f, "/") {
			a, err := netip.ParseAddr(f)
			if err != nil {
				return nil, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
			}
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(f)
		if err != nil {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func (c *Config) Dev() bool {
	return c.AppEnv == "dev" || c.AppEnv == "development"
}
