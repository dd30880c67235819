// Package config loads portal settings from defaults, an optional YAML file
// and CWP_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultJWTSecret is the development secret. Load logs a warning when it
// is still in use.
const DefaultJWTSecret = "change-me"

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// TrustedProxies lists the peers (CIDR or bare IP) whose
	// X-Forwarded-For / X-Real-IP headers are believed. Empty trusts none.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// Proxies parses TrustedProxies. A bare IP becomes a single-address prefix.
func (s ServerConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret        string `mapstructure:"secret"`
	Issuer        string `mapstructure:"issuer"`
	ExpireMinutes int    `mapstructure:"expire_minutes"`
}

// TTL returns the token lifetime.
func (j JWTConfig) TTL() time.Duration {
	return time.Duration(j.ExpireMinutes) * time.Minute
}

type SecurityConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

type RateLimitConfig struct {
	UsernameLimit int           `mapstructure:"username_limit"`
	IPLimit       int           `mapstructure:"ip_limit"`
	Window        time.Duration `mapstructure:"window"`
}

type BackupConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Dir       string        `mapstructure:"dir"`
	Retention int           `mapstructure:"retention"`
	Interval  time.Duration `mapstructure:"interval"`
}

// Template is a named set of prefilled entry form values.
type Template struct {
	Name   string         `mapstructure:"name" json:"name"`
	Values map[string]any `mapstructure:"values" json:"values"`
}

type PortalConfig struct {
	SubDivisions []string   `mapstructure:"subdivisions"`
	Templates    []Template `mapstructure:"templates"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Portal    PortalConfig    `mapstructure:"portal"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.path", "./data/works.db")

	v.SetDefault("jwt.secret", DefaultJWTSecret)
	v.SetDefault("jwt.issuer", "capital-works")
	v.SetDefault("jwt.expire_minutes", 480)

	v.SetDefault("security.bcrypt_cost", 12)

	v.SetDefault("ratelimit.username_limit", 5)
	v.SetDefault("ratelimit.ip_limit", 20)
	v.SetDefault("ratelimit.window", "300s")

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.dir", "./data/backups")
	v.SetDefault("backup.retention", 30)
	v.SetDefault("backup.interval", "24h")

	v.SetDefault("portal.subdivisions", []string{"RKV SubDiv-1", "RKV SubDiv-2", "RKV SubDiv-3"})
	v.SetDefault("portal.templates", []map[string]any{
		{"name": "Blank", "values": map[string]any{}},
		{"name": "Spill Default", "values": map[string]any{"account_code": "Spill"}},
		{"name": "New Default", "values": map[string]any{"account_code": "New"}},
		{"name": "Monthly Repeat", "values": map[string]any{
			"exp_upto_last_month":   0,
			"exp_during_this_month": 0,
			"works_completed":       0,
		}},
	})
}

// Load reads configuration. An empty path means defaults plus environment;
// a non-empty path must name a readable config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// environment overrides, e.g. CWP_SERVER_PORT=9000
	v.SetEnvPrefix("CWP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.JWT.Secret == DefaultJWTSecret {
		log.Printf("[Config] WARNING: using the default JWT secret; set CWP_JWT_SECRET")
	}
	return &c, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := c.Server.Proxies(); err != nil {
		errs = append(errs, err)
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.JWT.ExpireMinutes <= 0 {
		errs = append(errs, errors.New("jwt.expire_minutes must be positive"))
	}
	if c.Backup.Enabled && c.Backup.Dir == "" {
		errs = append(errs, errors.New("backup.dir is required when backups are enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
