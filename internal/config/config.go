package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Dev struct {
		Mode bool `yaml:"mode"`
	} `yaml:"dev"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Auth struct {
		TokenSigningKey string `yaml:"token_signing_key"`
		Issuer          string `yaml:"issuer"`
		Audience        string `yaml:"audience"`
		AdminAPIKey     string `yaml:"admin_api_key"`
	} `yaml:"auth"`
	Entitlements struct {
		TrialDays       int           `yaml:"trial_days"`
		PlanLimitsPath  string        `yaml:"plan_limits_path"`
		AccountCacheTTL time.Duration `yaml:"account_cache_ttl"`
	} `yaml:"entitlements"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8090"
	cfg.Dev.Mode = true
	cfg.Entitlements.TrialDays = 7
	cfg.Entitlements.AccountCacheTTL = 30 * time.Second
	cfg.Log.Level = "info"
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Entitlements.TrialDays <= 0 {
		return cfg, errors.New("entitlements.trial_days must be positive")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BD_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("BD_DEV_MODE"); v != "" {
		cfg.Dev.Mode = parseBool(v, cfg.Dev.Mode)
	}
	if v := os.Getenv("BD_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("BD_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("BD_TOKEN_SIGNING_KEY"); v != "" {
		cfg.Auth.TokenSigningKey = v
	}
	if v := os.Getenv("BD_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("BD_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("BD_ADMIN_API_KEY"); v != "" {
		cfg.Auth.AdminAPIKey = v
	}
	if v := os.Getenv("BD_TRIAL_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Entitlements.TrialDays = days
		}
	}
	if v := os.Getenv("BD_PLAN_LIMITS_PATH"); v != "" {
		cfg.Entitlements.PlanLimitsPath = v
	}
	if v := os.Getenv("BD_ACCOUNT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Entitlements.AccountCacheTTL = d
		}
	}
	if v := os.Getenv("BD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
