package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quiz-result-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	TestCodes struct {
		TTL string `yaml:"ttl"`

		// MissTTL is how long an unknown code is remembered by the in-memory registry.
		MissTTL string `yaml:"missTtl"`

		// Codes seed the static registry when no database is configured.
		Codes []domain.TestCode `yaml:"codes"`
	} `yaml:"testCodes"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`
	Submission struct {
		DefaultTimeTaken int    `yaml:"defaultTimeTaken"`
		RankingTimeout   string `yaml:"rankingTimeout"`
	} `yaml:"submission"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Seed struct {
		Users []SeedUser `yaml:"users"`
	} `yaml:"seed"`
}

// SeedUser is a user created at startup, mainly for local runs.
type SeedUser struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
}

func (u SeedUser) User() domain.User {
	return domain.User{ID: u.ID, Username: u.Username, Email: u.Email, Name: u.Name}
}

// Load reads YAML config from path. JWT_SECRET in the environment overrides auth.jwtSecret.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
