// Package config содержит логику чтения конфигурации сервиса juice-shop.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса juice-shop.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	RedisAddress      string `env:"REDIS_ADDRESS"`
	JWTSecret         string `env:"JWT_SECRET"`
	ApplicationDomain string `env:"APPLICATION_DOMAIN"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envJWTSecret := cfg.JWTSecret
	envApplicationDomain := cfg.ApplicationDomain

	flag.StringVar(&cfg.RunAddress, "a", "localhost:3000", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "localhost:6379", "redis address for captcha challenges")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret key for signing bearer tokens")
	flag.StringVar(&cfg.ApplicationDomain, "m", "juice-sh.op", "email domain for seeded accounts")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}
	if envApplicationDomain != "" {
		cfg.ApplicationDomain = envApplicationDomain
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:3000"
	}
	if cfg.ApplicationDomain == "" {
		cfg.ApplicationDomain = "juice-sh.op"
	}

	return cfg, nil
}
