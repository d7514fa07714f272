package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authgate/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultTokenStore   = "postgres"
	defaultRedisAddr    = "localhost:6379"
	defaultAccessTTL    = 15 * time.Minute
	defaultRefreshTTL   = 14 * 24 * time.Hour
	defaultReapInterval = time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the authgate service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Backend for refresh token records: postgres, redis or memory
	// Users always live in postgres
	TokenStore string

	// Redis address, used only when TokenStore is "redis"
	RedisAddr string

	// Secret keys for signing JWT tokens, newest first
	// Old keys are kept so tokens signed with them stay valid until they expire
	SecretKeys []string

	// Access token lifetime
	AccessTTL time.Duration

	// Refresh token lifetime
	RefreshTTL time.Duration

	// How often expired refresh token records are purged
	ReapInterval time.Duration

	// Kakao OAuth2 application credentials
	KakaoClientID     string
	KakaoClientSecret string
	KakaoRedirectURI  string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:     defaultLoggingLevel,
		ListenAddr:   defaultListenAddr,
		Environment:  defaultEnvironment,
		TokenStore:   defaultTokenStore,
		RedisAddr:    defaultRedisAddr,
		AccessTTL:    defaultAccessTTL,
		RefreshTTL:   defaultRefreshTTL,
		ReapInterval: defaultReapInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setStrings := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = strings.Split(value, ",")
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":         setString(&c.ListenAddr),
		"DATABASE_URI":        setString(&c.DatabaseDSN),
		"TOKEN_STORE":         setString(&c.TokenStore),
		"REDIS_ADDRESS":       setString(&c.RedisAddr),
		"SECRET_KEYS":         setStrings(&c.SecretKeys),
		"ACCESS_TOKEN_TTL":    setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL":   setDuration(&c.RefreshTTL),
		"REAP_INTERVAL":       setDuration(&c.ReapInterval),
		"KAKAO_CLIENT_ID":     setString(&c.KakaoClientID),
		"KAKAO_CLIENT_SECRET": setString(&c.KakaoClientSecret),
		"KAKAO_REDIRECT_URI":  setString(&c.KakaoRedirectURI),
		"LOG_LEVEL":           setString(&c.LogLevel),
		"ENVIRONMENT":         setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid value for %s. Err: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authgate", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.TokenStore, "token-store", c.TokenStore, "Refresh token backend (postgres, redis, memory)")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address, used with --token-store=redis")
	fs.StringSliceVarP(&c.SecretKeys, "secret-keys", "s", c.SecretKeys, "Signing keys, newest first")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.DurationVar(&c.ReapInterval, "reap-interval", c.ReapInterval, "Expired token purge interval")
	fs.StringVar(&c.KakaoClientID, "kakao-client-id", c.KakaoClientID, "Kakao application client id")
	fs.StringVar(&c.KakaoClientSecret, "kakao-client-secret", c.KakaoClientSecret, "Kakao application client secret")
	fs.StringVar(&c.KakaoRedirectURI, "kakao-redirect-uri", c.KakaoRedirectURI, "Kakao redirect uri")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
