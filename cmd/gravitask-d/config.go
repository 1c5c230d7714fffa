package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAddr      = "127.0.0.1:8780"
	defaultLayoutTTL = time.Hour
)

type Config struct {
	DBPath    string
	Addr      string
	Token     string
	RedisAddr string
	LayoutTTL time.Duration
	TLSCert   string
	TLSKey    string
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	defaultDBPath := filepath.Join(cwd, "gravitask.db")

	dbPath := envOrDefault("GRAVITASK_DB_PATH", defaultDBPath)
	addr := addrFromEnv(defaultAddr)
	token := os.Getenv("GRAVITASK_TOKEN")
	redisAddr := os.Getenv("GRAVITASK_REDIS_ADDR")
	layoutTTL := defaultLayoutTTL
	if ttlEnv := os.Getenv("GRAVITASK_LAYOUT_TTL"); ttlEnv != "" {
		parsed, err := time.ParseDuration(ttlEnv)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GRAVITASK_LAYOUT_TTL: %w", err)
		}
		if parsed < 0 {
			return Config{}, errors.New("GRAVITASK_LAYOUT_TTL must not be negative")
		}
		layoutTTL = parsed
	}
	tlsCert := os.Getenv("GRAVITASK_TLS_CERT")
	tlsKey := os.Getenv("GRAVITASK_TLS_KEY")

	flagSet := flag.NewFlagSet("gravitask-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagToken := flagSet.String("token", token, "bearer token required on mutating routes (empty disables auth)")
	flagRedis := flagSet.String("redis", redisAddr, "redis address for the layout cache (empty disables caching)")
	flagLayoutTTL := flagSet.String("layout-ttl", layoutTTL.String(), "lifetime of cached layouts (0 keeps them forever)")
	flagTLSCert := flagSet.String("tls-cert", tlsCert, "TLS certificate file")
	flagTLSKey := flagSet.String("tls-key", tlsKey, "TLS key file")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	ttlParsed, err := time.ParseDuration(*flagLayoutTTL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid layout TTL: %w", err)
	}
	if ttlParsed < 0 {
		return Config{}, errors.New("layout TTL must not be negative")
	}

	config := Config{
		DBPath:    resolvePath(*flagDB, cwd),
		Addr:      strings.TrimSpace(*flagAddr),
		Token:     strings.TrimSpace(*flagToken),
		RedisAddr: strings.TrimSpace(*flagRedis),
		LayoutTTL: ttlParsed,
		TLSCert:   resolvePath(*flagTLSCert, cwd),
		TLSKey:    resolvePath(*flagTLSKey, cwd),
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}

	if (config.TLSCert == "") != (config.TLSKey == "") {
		return Config{}, errors.New("tls-cert and tls-key must be set together")
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("GRAVITASK_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("GRAVITASK_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
