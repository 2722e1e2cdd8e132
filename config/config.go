package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	Port            int
	Env             string
	LogLevel        zerolog.Level
	ReadTimeout     time.Duration
	HandshakeDelay  time.Duration
	ErrorBackoff    time.Duration
	MaxHistory      int
	// PeerIdleTimeout evicts peers the server has not heard from for this
	// long; 0 disables eviction. Clients send no keepalive, so a peer that
	// only reads is evicted and announced as timed out while still running.
	PeerIdleTimeout time.Duration
	AdminAddr       string        // empty disables the admin HTTP server
	ControlSocket   string

	// Client defaults
	ServerAddr string
	Nickname   string
}

// Load reads configuration from LANCHAT_* environment variables, loading a
// .env file first if one exists. Values that fail to parse keep the default.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            5050,
		Env:             "development",
		LogLevel:        zerolog.InfoLevel,
		ReadTimeout:     time.Second,
		HandshakeDelay:  50 * time.Millisecond,
		ErrorBackoff:    100 * time.Millisecond,
		MaxHistory:      100,
		PeerIdleTimeout: 0,
		ControlSocket:   "/tmp/lanchat.sock",
		ServerAddr:      "localhost:5050",
	}

	if portStr := os.Getenv("LANCHAT_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port >= 0 && port <= 65535 {
			cfg.Port = port
		}
	}

	if env := os.Getenv("LANCHAT_ENV"); env != "" {
		cfg.Env = strings.ToLower(env)
	}

	if levelStr := os.Getenv("LANCHAT_LOG_LEVEL"); levelStr != "" {
		if level, err := zerolog.ParseLevel(strings.ToLower(levelStr)); err == nil {
			cfg.LogLevel = level
		}
	}

	setDuration(&cfg.ReadTimeout, "LANCHAT_READ_TIMEOUT", false)
	setDuration(&cfg.HandshakeDelay, "LANCHAT_HANDSHAKE_DELAY", true)
	setDuration(&cfg.ErrorBackoff, "LANCHAT_ERROR_BACKOFF", true)
	setDuration(&cfg.PeerIdleTimeout, "LANCHAT_PEER_IDLE_TIMEOUT", true)

	if historyStr := os.Getenv("LANCHAT_MAX_HISTORY"); historyStr != "" {
		if n, err := strconv.Atoi(historyStr); err == nil && n > 0 {
			cfg.MaxHistory = n
		}
	}

	if addr, ok := os.LookupEnv("LANCHAT_ADMIN_ADDR"); ok {
		cfg.AdminAddr = addr
	}

	if path, ok := os.LookupEnv("LANCHAT_CONTROL_SOCKET"); ok {
		cfg.ControlSocket = path
	}

	if addr := os.Getenv("LANCHAT_SERVER"); addr != "" {
		cfg.ServerAddr = addr
	}

	if nick := os.Getenv("LANCHAT_NICK"); nick != "" {
		cfg.Nickname = strings.TrimSpace(nick)
	}

	return cfg
}

// IsDevelopment reports whether logs should go to a human-readable console.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func setDuration(dst *time.Duration, key string, allowZero bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return
	}
	*dst = d
}
