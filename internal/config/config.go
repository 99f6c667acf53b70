package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the FX dashboard.
type Config struct {
	// Market data backend
	BackendURL     string
	BackendTimeout time.Duration

	// HTTP server
	BindAddr         string
	PortAutoFallback bool
	PortCandidates   []string

	// Chart page and CDP connection
	ChartBackend  string
	CDPAddress    string
	CDPPort       int
	LaunchBrowser bool
	ProfileDir    string
	PageFilter    string
	EvalTimeoutMS int

	// Logging
	LogLevel string
	LogFile  string

	// Notices
	NoticeTTL    time.Duration
	NtfyEndpoint string
	NtfyMinLevel string

	PresetsPath string
	Presets     *Presets
}

// Load reads configuration from environment variables and optional .env file.
// A missing presets file falls back to the built-in presets.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BackendURL:       strings.TrimRight(getEnvOrDefault("FXDASH_BACKEND_URL", "http://127.0.0.1:5000"), "/"),
		BackendTimeout:   time.Duration(getEnvIntOrDefault("FXDASH_BACKEND_TIMEOUT_MS", 0)) * time.Millisecond,
		BindAddr:         getEnvOrDefault("FXDASH_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback: getEnvBoolOrDefault("FXDASH_PORT_AUTO_FALLBACK", true),
		PortCandidates:   getEnvListOrDefault("FXDASH_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		ChartBackend:     strings.ToLower(getEnvOrDefault("FXDASH_CHART_BACKEND", "cdp")),
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		LaunchBrowser:    getEnvBoolOrDefault("FXDASH_LAUNCH_BROWSER", false),
		ProfileDir:       getEnvOrDefault("FXDASH_PROFILE_DIR", "./browser_profile"),
		PageFilter:       getEnvOrDefault("FXDASH_PAGE_FILTER", "/chart"),
		EvalTimeoutMS:    getEnvIntOrDefault("FXDASH_EVAL_TIMEOUT_MS", 5000),
		LogLevel:         strings.ToLower(getEnvOrDefault("FXDASH_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("FXDASH_LOG_FILE", "logs/fx_dashboard.log"),
		NoticeTTL:        time.Duration(getEnvIntOrDefault("FXDASH_NOTICE_TTL_MS", 5000)) * time.Millisecond,
		NtfyEndpoint:     getEnvOrDefault("FXDASH_NTFY_ENDPOINT", ""),
		NtfyMinLevel:     strings.ToLower(getEnvOrDefault("FXDASH_NTFY_MIN_LEVEL", "danger")),
		PresetsPath:      getEnvOrDefault("FXDASH_PRESETS", "./config/presets.yaml"),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.ChartBackend != "cdp" && cfg.ChartBackend != "memory" {
		return nil, fmt.Errorf("FXDASH_CHART_BACKEND must be cdp or memory, got %q", cfg.ChartBackend)
	}
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("FXDASH_BACKEND_URL is empty")
	}

	presets, err := LoadPresets(cfg.PresetsPath)
	switch {
	case err == nil:
		cfg.Presets = presets
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("presets file not found, using defaults", "path", cfg.PresetsPath)
		cfg.Presets = DefaultPresets()
	default:
		return nil, err
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint for the chart browser.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
