// Package config provides configuration management for the StoryForge Agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// Default values
	DefaultPort        = 8790
	DefaultLogLevel    = "info"
	DefaultDataDir     = ".storyforge"
	DefaultSegments    = 3
	DefaultClipSeconds = 20

	// Environment variable names
	EnvPort     = "STORYFORGE_PORT"
	EnvLogLevel = "STORYFORGE_LOG_LEVEL"
	EnvDataDir  = "STORYFORGE_DATA_DIR"
	EnvHeadless = "STORYFORGE_HEADLESS"

	// Generation provider environment variable names
	EnvProviderEndpoint   = "STORYFORGE_PROVIDER_ENDPOINT"
	EnvProviderCredential = "STORYFORGE_PROVIDER_CREDENTIAL"
	EnvDefaultSegments    = "STORYFORGE_DEFAULT_SEGMENTS"
	EnvDefaultClipSeconds = "STORYFORGE_DEFAULT_CLIP_SECONDS"
	EnvAllowedOrigins     = "STORYFORGE_ALLOWED_ORIGINS"

	// Database filename
	DBFilename = "storyforge.db"

	// Clip duration bounds accepted per segment (seconds)
	MinClipSeconds = 1
	MaxClipSeconds = 120
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ClipsDir() string
	Headless() bool
	ProviderEndpoint() string
	ProviderCredential() string
	DefaultSegments() int
	DefaultClipSeconds() int
	AllowedOrigins() []string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	providerEndpoint   string
	providerCredential string
	defaultSegments    int
	defaultClipSeconds int
	allowedOrigins     []string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:               DefaultPort,
		logLevel:           DefaultLogLevel,
		dataDir:            defaultDataDir(),
		defaultSegments:    DefaultSegments,
		defaultClipSeconds: DefaultClipSeconds,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h == "1" || h == "true" {
		cfg.headless = true
	}

	cfg.providerEndpoint = os.Getenv(EnvProviderEndpoint)
	cfg.providerCredential = os.Getenv(EnvProviderCredential)

	if s := os.Getenv(EnvDefaultSegments); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvDefaultSegments)
		}
		cfg.defaultSegments = n
	}

	if s := os.Getenv(EnvDefaultClipSeconds); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < MinClipSeconds || n > MaxClipSeconds {
			return nil, fmt.Errorf("invalid %s: must be between %d and %d", EnvDefaultClipSeconds, MinClipSeconds, MaxClipSeconds)
		}
		cfg.defaultClipSeconds = n
	}

	if o := os.Getenv(EnvAllowedOrigins); o != "" {
		for _, origin := range strings.Split(o, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.allowedOrigins = append(cfg.allowedOrigins, origin)
			}
		}
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ClipsDir returns the directory where locally generated clips are stored
func (c *EnvConfig) ClipsDir() string {
	return filepath.Join(c.dataDir, "clips")
}

// Headless reports whether the system tray should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// ProviderEndpoint returns the environment-supplied generation endpoint, if any
func (c *EnvConfig) ProviderEndpoint() string {
	return c.providerEndpoint
}

// ProviderCredential returns the environment-supplied provider credential, if any
func (c *EnvConfig) ProviderCredential() string {
	return c.providerCredential
}

func (c *EnvConfig) DefaultSegments() int {
	return c.defaultSegments
}

func (c *EnvConfig) DefaultClipSeconds() int {
	return c.defaultClipSeconds
}

// AllowedOrigins returns the web origins permitted to call the API
func (c *EnvConfig) AllowedOrigins() []string {
	return c.allowedOrigins
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
