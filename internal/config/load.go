package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables that override file and default settings
const (
	EnvTimeout    = "CARGO_MCP_TIMEOUT"
	EnvShellPool  = "CARGO_MCP_SHELL_POOL"
	EnvMaxShells  = "CARGO_MCP_MAX_SHELLS"
	EnvEnableWait = "CARGO_MCP_ENABLE_WAIT"
	EnvGRPCPort   = "GRPC_PORT"
	EnvHTTPPort   = "HTTP_PORT"
)

// Load builds a Config from defaults, an optional TOML file and the environment.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return cfg, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
		}
	}

	ApplyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with values found through getenv
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if secs := getEnvInt(getenv, EnvTimeout, 0); secs > 0 {
		cfg.Monitor.DefaultTimeout = time.Duration(secs) * time.Second
		cfg.ShellPool.CommandTimeout = cfg.Monitor.DefaultTimeout
	}
	if v := getenv(EnvShellPool); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.ShellPool.Enabled = enabled
		}
	}
	if n := getEnvInt(getenv, EnvMaxShells, 0); n > 0 {
		cfg.ShellPool.MaxTotalShells = n
	}
	if v := getenv(EnvEnableWait); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Server.EnableWait = enabled
		}
	}
	cfg.Server.GRPCPort = getEnv(getenv, EnvGRPCPort, cfg.Server.GRPCPort)
	cfg.Server.HTTPPort = getEnv(getenv, EnvHTTPPort, cfg.Server.HTTPPort)
}

func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(getenv func(string) string, key string, defaultValue int) int {
	if value := getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
