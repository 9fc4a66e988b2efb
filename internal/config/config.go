package config

import (
	"errors"
	"fmt"
	"time"
)

// MonitorConfig holds configuration for the operation monitor
type MonitorConfig struct {
	// DefaultTimeout applies to operations registered without a timeout
	DefaultTimeout time.Duration `toml:"default_timeout"`
	// CleanupInterval is how often the timeout/eviction sweep runs
	CleanupInterval time.Duration `toml:"cleanup_interval"`
	// MaxLiveOperations is the live-map ceiling
	MaxLiveOperations int `toml:"max_live_operations"`
	// MaxHistory is the completion-history ceiling
	MaxHistory int `toml:"max_history"`
	// PollInterval is the wait loop granularity
	PollInterval time.Duration `toml:"poll_interval"`
	// AutoCleanup starts the background sweep when the monitor is started
	AutoCleanup bool `toml:"auto_cleanup"`
}

// DefaultMonitorConfig returns default configuration for the operation monitor
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		DefaultTimeout:    DefaultOperationTimeout,
		CleanupInterval:   DefaultCleanupInterval,
		MaxLiveOperations: DefaultMaxLiveOperations,
		MaxHistory:        DefaultMaxHistory,
		PollInterval:      DefaultWaitPollInterval,
		AutoCleanup:       true,
	}
}

// ShellPoolConfig holds configuration for pre-warmed shell pools
type ShellPoolConfig struct {
	// Enabled switches pooling on; when off every command spawns directly
	Enabled bool `toml:"enabled"`
	// ShellsPerDirectory is the idle capacity of each per-directory pool
	ShellsPerDirectory int `toml:"shells_per_directory"`
	// MaxTotalShells is the checkout ceiling across all pools
	MaxTotalShells int `toml:"max_total_shells"`
	// ShellIdleTimeout is how long a pool may go untouched before it is reaped
	ShellIdleTimeout time.Duration `toml:"shell_idle_timeout"`
	// PoolCleanupInterval is how often idle pools are reaped
	PoolCleanupInterval time.Duration `toml:"pool_cleanup_interval"`
	// ShellSpawnTimeout bounds the readiness handshake
	ShellSpawnTimeout time.Duration `toml:"shell_spawn_timeout"`
	// CommandTimeout is the default timeout of a pooled command
	CommandTimeout time.Duration `toml:"command_timeout"`
	// HealthCheckInterval is how often idle shells are health checked
	HealthCheckInterval time.Duration `toml:"health_check_interval"`
	// HealthCheckTimeout bounds one health check round trip
	HealthCheckTimeout time.Duration `toml:"health_check_timeout"`
	// MaxStrayLines bounds non-protocol output skipped while reading a response
	MaxStrayLines int `toml:"max_stray_lines"`
	// WorkerCommand is the argv used to spawn a shell worker.
	// Empty means re-executing the current binary with "shell-worker".
	WorkerCommand []string `toml:"worker_command"`
}

// DefaultShellPoolConfig returns default configuration for shell pools
func DefaultShellPoolConfig() ShellPoolConfig {
	return ShellPoolConfig{
		Enabled:             true,
		ShellsPerDirectory:  DefaultShellsPerDirectory,
		MaxTotalShells:      DefaultMaxTotalShells,
		ShellIdleTimeout:    DefaultShellIdleTimeout,
		PoolCleanupInterval: DefaultPoolCleanupInterval,
		ShellSpawnTimeout:   DefaultShellSpawnTimeout,
		CommandTimeout:      DefaultCommandTimeout,
		HealthCheckInterval: DefaultHealthCheckInterval,
		HealthCheckTimeout:  DefaultHealthCheckTimeout,
		MaxStrayLines:       DefaultMaxStrayLines,
	}
}

// ServerConfig holds configuration for the remote-facing surfaces
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	// EnableWait registers the blocking wait tool
	EnableWait bool `toml:"enable_wait"`
	// WaitTimeout is the default timeout of one wait request
	WaitTimeout time.Duration `toml:"wait_timeout"`
	// HTTPMode serves MCP over SSE instead of stdio
	HTTPMode bool   `toml:"http_mode"`
	HTTPPort string `toml:"http_port"`
	// GRPCPort enables the operations gRPC API when non-empty
	GRPCPort string `toml:"grpc_port"`
}

// DefaultServerConfig returns default configuration for the server surfaces
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Name:        "async-cargo-mcp",
		Version:     "0.1.0",
		EnableWait:  true,
		WaitTimeout: DefaultWaitTimeout,
		HTTPPort:    DefaultHTTPPort,
	}
}

// Config is the full server configuration
type Config struct {
	Monitor   MonitorConfig   `toml:"monitor"`
	ShellPool ShellPoolConfig `toml:"shell_pool"`
	Server    ServerConfig    `toml:"server"`
}

// Default returns the complete default configuration
func Default() Config {
	return Config{
		Monitor:   DefaultMonitorConfig(),
		ShellPool: DefaultShellPoolConfig(),
		Server:    DefaultServerConfig(),
	}
}

// Validate rejects configurations the background loops cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Monitor.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("monitor.default_timeout must be positive, got %v", c.Monitor.DefaultTimeout))
	}
	if c.Monitor.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.cleanup_interval must be positive, got %v", c.Monitor.CleanupInterval))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.poll_interval must be positive, got %v", c.Monitor.PollInterval))
	}
	if c.Monitor.MaxLiveOperations < 0 || c.Monitor.MaxHistory < 0 {
		errs = append(errs, errors.New("monitor size ceilings cannot be negative"))
	}
	if c.ShellPool.Enabled {
		if c.ShellPool.MaxTotalShells <= 0 {
			errs = append(errs, fmt.Errorf("shell_pool.max_total_shells must be positive, got %d", c.ShellPool.MaxTotalShells))
		}
		if c.ShellPool.ShellsPerDirectory < 0 {
			errs = append(errs, fmt.Errorf("shell_pool.shells_per_directory cannot be negative, got %d", c.ShellPool.ShellsPerDirectory))
		}
		if c.ShellPool.PoolCleanupInterval <= 0 || c.ShellPool.HealthCheckInterval <= 0 {
			errs = append(errs, errors.New("shell_pool sweep intervals must be positive"))
		}
	}
	if c.Server.WaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.wait_timeout must be positive, got %v", c.Server.WaitTimeout))
	}
	return errors.Join(errs...)
}
