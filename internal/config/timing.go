package config

import "time"

// Default timing configurations used throughout the server
const (
	// DefaultOperationTimeout is applied to operations registered without an explicit timeout
	DefaultOperationTimeout = 300 * time.Second

	// DefaultCleanupInterval is how often the operation sweep runs.
	// Kept coarse so operations stay discoverable across long client sessions.
	DefaultCleanupInterval = 6 * time.Hour

	// DefaultWaitPollInterval is how often a waiter re-checks a live operation
	DefaultWaitPollInterval = 100 * time.Millisecond

	// DefaultWaitTimeout bounds a single wait request from a remote caller
	DefaultWaitTimeout = 300 * time.Second

	// DefaultShellIdleTimeout is how long a pool may go untouched before it is reaped
	DefaultShellIdleTimeout = 30 * time.Minute

	// DefaultPoolCleanupInterval is how often idle pools are reaped
	DefaultPoolCleanupInterval = 5 * time.Minute

	// DefaultShellSpawnTimeout bounds the readiness handshake of a new shell
	DefaultShellSpawnTimeout = 5 * time.Second

	// DefaultCommandTimeout is the default timeout for a pooled command
	DefaultCommandTimeout = 300 * time.Second

	// DefaultHealthCheckInterval is how often idle shells are health checked
	DefaultHealthCheckInterval = 60 * time.Second

	// DefaultHealthCheckTimeout bounds a single HEALTH_CHECK round trip
	DefaultHealthCheckTimeout = 2 * time.Second

	// DefaultShutdownTimeout bounds graceful gRPC shutdown
	DefaultShutdownTimeout = 2 * time.Second
)

// Default sizes and capacities
const (
	// DefaultMaxLiveOperations is the live-map ceiling enforced by the sweep
	DefaultMaxLiveOperations = 1000

	// DefaultMaxHistory is the completion-history ceiling, larger than the live map
	DefaultMaxHistory = 5000

	// DefaultShellsPerDirectory is the idle shell capacity of one pool
	DefaultShellsPerDirectory = 2

	// DefaultMaxTotalShells is the global checkout ceiling across all pools
	DefaultMaxTotalShells = 20

	// DefaultMaxStrayLines is how many non-protocol lines a shell may emit before a response
	DefaultMaxStrayLines = 100
)

// Default network settings
const (
	DefaultGRPCPort = "50060"
	DefaultHTTPPort = "8080"
)
