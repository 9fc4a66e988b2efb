package config

// Tool names exposed over MCP
const (
	ToolBuild           = "build"
	ToolTest            = "test"
	ToolCheck           = "check"
	ToolRun             = "run"
	ToolDoc             = "doc"
	ToolClippy          = "clippy"
	ToolFmt             = "fmt"
	ToolClean           = "clean"
	ToolUpdate          = "update"
	ToolAdd             = "add"
	ToolRemove          = "remove"
	ToolTree            = "tree"
	ToolFix             = "fix"
	ToolBench           = "bench"
	ToolNextest         = "nextest"
	ToolAudit           = "audit"
	ToolVersion         = "version"
	ToolMetadata        = "metadata"
	ToolInstall         = "install"
	ToolUpgrade         = "upgrade"
	ToolBumpVersion     = "bump_version"
	ToolSearch          = "search"
	ToolSleep           = "sleep"
	ToolWait            = "wait"
	ToolStatus          = "status"
	ToolCancel          = "cancel"
	ToolLockRemediation = "cargo_lock_remediation"
)

// MethodProgressNotification is the MCP notification carrying progress updates
const MethodProgressNotification = "notifications/progress"

// CargoTools returns the tools that run a cargo subprocess
func CargoTools() []string {
	return []string{
		ToolBuild,
		ToolTest,
		ToolCheck,
		ToolRun,
		ToolDoc,
		ToolClippy,
		ToolFmt,
		ToolClean,
		ToolUpdate,
		ToolAdd,
		ToolRemove,
		ToolTree,
		ToolFix,
		ToolBench,
		ToolNextest,
		ToolAudit,
		ToolVersion,
		ToolMetadata,
		ToolInstall,
		ToolUpgrade,
		ToolBumpVersion,
		ToolSearch,
		ToolSleep,
	}
}

// AllTools returns a slice of all available tool names
func AllTools() []string {
	return append(CargoTools(),
		ToolWait,
		ToolStatus,
		ToolCancel,
		ToolLockRemediation,
	)
}
