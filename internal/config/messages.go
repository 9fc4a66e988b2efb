package config

// Messages shown to remote callers
const (
	// MsgEmptyOperationID is returned when a wait is issued with a blank id
	MsgEmptyOperationID = "operation id is empty; pass the id returned when the operation was started"

	// MsgOperationNotFound explains why an id could not be resolved. Format arg: operation id
	MsgOperationNotFound = "No operation found with ID '%s'. It may have completed long ago and been " +
		"cleaned from history, the ID may be wrong, or the operation never existed. " +
		"Use the status tool to list known operations."

	// MsgOperationTimedOut is the stored failure text of a timed-out operation
	MsgOperationTimedOut = "Operation timed out"

	// MsgOperationCancelled is the stored failure text of a cancelled operation
	MsgOperationCancelled = "Operation was cancelled"

	// MsgWaitTimedOut is prefixed to wait output when the group timeout expires. Format arg: seconds
	MsgWaitTimedOut = "Wait timed out after %d seconds"

	// MsgLockGuidance follows a wait that timed out with operations still running
	MsgLockGuidance = "Operations still running after a wait timeout are often blocked on a cargo build lock " +
		"(target/**/.cargo-lock) held by another cargo process. Check status, cancel the stuck operation, " +
		"or run cargo_lock_remediation for the working directory."

	// MsgWorkingDirRequired is returned when a cargo tool is called without a directory
	MsgWorkingDirRequired = "working_directory is required and must be an existing directory"

	// MsgShellPoolDisabled is logged when pooling is switched off
	MsgShellPoolDisabled = "shell pooling is disabled"
)
