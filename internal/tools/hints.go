package tools

import (
	"fmt"
	"time"
)

// Guidance appended to tool descriptions
const (
	AsyncAddendum = "Always use these MCP tools; do not run cargo in a terminal. For operations longer than a second, " +
		"set enable_async_notification=true and call wait with specific operation_ids to collect results."
	SyncAddendum = "Always use these MCP tools; do not run cargo in a terminal."
)

// ConcurrencyHintThreshold is how soon after a start a first wait counts as premature
const ConcurrencyHintThreshold = 5 * time.Second

// StatusPollingThreshold is how many status calls for one id trigger the polling hint
const StatusPollingThreshold = 3

const toolHintTemplate = "\n\n### ASYNC CARGO OPERATION: %[1]s (ID: %[2]s)\n" +
	"1. The operation is running in the background. Do not assume it is complete.\n" +
	"2. What to do now (pick one):\n" +
	" - Update the plan with what is already achieved and list the next concrete steps.\n" +
	" - Do unrelated code, tests, or docs not blocked by this `%[1]s`.\n" +
	" - If you will need these results soon, schedule a later `status` check instead of polling.\n" +
	" - If you have nothing else to do and need results to proceed, use `wait` with operation_ids=['%[2]s'].\n" +
	"3. Tips:\n" +
	" - Prefer `status` for non-blocking checks; avoid tight polling.\n" +
	" - Batch actions: start other needed tools first, then wait for all IDs at once.\n" +
	" - Always specify explicit operation IDs; never pass an empty list.\n" +
	" - You will also receive a completion notification via progress updates.\n\n" +
	"Next: Continue useful work now. Check `status` later, or `wait` only if you are blocked.\n\n"

// ToolHint is returned with every async start
func ToolHint(operationID, operationType string) string {
	return fmt.Sprintf(toolHintTemplate, operationType, operationID)
}

// ConcurrencyHint nudges a caller that waited almost immediately after
// starting an operation. efficiency is the share of the operation's runtime
// the caller spent on other work.
func ConcurrencyHint(operationID string, gap time.Duration, efficiency float64) string {
	return fmt.Sprintf("CONCURRENCY HINT: You waited for '%s' after only %.1fs (efficiency: %.0f%%). "+
		"Consider performing other tasks while operations run in the background.",
		operationID, gap.Seconds(), efficiency)
}

// StatusPollingHint is shown after repeated status calls for one id
func StatusPollingHint(count int, operationID string) string {
	return fmt.Sprintf("STATUS POLLING DETECTED: You've called status %d times for operation '%s'. "+
		"Instead of repeatedly polling, consider using 'wait' with enable_async_notification=true "+
		"for automatic results via progress notifications.\n", count, operationID)
}

// FormatClock renders t as H:MM:SS in local time, 24-hour, without a leading zero
func FormatClock(t time.Time) string {
	t = t.Local()
	return fmt.Sprintf("%d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}
