package ai

// Client wraps the external text-completion capability. Calls are blocking;
// callers that need timeouts wrap them at the HTTP client level.
type Client interface {
	// Complete sends a system+user chat turn and returns the raw assistant text.
	Complete(system, user string, temperature float64, maxTokens int) (string, error)
}
