package errors

import "sort"

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Configuration Errors (S001-S019)
	// ============================================

	"S001": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "switchmap.json could not be read or is not valid JSON.",
	},
	"S002": {
		Category: CategoryConfig,
		Message:  "Invalid shape policy",
		Detail:   `The shape policy must be "strict" or "lenient".`,
	},
	"S003": {
		Category: CategoryConfig,
		Message:  "Invalid log level",
		Detail:   `The log level must be one of "debug", "info", "warn" or "error".`,
	},
	"S004": {
		Category: CategoryConfig,
		Message:  "Invalid log format",
		Detail:   `The log format must be "text" or "json".`,
	},
	"S005": {
		Category: CategoryConfig,
		Message:  "Invalid server address",
		Detail:   "The server address must be a host:port pair.",
	},
	"S006": {
		Category: CategoryConfig,
		Message:  "Invalid demo delay",
		Detail:   "The demo delay must be a positive Go duration such as \"50ms\".",
	},
	"S007": {
		Category: CategoryConfig,
		Message:  "Invalid metrics namespace",
		Detail:   "The metrics namespace may only contain letters, digits and underscores.",
	},

	// ============================================
	// CLI Errors (S020-S039)
	// ============================================

	"S020": {
		Category: CategoryCLI,
		Message:  "Invalid argument",
		Detail:   "A command argument could not be parsed.",
	},

	// ============================================
	// Server Errors (S040-S059)
	// ============================================

	"S040": {
		Category: CategoryServer,
		Message:  "Server failed",
		Detail:   "The inspector server stopped with an error.",
	},
	"S041": {
		Category: CategoryServer,
		Message:  "Event loop closed",
		Detail:   "The inspector's event loop is no longer accepting work.",
	},

	// ============================================
	// Runtime Errors (S060-S079)
	// ============================================

	"S060": {
		Category: CategoryRuntime,
		Message:  "Projection shape changed",
		Detail:   "A derivation returned a different key set than the first derivation while the shape policy is strict.",
	},
	"S061": {
		Category: CategoryRuntime,
		Message:  "Initial derivation failed",
		Detail:   "The first projection panicked on the event loop, so the pipeline has no output.",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
