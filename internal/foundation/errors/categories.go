package errors

import "maps"

// ErrorCategory groups errors by the pipeline stage that produced them.
type ErrorCategory string

const (
	// CategoryConfig covers unreadable or malformed configuration.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// CategoryFileSystem covers reading sources and writing outputs.
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryTransform  ErrorCategory = "transform"

	// CategoryOrchestration covers task graph and watch loop failures.
	CategoryOrchestration ErrorCategory = "orchestration"
	CategoryRuntime       ErrorCategory = "runtime"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the command
	SeverityError   ErrorSeverity = "error"   // Fails the current step
	SeverityWarning ErrorSeverity = "warning" // Step continues, output may be incomplete
)

// ErrorContext carries structured key/value details for logging.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c[key]
	return value, exists
}

// GetString retrieves a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	if value, exists := c.Get(key); exists {
		if str, ok := value.(string); ok {
			return str, true
		}
	}
	return "", false
}

// Merge combines two contexts, with other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	result := make(ErrorContext, len(c)+len(other))
	maps.Copy(result, c)
	maps.Copy(result, other)
	return result
}
