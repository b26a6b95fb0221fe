// Package errors provides the classified error type shared by every build step.
//
// Each error carries a category (config, validation, filesystem, transform,
// orchestration, runtime, internal), a severity and structured context. The
// CLI adapter maps categories to process exit codes.
//
// Example usage:
//
//	err := errors.WrapError(readErr, errors.CategoryFileSystem, "read stylesheet").
//		WithContext("path", path).
//		Build()
package errors
