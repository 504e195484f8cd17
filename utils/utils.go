// Package utils provides utility functions for the application.
package utils

// ToPtr returns a pointer to v; used for optional model fields
func ToPtr[T any](v T) *T {
	return &v
}

// IsTrue reports whether an optional boolean flag is set and true
func IsTrue(b *bool) bool {
	return b != nil && *b
}
