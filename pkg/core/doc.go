// Package core defines the shared language of the leapmap system.
//
// This package contains:
//   - Statement kinds and database type hints
//   - Error kinds raised by every layer (configuration, binding, mapping, execution, cache)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
