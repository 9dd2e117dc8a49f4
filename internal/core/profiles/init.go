// Package profiles registers the built-in extraction profiles with the core registry.
// Import this package to ensure all profiles are registered.
package profiles

// This file exists to provide a single import point.
// Each profile file uses init() to register its profiles.
