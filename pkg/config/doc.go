// Package config loads and validates the expectd server configuration and
// the expectation initializer files referenced from it. Configuration is
// YAML; every field has a default so an empty file is a valid configuration.
package config
