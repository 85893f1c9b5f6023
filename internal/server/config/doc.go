// Package config defines the wamesh-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking secrets for logs
//
// Values are loaded through internal/infra/confloader.
package config
