// Package logger provides structured logging for wamesh.
//
// It wraps log/slog with a small Logger interface, a process-wide level
// that can be changed at runtime, and attribute redaction so that QR
// payloads, session blobs and full phone numbers never reach the logs.
//
//   - logger.go: construction, levels, default logger
//   - redact.go: sensitive attribute handling
package logger
