// Package buildinfo exposes version information for wamesh-server.
//
// Release builds inject values through ldflags:
//
//	go build -ldflags "-X github.com/yndnr/wamesh-go/internal/infra/buildinfo.Version=v1.2.0"
//
// Fields left unset fall back to what the Go toolchain embedded in the
// binary (module version, VCS revision and time).
package buildinfo
