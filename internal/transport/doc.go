// Package transport defines the messaging transport capability that
// session handles drive, plus the event plumbing shared by drivers.
//
// A Transport brings a tenant's account online (resuming from a stored
// session blob when one exists, otherwise by QR pairing), sends text
// messages and reports lifecycle events. Drivers live in sub-packages:
//
//   - loopback: in-process transport for development and tests
//   - wsbridge: WebSocket bridge to a browser-automation sidecar
package transport
