// Package service orchestrates tenant messaging sessions.
//
// Manager owns the set of live sessions: it creates them (idempotently,
// recording each tenant in the Registry), restores them on boot, and
// removes them. Each session is a Handle, a small state machine driven by
// transport events:
//
//	Pending ──qr──▶ Authenticating ──ready / session_persisted──▶ Ready
//	   └───────────────ready (resumed session)───────────────────▶ Ready
//	any ──destroy──▶ Destroyed
//
// Outbound sends are gated twice: the handle must be Ready, and the peer
// must have messaged the tenant before (ContactLedger).
package service
