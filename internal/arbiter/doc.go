// Package arbiter owns the active-device slots: per audio direction
// (output, input), at most one device system-wide carries audio.
//
// Every request to change the active device funnels through the
// Arbiter — profile managers and API handlers never touch the slots
// directly — which is what enforces the single-active-device invariant
// and keeps retries idempotent.
//
// # Decision flow
//
//	SetActiveDevice(target, requested profiles)
//	    │
//	    ├─ resolve target group (empty target = deactivate)
//	    ├─ already active?            → strict no-op
//	    ├─ per direction (output, input):
//	    │     old device vs new device, carrying profile tie-break:
//	    │     explicit request > previously active > stored preference
//	    │     > any connected audio profile
//	    │     on change → AudioRouter.ActiveDeviceChanged with
//	    │     suppress-noisy and volume hints
//	    └─ registry bookkeeping + stack group commands
//
// A deactivation of a group with a tracked lost lead device finalises
// that device first: the mark clears and a terminal disconnect is
// synthesised through the coordinator, so its state machine completes.
//
// # Thread Safety
//
// SetActiveDevice, RemoveActiveDevice and the other mutating entry
// points must run on the dispatch loop. ActiveDevice, ActiveGroup and
// NoteVolume are safe from any goroutine.
package arbiter
