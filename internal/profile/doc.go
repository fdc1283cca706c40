// Package profile drives per-device profile connections for bluecore.
//
// One Manager exists per profile module (A2DP, HFP, LE Audio, hearing
// aid, CSIP). Each manager owns the connection state machines for its
// profile, one per device, and keeps the device and group registries
// consistent with them: the first connected member flips a group
// connected, the last terminal disconnect flips it back and withdraws
// the active device when the group held a slot.
//
// # Architecture
//
//	 stack bridge events                      explicit requests
//	(connection_state_changed)              (Connect / Disconnect)
//	            │                                     │
//	            ▼                                     ▼
//	┌──────────────────────────────────────────────────────────────┐
//	│                          Manager                             │
//	│                                                              │
//	│   ┌────────────────────┐      guards: bond state,            │
//	│   │ machine (per dev)  │      connection policy              │
//	│   │  disconnected      │                                     │
//	│   │  connecting        │      lost-lead recovery:            │
//	│   │  connected         │      unexpected drop with live      │
//	│   │  disconnecting     │      siblings is tracked, not       │
//	│   └────────────────────┘      propagated                     │
//	└──────┬──────────────┬────────────────────┬──────────────────-┘
//	       │              │                    │
//	       ▼              ▼                    ▼
//	 device/group     Commander          ActiveDeviceHandler
//	  registries    (stack commands)         (arbiter)
//
// # Lost-Lead Recovery
//
// When a member of an active group drops unexpectedly while at least
// one sibling stays connected, the manager marks it as the group's lost
// lead instead of tearing its state down. The group stays active, the
// audio framework is not disturbed, and the member's state machine
// keeps its connected state. The mark resolves one of two ways: the
// device reconnects (mark cleared, siblings fanned out), or the group
// deactivates (mark cleared, a terminal disconnect is synthesised so
// the machine's bookkeeping completes).
//
// # Thread Safety
//
// All event handling and mutation must run on the dispatch loop.
// ConnectionState, ConnectedDevices and Directions are safe snapshot
// queries from any goroutine.
package profile
