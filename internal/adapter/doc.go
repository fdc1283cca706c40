// Package adapter sequences the lifecycle of the profile modules and
// fans adapter-level stack events out to them.
//
// # Lifecycle
//
//	          TurnOn                              TurnOff
//	            │                                    │
//	            ▼                                    ▼
//	off ─▶ turning_on_ble ─▶ ble_on ─▶ turning_on_classic ─▶ on
//	 ▲                         │ ▲                            │
//	 └── turning_off_ble ◀─────┘ └──── turning_off_classic ◀──┘
//
// The BLE layer comes up first (baseline scan capability) and goes down
// last. The classic phase completes only when every registered profile
// has reported running exactly once; duplicate or unknown reports are
// tolerated and logged. Shutdown is symmetric: stopping the last
// running profile other than the baseline triggers the BLE-level stop.
//
// Beyond the lifecycle, the Coordinator is the fan-out hub for events
// that concern every profile: bond loss tears a device down across all
// managers, and the cross-profile queries the arbiter and the managers
// need (Connected, Directions, AnyConnected) are answered here.
package adapter
