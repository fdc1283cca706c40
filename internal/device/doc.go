// Package device provides the device and group registries for bluecore.
//
// The registries are the canonical in-memory catalogue of every remote
// Bluetooth device the adapter knows about and every coordinated set
// (earbud pair, hearing aid pair) those devices form. Descriptors are
// rebuilt from stack events at runtime; nothing here touches disk.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                        Device / Group Registries                 │
//	│                                                                  │
//	│  ┌──────────────────┐        ┌──────────────────────────────┐    │
//	│  │     Registry     │◀───────│        GroupRegistry         │    │
//	│  │  (registry.go)   │        │         (groups.go)          │    │
//	│  │                  │        │                              │    │
//	│  │ • descriptors    │        │ • set-level state            │    │
//	│  │ • group back-refs│        │ • lost-lead recovery marks   │    │
//	│  │ • removal guard  │        │ • ringtone context gating    │    │
//	│  └──────────────────┘        └──────────────────────────────┘    │
//	│           ▲                              ▲                       │
//	└───────────│──────────────────────────────│───────────────────────┘
//	            │                              │
//	  profile managers                 stack bridge events
//	  (connection bookkeeping)         (group_node_added, ...)
//
// # Key Types
//
//   - Device: canonical descriptor for one remote device
//   - Group: descriptor for one coordinated set
//   - Direction: audio direction bitmask (output, input)
//   - Context: LE Audio context type bitmask
//   - BondState: pairing state (none, bonding, bonded)
//
// # Usage
//
//	devices := device.NewRegistry()
//	devices.SetLogger(log)
//	groups := device.NewGroupRegistry(devices)
//	groups.SetLogger(log)
//
//	// Stack reported a new set member
//	groups.AddNode("AA:BB:CC:DD:EE:FF", 3)
//
//	// Profile manager marked the first member connected
//	devices.SetConnected("AA:BB:CC:DD:EE:FF", true)
//	groups.SetConnected(3, true)
//
// # Thread Safety
//
// Both registries are safe for concurrent use. All mutation flows
// through the dispatch loop; the internal mutexes exist so read-only
// snapshots (API handlers, arbitration reads) can be served from any
// goroutine. Returned descriptors are deep copies.
package device
