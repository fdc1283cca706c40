// Package stack bridges the MQTT event/command bus between this
// process and the native Bluetooth stack.
//
// Traffic flows in two directions over distinct topic trees:
//
//	native stack ──bluecore/event/<type>──▶ Bridge ──▶ dispatch loop
//	                                                      │
//	                               registries, coordinator, arbiter
//	                                                      │
//	Commands ◀──profile.Commander / GroupCommander / Framework──┘
//	   │
//	   └──bluecore/command/{profile,group,adapter}──▶ native stack
//
// The Bridge decodes each event on the MQTT delivery goroutine and
// posts the resulting state change onto the dispatch loop, so every
// registry mutation in the process is serialised through one queue.
// Malformed payloads are rejected before anything is posted.
//
// Commands is the outbound half: a thin publisher that renders JSON
// envelopes with unique IDs. It implements the command-side interfaces
// the domain packages declare, keeping them transport-agnostic.
package stack
