package profile

import (
	"context"

	"github.com/looplab/fsm"
)

// FSM state and event names for one (device, profile) connection.
const (
	stateDisconnected  = "disconnected"
	stateConnecting    = "connecting"
	stateConnected     = "connected"
	stateDisconnecting = "disconnecting"

	eventConnectRequest    = "connect_request"
	eventDisconnectRequest = "disconnect_request"
	eventStackConnecting   = "stack_connecting"
	eventStackConnected    = "stack_connected"
	eventStackFailed       = "stack_failed"
	eventStackDisconnected = "stack_disconnected"
)

// machine is the connection state machine for one (device, profile)
// pair. At most one live instance exists per pair; the manager drops it
// once the connection reaches the terminal disconnected state and
// recreates it fresh on the next attempt.
//
//	disconnected --connect_request/stack_connecting--> connecting
//	connecting   --stack_connected-->                  connected
//	connecting   --stack_failed-->                     disconnected
//	connected    --disconnect_request-->               disconnecting
//	connected    --stack_disconnected-->               disconnected
//	disconnecting --stack_disconnected-->              disconnected
//
// A stack_connected from disconnected is allowed: the remote side may
// initiate the connection.
type machine struct {
	address string
	fsm     *fsm.FSM
}

func newMachine(address string) *machine {
	return &machine{
		address: address,
		fsm: fsm.NewFSM(
			stateDisconnected,
			fsm.Events{
				{Name: eventConnectRequest, Src: []string{stateDisconnected}, Dst: stateConnecting},
				{Name: eventStackConnecting, Src: []string{stateDisconnected}, Dst: stateConnecting},
				{Name: eventStackConnected, Src: []string{stateConnecting, stateDisconnected}, Dst: stateConnected},
				{Name: eventStackFailed, Src: []string{stateConnecting}, Dst: stateDisconnected},
				{Name: eventDisconnectRequest, Src: []string{stateConnected, stateConnecting}, Dst: stateDisconnecting},
				{Name: eventStackDisconnected, Src: []string{stateConnected, stateDisconnecting}, Dst: stateDisconnected},
			},
			fsm.Callbacks{},
		),
	}
}

// state maps the FSM's current state name to a ConnectionState.
func (m *machine) state() ConnectionState {
	switch m.fsm.Current() {
	case stateConnecting:
		return StateConnecting
	case stateConnected:
		return StateConnected
	case stateDisconnecting:
		return StateDisconnecting
	default:
		return StateDisconnected
	}
}

// fire drives one FSM event. Returns ErrInvalidTransition when the
// event does not apply in the current state.
func (m *machine) fire(event string) error {
	if !m.fsm.Can(event) {
		return ErrInvalidTransition
	}
	return m.fsm.Event(context.Background(), event)
}
