package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/profile"
)

// Logger defines the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Adapter lifecycle states. BLE comes up first and goes down last;
// classic profiles ride on top of an established BLE layer.
const (
	StateOff               = "off"
	StateTurningOnBle      = "turning_on_ble"
	StateBleOn             = "ble_on"
	StateTurningOnClassic  = "turning_on_classic"
	StateOn                = "on"
	StateTurningOffClassic = "turning_off_classic"
	StateTurningOffBle     = "turning_off_ble"
)

const (
	eventTurnOnBle      = "turn_on_ble"
	eventBleStarted     = "ble_started"
	eventTurnOnClassic  = "turn_on_classic"
	eventProfilesReady  = "profiles_ready"
	eventTurnOffClassic = "turn_off_classic"
	eventClassicStopped = "classic_stopped"
	eventTurnOffBle     = "turn_off_ble"
	eventBleStopped     = "ble_stopped"
)

// Recorder receives adapter state transitions for telemetry.
type Recorder interface {
	WriteAdapterState(state string)
}

// Coordinator sequences startup and shutdown of the profile modules and
// fans adapter-level events (bond state changes) out to them.
//
// The adapter lifecycle is a state machine:
//
//	off → turning_on_ble → ble_on → turning_on_classic → on
//	on → turning_off_classic → ble_on → turning_off_ble → off
//
// The turning_on_classic → on gate requires every registered profile to
// report running exactly once. Duplicate reports, or reports from
// profiles that were never registered, are logged and ignored; the
// coordinator tolerates out-of-order notifications from the stack.
//
// All mutation must run on the dispatch loop.
type Coordinator struct {
	devices *device.Registry
	machine *fsm.FSM

	mu         sync.RWMutex
	registered map[profile.ID]*profile.Manager
	running    map[profile.ID]bool

	recorder Recorder
	logger   Logger
}

// NewCoordinator creates a coordinator in the off state.
func NewCoordinator(devices *device.Registry) *Coordinator {
	c := &Coordinator{
		devices:    devices,
		registered: make(map[profile.ID]*profile.Manager),
		running:    make(map[profile.ID]bool),
		logger:     noopLogger{},
	}
	c.machine = fsm.NewFSM(
		StateOff,
		fsm.Events{
			{Name: eventTurnOnBle, Src: []string{StateOff}, Dst: StateTurningOnBle},
			{Name: eventBleStarted, Src: []string{StateTurningOnBle}, Dst: StateBleOn},
			{Name: eventTurnOnClassic, Src: []string{StateBleOn}, Dst: StateTurningOnClassic},
			{Name: eventProfilesReady, Src: []string{StateTurningOnClassic}, Dst: StateOn},
			{Name: eventTurnOffClassic, Src: []string{StateOn}, Dst: StateTurningOffClassic},
			{Name: eventClassicStopped, Src: []string{StateTurningOffClassic}, Dst: StateBleOn},
			{Name: eventTurnOffBle, Src: []string{StateBleOn}, Dst: StateTurningOffBle},
			{Name: eventBleStopped, Src: []string{StateTurningOffBle}, Dst: StateOff},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Info("adapter state changed", "from", e.Src, "to", e.Dst)
				if c.recorder != nil {
					c.recorder.WriteAdapterState(e.Dst)
				}
			},
		},
	)
	return c
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetRecorder wires the telemetry sink.
func (c *Coordinator) SetRecorder(r Recorder) {
	c.recorder = r
}

// State returns the adapter's current lifecycle state.
func (c *Coordinator) State() string {
	return c.machine.Current()
}

// Register adds a profile manager to the coordinator. Registration is
// only valid before the profile reports running.
//
// Returns:
//   - error: ErrAlreadyRegistered if the profile was registered before
func (c *Coordinator) Register(m *profile.Manager) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.registered[m.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.ID())
	}
	c.registered[m.ID()] = m
	m.SetPeers(c)
	c.logger.Debug("profile registered", "profile", m.ID())
	return nil
}

// Profile returns the registered manager for the profile, nil when not
// registered.
func (c *Coordinator) Profile(id profile.ID) *profile.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered[id]
}

// Profiles returns the registered profile identifiers.
func (c *Coordinator) Profiles() []profile.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]profile.ID, 0, len(c.registered))
	for id := range c.registered {
		ids = append(ids, id)
	}
	return ids
}

// TurnOn starts the BLE-level bring-up.
//
// Returns:
//   - error: ErrInvalidState unless the adapter is off
func (c *Coordinator) TurnOn() error {
	return c.fire(eventTurnOnBle)
}

// TurnOff starts the shutdown sequence from the on state.
//
// Returns:
//   - error: ErrInvalidState unless the adapter is on
func (c *Coordinator) TurnOff() error {
	return c.fire(eventTurnOffClassic)
}

// ProfileStarted records a profile module reporting running. A report
// from an unregistered profile, or a second report from the same
// profile, is logged and ignored. When every registered profile has
// reported, the pending lifecycle gate opens.
//
// Must run on the dispatch loop.
func (c *Coordinator) ProfileStarted(id profile.ID) {
	c.mu.Lock()
	if _, ok := c.registered[id]; !ok {
		c.mu.Unlock()
		c.logger.Warn("running report from unregistered profile", "profile", id)
		return
	}
	if c.running[id] {
		c.mu.Unlock()
		c.logger.Warn("duplicate running report", "profile", id)
		return
	}
	c.running[id] = true
	c.mu.Unlock()

	c.logger.Info("profile running", "profile", id)
	c.advanceStartup(id)
}

// ProfileStopped records a profile module reporting stopped. A profile
// that was never running is logged and ignored. Stopping the last
// running profile other than the baseline scan capability triggers the
// BLE-level stop.
//
// Must run on the dispatch loop.
func (c *Coordinator) ProfileStopped(id profile.ID) {
	c.mu.Lock()
	if !c.running[id] {
		c.mu.Unlock()
		c.logger.Warn("stopped report from profile that was not running", "profile", id)
		return
	}
	delete(c.running, id)
	classicLeft := 0
	for running := range c.running {
		if running != profile.GATT {
			classicLeft++
		}
	}
	gattLeft := c.running[profile.GATT]
	c.mu.Unlock()

	c.logger.Info("profile stopped", "profile", id)

	if c.machine.Current() == StateTurningOffClassic && classicLeft == 0 {
		c.mustFire(eventClassicStopped)
		// The baseline capability comes down last.
		c.mustFire(eventTurnOffBle)
		if !gattLeft {
			c.mustFire(eventBleStopped)
		}
		return
	}
	if c.machine.Current() == StateTurningOffBle && !gattLeft {
		c.mustFire(eventBleStopped)
	}
}

// HandleConnectionState routes a connection_state_changed stack event
// to the profile it names. Events for unregistered profiles are logged
// and dropped.
//
// Must run on the dispatch loop.
func (c *Coordinator) HandleConnectionState(id profile.ID, address string, state profile.ConnectionState, reason int) {
	m := c.Profile(id)
	if m == nil {
		c.logger.Warn("connection event for unregistered profile", "profile", id)
		return
	}
	m.HandleConnectionState(address, state, reason)
}

// HandleGroupStatus routes a group_status_changed stack event to the
// profile it names.
//
// Must run on the dispatch loop.
func (c *Coordinator) HandleGroupStatus(id profile.ID, groupID int, active bool) {
	m := c.Profile(id)
	if m == nil {
		c.logger.Warn("group event for unregistered profile", "profile", id)
		return
	}
	m.HandleGroupStatus(groupID, active)
}

// HandleBondStateChanged records a bond_state_changed stack event and
// fans it out. Losing the bond tears the device down: every profile
// synthesises a terminal disconnect and the descriptor is removed
// unless the removal guard vetoes it.
//
// Must run on the dispatch loop.
func (c *Coordinator) HandleBondStateChanged(address string, state device.BondState) {
	if state != device.BondNone {
		if _, err := c.devices.Upsert(address); err != nil {
			c.logger.Warn("bond event for invalid address", "error", err)
			return
		}
	}
	if err := c.devices.SetBondState(address, state); err != nil {
		c.logger.Debug("bond state update failed", "address", address, "error", err)
		return
	}

	if state != device.BondNone {
		return
	}

	c.SynthesizeDisconnect(address)
	if err := c.devices.Remove(address); err != nil {
		c.logger.Warn("unbonded device not removed", "address", address, "error", err)
	}
}

// SynthesizeDisconnect fans a synthetic terminal disconnect out to
// every registered profile manager.
func (c *Coordinator) SynthesizeDisconnect(address string) {
	for _, m := range c.managers() {
		m.SynthesizeDisconnect(address)
	}
}

// AnyConnected reports whether any profile other than except holds a
// connection to the device. Satisfies the managers' Peers interface.
func (c *Coordinator) AnyConnected(address string, except profile.ID) bool {
	for _, m := range c.managers() {
		if m.ID() == except {
			continue
		}
		if m.ConnectionState(address) == profile.StateConnected {
			return true
		}
	}
	return false
}

// Connected reports whether the device is connected on the profile.
// Satisfies the arbiter's Profiles interface.
func (c *Coordinator) Connected(address string, id profile.ID) bool {
	m := c.Profile(id)
	return m != nil && m.ConnectionState(address) == profile.StateConnected
}

// Directions returns the directions the profile can carry for the
// device. Satisfies the arbiter's Profiles interface.
func (c *Coordinator) Directions(address string, id profile.ID) device.Direction {
	m := c.Profile(id)
	if m == nil {
		return device.DirectionNone
	}
	return m.Directions(address)
}

// advanceStartup opens whichever lifecycle gate the report completes.
func (c *Coordinator) advanceStartup(id profile.ID) {
	switch c.machine.Current() {
	case StateTurningOnBle:
		// The baseline scan capability brings the BLE layer up; the
		// classic phase starts immediately after.
		if id == profile.GATT || !c.isRegistered(profile.GATT) {
			c.mustFire(eventBleStarted)
			c.mustFire(eventTurnOnClassic)
			if c.allRunning() {
				c.mustFire(eventProfilesReady)
			}
		}
	case StateTurningOnClassic:
		if c.allRunning() {
			c.mustFire(eventProfilesReady)
		}
	default:
		c.logger.Debug("running report outside a startup phase",
			"profile", id,
			"state", c.machine.Current(),
		)
	}
}

func (c *Coordinator) isRegistered(id profile.ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.registered[id]
	return ok
}

func (c *Coordinator) allRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for id := range c.registered {
		if !c.running[id] {
			return false
		}
	}
	return true
}

func (c *Coordinator) managers() []*profile.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*profile.Manager, 0, len(c.registered))
	for _, m := range c.registered {
		out = append(out, m)
	}
	return out
}

func (c *Coordinator) fire(event string) error {
	if !c.machine.Can(event) {
		return fmt.Errorf("%w: %s in %s", ErrInvalidState, event, c.machine.Current())
	}
	return c.machine.Event(context.Background(), event)
}

// mustFire drives a transition the caller has already gated; a refusal
// indicates an event race and is logged, not fatal.
func (c *Coordinator) mustFire(event string) {
	if err := c.fire(event); err != nil {
		c.logger.Warn("lifecycle transition refused", "event", event, "error", err)
	}
}
