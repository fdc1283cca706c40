package profile

import (
	"fmt"
	"sync"

	"github.com/bluecore-io/bluecore/internal/device"
)

// Logger defines the logging interface used by the manager.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PolicySource resolves persisted connection policies. Implemented by
// the storage repository.
type PolicySource interface {
	ConnectionPolicy(address string, profile ID) (Policy, error)
}

// Commander issues connect/disconnect commands towards the native
// stack. Implemented by the stack bridge.
type Commander interface {
	ConnectRequest(profile ID, address string) error
	DisconnectRequest(profile ID, address string) error
}

// ActiveDeviceHandler is told when the last connected member of an
// active group reaches the terminal disconnected state and the active
// device must be withdrawn. Implemented by the arbiter.
type ActiveDeviceHandler interface {
	RemoveActiveDevice(hasFallback bool)
}

// Peers reports connection state held by the other profile managers,
// so the aggregate device-connected flag survives a single profile
// dropping while another stays up. Implemented by the coordinator.
type Peers interface {
	AnyConnected(address string, except ID) bool
}

// Recorder receives connection transitions for telemetry. Implemented
// by the telemetry client.
type Recorder interface {
	WriteConnectionEvent(address, profile, state string, reason int)
}

// Manager owns the connection state machines for one profile and keeps
// the device and group registries consistent with them.
//
// All mutation is expected to arrive on the dispatch loop; the internal
// mutex only protects read-only snapshot queries served from other
// goroutines.
type Manager struct {
	id       ID
	devices  *device.Registry
	groups   *device.GroupRegistry
	policies PolicySource
	commands Commander

	machines map[string]*machine
	mu       sync.RWMutex

	active   ActiveDeviceHandler
	peers    Peers
	recorder Recorder
	logger   Logger
}

// NewManager creates a connection manager for one profile.
func NewManager(id ID, devices *device.Registry, groups *device.GroupRegistry, policies PolicySource, commands Commander) (*Manager, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, id)
	}
	return &Manager{
		id:       id,
		devices:  devices,
		groups:   groups,
		policies: policies,
		commands: commands,
		machines: make(map[string]*machine),
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetActiveDeviceHandler wires the arbiter's removal entry point.
func (m *Manager) SetActiveDeviceHandler(h ActiveDeviceHandler) {
	m.active = h
}

// SetPeers wires the coordinator's cross-profile connection view.
func (m *Manager) SetPeers(p Peers) {
	m.peers = p
}

// SetRecorder wires the telemetry sink.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// ID returns the profile this manager drives.
func (m *Manager) ID() ID {
	return m.id
}

// Connect starts a connect handshake for the device.
//
// Guards: the device must be bonded and its connection policy for this
// profile must not be forbidden. A device already connecting or
// connected fails with ErrInvalidTransition.
//
// Returns:
//   - error: ErrNotBonded, ErrPolicyForbidden, ErrInvalidTransition, or
//     a command/storage error
func (m *Manager) Connect(address string) error {
	d, err := m.devices.Get(address)
	if err != nil {
		return err
	}
	if d.BondState != device.Bonded {
		return fmt.Errorf("%w: %s is %s", ErrNotBonded, address, d.BondState)
	}

	policy, err := m.policies.ConnectionPolicy(address, m.id)
	if err != nil {
		return fmt.Errorf("resolving connection policy: %w", err)
	}
	if policy == PolicyForbidden {
		return fmt.Errorf("%w: %s/%s", ErrPolicyForbidden, address, m.id)
	}

	mach := m.getOrCreateMachine(address)
	if err := mach.fire(eventConnectRequest); err != nil {
		return err
	}

	if err := m.commands.ConnectRequest(m.id, address); err != nil {
		return fmt.Errorf("issuing connect command: %w", err)
	}
	m.logger.Info("connect requested", "profile", m.id, "address", address)
	return nil
}

// Disconnect starts a disconnect handshake for the device.
//
// Returns:
//   - error: ErrNoConnection if no machine exists, ErrInvalidTransition
//     if the connection is not up, or a command error
func (m *Manager) Disconnect(address string) error {
	mach := m.getMachine(address)
	if mach == nil {
		return ErrNoConnection
	}
	if err := mach.fire(eventDisconnectRequest); err != nil {
		return err
	}

	if err := m.commands.DisconnectRequest(m.id, address); err != nil {
		return fmt.Errorf("issuing disconnect command: %w", err)
	}
	m.logger.Info("disconnect requested", "profile", m.id, "address", address)
	return nil
}

// ConnectionState returns the connection state for the device,
// StateDisconnected when no machine exists.
func (m *Manager) ConnectionState(address string) ConnectionState {
	mach := m.getMachine(address)
	if mach == nil {
		return StateDisconnected
	}
	return mach.state()
}

// ConnectedDevices returns the addresses currently in the connected
// state.
func (m *Manager) ConnectedDevices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for addr, mach := range m.machines {
		if mach.state() == StateConnected {
			out = append(out, addr)
		}
	}
	return out
}

// Directions returns the audio directions this profile can currently
// carry for the device, DirectionNone when it is not connected.
func (m *Manager) Directions(address string) device.Direction {
	if m.ConnectionState(address) != StateConnected {
		return device.DirectionNone
	}
	d, err := m.devices.Get(address)
	if err != nil {
		return device.DirectionNone
	}

	switch m.id {
	case A2DP, HearingAid:
		return device.DirectionOutput
	case Headset:
		return device.DirectionOutput | device.DirectionInput
	case LEAudio:
		return d.SupportedDirections
	default:
		return device.DirectionNone
	}
}

// HandleConnectionState processes a connection_state_changed stack
// event for this profile. Duplicate and out-of-order events are
// tolerated: an event that does not apply in the machine's current
// state is logged and dropped.
//
// Must run on the dispatch loop.
func (m *Manager) HandleConnectionState(address string, state ConnectionState, reason int) {
	if m.recorder != nil {
		m.recorder.WriteConnectionEvent(address, string(m.id), state.String(), reason)
	}

	switch state {
	case StateConnecting:
		m.handleConnecting(address)
	case StateConnected:
		m.handleConnected(address)
	case StateDisconnecting:
		m.handleDisconnecting(address)
	case StateDisconnected:
		m.handleDisconnected(address, reason)
	}
}

// HandleGroupStatus processes a group_status_changed stack event.
//
// An active report marks the group active and elects a lead if none is
// set. An inactive report is the confirmation path for deactivation: it
// force-clears any lost-lead mark, synthesising a terminal disconnect
// for the lost device so its state machine reaches a consistent state,
// then drops the group's active flag.
//
// Must run on the dispatch loop.
func (m *Manager) HandleGroupStatus(groupID int, active bool) {
	if active {
		if err := m.groups.SetActive(groupID, true); err != nil {
			m.logger.Warn("group activation rejected", "group_id", groupID, "error", err)
			return
		}
		m.electLead(groupID)
		return
	}

	if lost, ok := m.groups.ClearLostLead(groupID); ok {
		m.SynthesizeDisconnect(lost)
	}
	if err := m.groups.SetActive(groupID, false); err != nil {
		m.logger.Warn("group deactivation failed", "group_id", groupID, "error", err)
	}
}

// SynthesizeDisconnect drives the device's state machine to the
// terminal disconnected state without a corresponding stack event. Used
// to finalise a lost lead device whose real disconnect was withheld
// while siblings kept streaming.
//
// Must run on the dispatch loop.
func (m *Manager) SynthesizeDisconnect(address string) {
	mach := m.getMachine(address)
	if mach == nil {
		return
	}
	if err := mach.fire(eventStackDisconnected); err != nil {
		m.logger.Debug("synthetic disconnect not applicable",
			"profile", m.id,
			"address", address,
			"state", mach.state().String(),
		)
		return
	}
	m.dropMachine(address)
	m.setDeviceConnected(address, false)
	m.logger.Info("synthesised terminal disconnect", "profile", m.id, "address", address)
}

// handleConnecting records a stack-initiated (or echoed) connecting
// transition and clears a matching lost-lead mark early.
func (m *Manager) handleConnecting(address string) {
	if _, err := m.devices.Upsert(address); err != nil {
		m.logger.Warn("connecting event for invalid address", "error", err)
		return
	}

	mach := m.getOrCreateMachine(address)
	if err := mach.fire(eventStackConnecting); err != nil {
		m.logger.Debug("connecting event ignored",
			"profile", m.id,
			"address", address,
			"state", mach.state().String(),
		)
	}

	if groupID := m.groups.GroupOf(address); groupID != device.GroupIDInvalid {
		if m.groups.LostLead(groupID) == address {
			m.groups.ClearLostLead(groupID)
		}
	}
}

// handleConnected records a connected transition: the machine advances,
// the device and (for the first member) the group are marked connected,
// a matching lost-lead mark is cleared, and bonded siblings that are
// still disconnected get a connect fan-out.
func (m *Manager) handleConnected(address string) {
	if _, err := m.devices.Upsert(address); err != nil {
		m.logger.Warn("connected event for invalid address", "error", err)
		return
	}

	mach := m.getOrCreateMachine(address)
	if err := mach.fire(eventStackConnected); err != nil {
		// A returning lost lead arrives with its machine still in the
		// connected state: its drop was never propagated. Fall through
		// so the mark clears; anything else is a stale event.
		if mach.state() != StateConnected {
			m.logger.Debug("connected event ignored",
				"profile", m.id,
				"address", address,
				"state", mach.state().String(),
			)
			return
		}
	}

	if err := m.devices.SetConnected(address, true); err != nil {
		m.logger.Error("marking device connected failed", "address", address, "error", err)
		return
	}

	groupID := m.groups.GroupOf(address)
	if groupID == device.GroupIDInvalid {
		return
	}

	// First connected member flips the group.
	if len(m.devices.ConnectedMembersOf(groupID)) == 1 {
		if err := m.groups.SetConnected(groupID, true); err != nil {
			m.logger.Warn("marking group connected failed", "group_id", groupID, "error", err)
		}
	}
	m.electLead(groupID)

	if m.groups.LostLead(groupID) == address {
		m.groups.ClearLostLead(groupID)
	}

	m.connectSiblings(address, groupID)
}

// handleDisconnecting records a disconnecting transition.
func (m *Manager) handleDisconnecting(address string) {
	mach := m.getMachine(address)
	if mach == nil {
		return
	}
	if err := mach.fire(eventDisconnectRequest); err != nil {
		m.logger.Debug("disconnecting event ignored",
			"profile", m.id,
			"address", address,
			"state", mach.state().String(),
		)
	}
}

// handleDisconnected records a terminal disconnect.
//
// An unexpected drop (machine was connected, no disconnect requested)
// of a member of an active group with at least one connected sibling is
// the lost-lead case: the device is tracked, its machine stays in the
// connected state, and the group remains active through a sibling. The
// real terminal transition is synthesised later, on reconnect failure
// or group deactivation.
func (m *Manager) handleDisconnected(address string, reason int) {
	mach := m.getMachine(address)
	if mach == nil {
		return
	}

	groupID := m.groups.GroupOf(address)

	if mach.state() == StateConnected && m.shouldTrackLostLead(address, groupID) {
		if err := m.groups.MarkLostLead(groupID, address); err != nil {
			m.logger.Warn("lost lead tracking failed", "group_id", groupID, "error", err)
		}
		m.setDeviceConnected(address, false)
		return
	}

	event := eventStackDisconnected
	if mach.state() == StateConnecting {
		event = eventStackFailed
	}
	if err := mach.fire(event); err != nil {
		m.logger.Debug("disconnected event ignored",
			"profile", m.id,
			"address", address,
			"state", mach.state().String(),
		)
		return
	}
	m.dropMachine(address)
	m.setDeviceConnected(address, false)

	if reason != 0 {
		m.logger.Info("profile disconnected",
			"profile", m.id,
			"address", address,
			"reason", reason,
		)
	}

	if groupID == device.GroupIDInvalid {
		return
	}
	if len(m.devices.ConnectedMembersOf(groupID)) > 0 {
		return
	}

	// Last connected member gone.
	grp, err := m.groups.Get(groupID)
	if err != nil {
		return
	}

	// A still-tracked lost device gets its terminal event before the
	// group's bookkeeping is torn down.
	if lost, ok := m.groups.ClearLostLead(groupID); ok && lost != address {
		m.SynthesizeDisconnect(lost)
	}

	if err := m.groups.SetConnected(groupID, false); err != nil {
		m.logger.Warn("marking group disconnected failed", "group_id", groupID, "error", err)
	}
	if grp.IsActive && m.active != nil {
		m.active.RemoveActiveDevice(grp.HasFallbackOnDeactivate)
	}
}

// shouldTrackLostLead reports whether an unexpected drop of address
// qualifies for lost-lead recovery: grouped, group active, bond still
// present, and at least one connected sibling remains.
func (m *Manager) shouldTrackLostLead(address string, groupID int) bool {
	if groupID == device.GroupIDInvalid {
		return false
	}
	grp, err := m.groups.Get(groupID)
	if err != nil || !grp.IsActive {
		return false
	}
	d, err := m.devices.Get(address)
	if err != nil || d.BondState == device.BondNone {
		return false
	}
	return len(m.devices.ConnectedMembersOf(groupID)) > 1
}

// connectSiblings fans a connect request out to the bonded, policy
// allowed, still-disconnected members of the device's group.
func (m *Manager) connectSiblings(address string, groupID int) {
	for _, member := range m.devices.MembersOf(groupID) {
		if member.Address == address || member.Connected {
			continue
		}
		if m.ConnectionState(member.Address) != StateDisconnected {
			continue
		}
		if err := m.Connect(member.Address); err != nil {
			m.logger.Debug("sibling connect skipped",
				"profile", m.id,
				"address", member.Address,
				"group_id", groupID,
				"error", err,
			)
		}
	}
}

// electLead sets the group's lead to its first connected member when no
// lead is recorded or the recorded lead is gone.
func (m *Manager) electLead(groupID int) {
	grp, err := m.groups.Get(groupID)
	if err != nil {
		return
	}
	if grp.CurrentLeadDevice != "" {
		if d, err := m.devices.Get(grp.CurrentLeadDevice); err == nil && d.Connected {
			return
		}
	}
	connected := m.devices.ConnectedMembersOf(groupID)
	if len(connected) == 0 {
		return
	}
	if err := m.groups.SetLead(groupID, connected[0].Address); err != nil {
		m.logger.Warn("lead election failed", "group_id", groupID, "error", err)
	}
}

// setDeviceConnected updates the aggregate connected flag, consulting
// the other profile managers before clearing it.
func (m *Manager) setDeviceConnected(address string, connected bool) {
	if !connected && m.peers != nil && m.peers.AnyConnected(address, m.id) {
		return
	}
	if err := m.devices.SetConnected(address, connected); err != nil {
		m.logger.Debug("device connected flag update failed", "address", address, "error", err)
	}
}

func (m *Manager) getMachine(address string) *machine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.machines[address]
}

func (m *Manager) getOrCreateMachine(address string) *machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	mach, ok := m.machines[address]
	if !ok {
		mach = newMachine(address)
		m.machines[address] = mach
	}
	return mach
}

// dropMachine removes a machine that reached the terminal state; the
// next attempt gets a fresh instance.
func (m *Manager) dropMachine(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.machines, address)
}
