package profile

import (
	"errors"
	"testing"

	"github.com/bluecore-io/bluecore/internal/device"
)

const (
	addrLeft  = "AA:BB:CC:DD:EE:01"
	addrRight = "AA:BB:CC:DD:EE:02"
	addrSolo  = "AA:BB:CC:DD:EE:03"
)

// fakePolicies resolves policies from a map, PolicyUnknown by default.
type fakePolicies struct {
	policies map[string]Policy
	err      error
}

func (f *fakePolicies) ConnectionPolicy(address string, _ ID) (Policy, error) {
	if f.err != nil {
		return PolicyUnknown, f.err
	}
	return f.policies[address], nil
}

// fakeCommander records issued stack commands.
type fakeCommander struct {
	connects    []string
	disconnects []string
	err         error
}

func (f *fakeCommander) ConnectRequest(_ ID, address string) error {
	if f.err != nil {
		return f.err
	}
	f.connects = append(f.connects, address)
	return nil
}

func (f *fakeCommander) DisconnectRequest(_ ID, address string) error {
	if f.err != nil {
		return f.err
	}
	f.disconnects = append(f.disconnects, address)
	return nil
}

// fakeActive records active-device removal calls.
type fakeActive struct {
	removals []bool
}

func (f *fakeActive) RemoveActiveDevice(hasFallback bool) {
	f.removals = append(f.removals, hasFallback)
}

type fixture struct {
	devices  *device.Registry
	groups   *device.GroupRegistry
	commands *fakeCommander
	active   *fakeActive
	mgr      *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		devices:  device.NewRegistry(),
		commands: &fakeCommander{},
		active:   &fakeActive{},
	}
	f.groups = device.NewGroupRegistry(f.devices)

	mgr, err := NewManager(LEAudio, f.devices, f.groups, &fakePolicies{policies: map[string]Policy{}}, f.commands)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	mgr.SetActiveDeviceHandler(f.active)
	f.mgr = mgr
	return f
}

// addBonded registers a bonded device, optionally in a group.
func (f *fixture) addBonded(t *testing.T, address string, groupID int) {
	t.Helper()

	if groupID != device.GroupIDInvalid {
		if err := f.groups.AddNode(address, groupID); err != nil {
			t.Fatalf("AddNode(%s) error = %v", address, err)
		}
	} else if _, err := f.devices.Upsert(address); err != nil {
		t.Fatalf("Upsert(%s) error = %v", address, err)
	}
	if err := f.devices.SetBondState(address, device.Bonded); err != nil {
		t.Fatalf("SetBondState(%s) error = %v", address, err)
	}
}

func TestNewManager_UnknownProfile(t *testing.T) {
	_, err := NewManager(ID("opp"), device.NewRegistry(), nil, &fakePolicies{}, &fakeCommander{})
	if !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("NewManager() error = %v, want ErrUnknownProfile", err)
	}
}

func TestManager_Connect(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrSolo, device.GroupIDInvalid)

	if err := f.mgr.Connect(addrSolo); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if got := f.mgr.ConnectionState(addrSolo); got != StateConnecting {
		t.Errorf("ConnectionState() = %v, want connecting", got)
	}
	if len(f.commands.connects) != 1 || f.commands.connects[0] != addrSolo {
		t.Errorf("connect commands = %v, want [%s]", f.commands.connects, addrSolo)
	}
}

func TestManager_ConnectNotBonded(t *testing.T) {
	f := newFixture(t)
	if _, err := f.devices.Upsert(addrSolo); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	err := f.mgr.Connect(addrSolo)
	if !errors.Is(err, ErrNotBonded) {
		t.Errorf("Connect() error = %v, want ErrNotBonded", err)
	}
	if len(f.commands.connects) != 0 {
		t.Error("connect command issued despite guard failure")
	}
}

func TestManager_ConnectForbidden(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrSolo, device.GroupIDInvalid)

	policies := &fakePolicies{policies: map[string]Policy{addrSolo: PolicyForbidden}}
	mgr, err := NewManager(LEAudio, f.devices, f.groups, policies, f.commands)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if err := mgr.Connect(addrSolo); !errors.Is(err, ErrPolicyForbidden) {
		t.Errorf("Connect() error = %v, want ErrPolicyForbidden", err)
	}
}

func TestManager_ConnectWhileConnecting(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrSolo, device.GroupIDInvalid)

	if err := f.mgr.Connect(addrSolo); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := f.mgr.Connect(addrSolo); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Connect() error = %v, want ErrInvalidTransition", err)
	}
}

func TestManager_ConnectedMarksDeviceAndGroup(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrLeft, 3)

	f.mgr.HandleConnectionState(addrLeft, StateConnected, 0)

	if got := f.mgr.ConnectionState(addrLeft); got != StateConnected {
		t.Errorf("ConnectionState() = %v, want connected", got)
	}

	d, _ := f.devices.Get(addrLeft)
	if !d.Connected {
		t.Error("device not marked connected")
	}

	grp, err := f.groups.Get(3)
	if err != nil {
		t.Fatalf("Get(group) error = %v", err)
	}
	if !grp.IsConnected {
		t.Error("group not marked connected after first member")
	}
	if grp.CurrentLeadDevice != addrLeft {
		t.Errorf("CurrentLeadDevice = %q, want %q", grp.CurrentLeadDevice, addrLeft)
	}
}

func TestManager_ConnectedFansOutToSiblings(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrLeft, 3)
	f.addBonded(t, addrRight, 3)

	f.mgr.HandleConnectionState(addrLeft, StateConnected, 0)

	if len(f.commands.connects) != 1 || f.commands.connects[0] != addrRight {
		t.Errorf("connect commands = %v, want [%s]", f.commands.connects, addrRight)
	}
}

func TestManager_NoFanOutToUnbondedSibling(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrLeft, 3)
	if err := f.groups.AddNode(addrRight, 3); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}

	f.mgr.HandleConnectionState(addrLeft, StateConnected, 0)

	if len(f.commands.connects) != 0 {
		t.Errorf("connect commands = %v, want none for unbonded sibling", f.commands.connects)
	}
}

// connectPair brings both members of group 3 to the connected state and
// marks the group active.
func connectPair(t *testing.T, f *fixture) {
	t.Helper()

	f.addBonded(t, addrLeft, 3)
	f.addBonded(t, addrRight, 3)
	f.mgr.HandleConnectionState(addrLeft, StateConnected, 0)
	f.mgr.HandleConnectionState(addrRight, StateConnected, 0)
	f.mgr.HandleGroupStatus(3, true)

	grp, err := f.groups.Get(3)
	if err != nil || !grp.IsActive {
		t.Fatalf("group not active after setup: %+v, err=%v", grp, err)
	}
}

func TestManager_LostLeadRecovery(t *testing.T) {
	f := newFixture(t)
	connectPair(t, f)
	f.commands.connects = nil

	// Lead drops unexpectedly while the sibling keeps streaming.
	f.mgr.HandleConnectionState(addrLeft, StateDisconnected, 1)

	grp, _ := f.groups.Get(3)
	if !grp.IsActive {
		t.Error("group deactivated by lost-lead drop")
	}
	if grp.LostLeadDevice != addrLeft {
		t.Errorf("LostLeadDevice = %q, want %q", grp.LostLeadDevice, addrLeft)
	}
	if len(f.active.removals) != 0 {
		t.Error("active device withdrawn during lost-lead recovery")
	}

	// The machine's drop was withheld: it still reads connected.
	if got := f.mgr.ConnectionState(addrLeft); got != StateConnected {
		t.Errorf("ConnectionState(lost) = %v, want connected", got)
	}

	// Lead returns: the mark clears and the connected sibling is left
	// alone.
	f.mgr.HandleConnectionState(addrLeft, StateConnected, 0)

	grp, _ = f.groups.Get(3)
	if grp.LostLeadDevice != "" {
		t.Errorf("LostLeadDevice = %q after reconnect, want empty", grp.LostLeadDevice)
	}
	if len(f.commands.connects) != 0 {
		t.Errorf("connect commands = %v, want none on reconnect", f.commands.connects)
	}

	d, _ := f.devices.Get(addrLeft)
	if !d.Connected {
		t.Error("returning lead not marked connected")
	}
}

func TestManager_GroupDeactivationFinalisesLostLead(t *testing.T) {
	f := newFixture(t)
	connectPair(t, f)

	f.mgr.HandleConnectionState(addrLeft, StateDisconnected, 1)

	// Stack reports the group inactive: the withheld drop is synthesised.
	f.mgr.HandleGroupStatus(3, false)

	grp, _ := f.groups.Get(3)
	if grp.IsActive {
		t.Error("group still active after inactive report")
	}
	if grp.LostLeadDevice != "" {
		t.Errorf("LostLeadDevice = %q, want empty", grp.LostLeadDevice)
	}
	if got := f.mgr.ConnectionState(addrLeft); got != StateDisconnected {
		t.Errorf("ConnectionState(lost) = %v, want disconnected", got)
	}
}

func TestManager_LastMemberDisconnectWithdrawsActiveDevice(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrSolo, 5)
	f.mgr.HandleConnectionState(addrSolo, StateConnected, 0)
	f.mgr.HandleGroupStatus(5, true)

	f.mgr.HandleConnectionState(addrSolo, StateDisconnected, 1)

	grp, _ := f.groups.Get(5)
	if grp.IsActive || grp.IsConnected {
		t.Errorf("group state after sole member drop = %+v, want disconnected and inactive", grp)
	}
	if len(f.active.removals) != 1 {
		t.Fatalf("RemoveActiveDevice calls = %d, want 1", len(f.active.removals))
	}
	if f.active.removals[0] {
		t.Error("hasFallback = true, want false")
	}
}

func TestManager_LastMemberDisconnectReportsFallback(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrSolo, 5)
	f.mgr.HandleConnectionState(addrSolo, StateConnected, 0)
	f.mgr.HandleGroupStatus(5, true)
	if err := f.groups.SetFallbackOnDeactivate(5, true); err != nil {
		t.Fatalf("SetFallbackOnDeactivate() error = %v", err)
	}

	f.mgr.HandleConnectionState(addrSolo, StateDisconnected, 1)

	if len(f.active.removals) != 1 || !f.active.removals[0] {
		t.Errorf("removals = %v, want [true]", f.active.removals)
	}
}

func TestManager_LastSiblingDropFinalisesLostLead(t *testing.T) {
	f := newFixture(t)
	connectPair(t, f)

	// Lead drops, then the remaining sibling drops too. The lost lead's
	// withheld terminal event must still be delivered.
	f.mgr.HandleConnectionState(addrLeft, StateDisconnected, 1)
	f.mgr.HandleConnectionState(addrRight, StateDisconnected, 1)

	if got := f.mgr.ConnectionState(addrLeft); got != StateDisconnected {
		t.Errorf("ConnectionState(lost) = %v, want disconnected", got)
	}
	grp, _ := f.groups.Get(3)
	if grp.LostLeadDevice != "" {
		t.Errorf("LostLeadDevice = %q, want empty", grp.LostLeadDevice)
	}
	if grp.IsConnected || grp.IsActive {
		t.Errorf("group state = %+v, want fully down", grp)
	}
}

func TestManager_Disconnect(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrSolo, device.GroupIDInvalid)
	f.mgr.HandleConnectionState(addrSolo, StateConnected, 0)

	if err := f.mgr.Disconnect(addrSolo); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got := f.mgr.ConnectionState(addrSolo); got != StateDisconnecting {
		t.Errorf("ConnectionState() = %v, want disconnecting", got)
	}

	f.mgr.HandleConnectionState(addrSolo, StateDisconnected, 0)
	if got := f.mgr.ConnectionState(addrSolo); got != StateDisconnected {
		t.Errorf("ConnectionState() = %v, want disconnected", got)
	}
}

func TestManager_DisconnectNoConnection(t *testing.T) {
	f := newFixture(t)

	if err := f.mgr.Disconnect(addrSolo); !errors.Is(err, ErrNoConnection) {
		t.Errorf("Disconnect() error = %v, want ErrNoConnection", err)
	}
}

func TestManager_StaleDisconnectedIgnored(t *testing.T) {
	f := newFixture(t)

	// No machine, no group, no panic.
	f.mgr.HandleConnectionState(addrSolo, StateDisconnected, 0)
}

func TestManager_Directions(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrSolo, device.GroupIDInvalid)
	if err := f.devices.SetSupportedDirections(addrSolo, device.DirectionOutput|device.DirectionInput); err != nil {
		t.Fatalf("SetSupportedDirections() error = %v", err)
	}

	if got := f.mgr.Directions(addrSolo); got != device.DirectionNone {
		t.Errorf("Directions() = %v while disconnected, want none", got)
	}

	f.mgr.HandleConnectionState(addrSolo, StateConnected, 0)
	if got := f.mgr.Directions(addrSolo); got != device.DirectionOutput|device.DirectionInput {
		t.Errorf("Directions() = %v, want output|input", got)
	}
}

func TestManager_ConnectedDevices(t *testing.T) {
	f := newFixture(t)
	f.addBonded(t, addrSolo, device.GroupIDInvalid)
	f.mgr.HandleConnectionState(addrSolo, StateConnected, 0)

	got := f.mgr.ConnectedDevices()
	if len(got) != 1 || got[0] != addrSolo {
		t.Errorf("ConnectedDevices() = %v, want [%s]", got, addrSolo)
	}
}
