package device

import (
	"errors"
	"testing"
)

const (
	addrLeft  = "AA:BB:CC:DD:EE:01"
	addrRight = "AA:BB:CC:DD:EE:02"
	addrSolo  = "AA:BB:CC:DD:EE:03"
)

func TestRegistry_Upsert(t *testing.T) {
	r := NewRegistry()

	d, err := r.Upsert(addrLeft)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if d.Address != addrLeft {
		t.Errorf("Address = %q, want %q", d.Address, addrLeft)
	}
	if d.GroupID != GroupIDInvalid {
		t.Errorf("GroupID = %d, want GroupIDInvalid", d.GroupID)
	}
}

func TestRegistry_UpsertEmptyAddress(t *testing.T) {
	r := NewRegistry()

	_, err := r.Upsert("")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Upsert(\"\") error = %v, want ErrInvalidAddress", err)
	}
}

func TestRegistry_UpsertPreservesGroup(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Upsert(addrLeft); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := r.SetGroup(addrLeft, 3); err != nil {
		t.Fatalf("SetGroup() error = %v", err)
	}

	// A repeated upsert must not blank the assigned group.
	d, err := r.Upsert(addrLeft)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if d.GroupID != 3 {
		t.Errorf("GroupID after re-upsert = %d, want 3", d.GroupID)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Upsert(addrLeft); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	d, err := r.Get(addrLeft)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Address != addrLeft {
		t.Errorf("Address = %q, want %q", d.Address, addrLeft)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(addrLeft)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Upsert(addrLeft); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	d, _ := r.Get(addrLeft)
	d.BondState = Bonded

	fresh, _ := r.Get(addrLeft)
	if fresh.BondState != BondNone {
		t.Error("mutation of returned copy leaked into the registry")
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()

	for _, addr := range []string{addrRight, addrSolo, addrLeft} {
		if _, err := r.Upsert(addr); err != nil {
			t.Fatalf("Upsert(%s) error = %v", addr, err)
		}
	}

	devices := r.List()
	if len(devices) != 3 {
		t.Fatalf("List() returned %d devices, want 3", len(devices))
	}

	// Sorted by address
	if devices[0].Address != addrLeft || devices[2].Address != addrSolo {
		t.Errorf("List() not sorted: %v", []string{devices[0].Address, devices[1].Address, devices[2].Address})
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Upsert(addrLeft); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := r.Remove(addrLeft); err != nil {
		t.Errorf("Remove() error = %v", err)
	}

	if _, err := r.Get(addrLeft); !errors.Is(err, ErrNotFound) {
		t.Error("device still present after Remove()")
	}
}

func TestRegistry_RemoveNotFound(t *testing.T) {
	r := NewRegistry()

	err := r.Remove(addrLeft)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() error = %v, want ErrNotFound", err)
	}
}

// setupActiveGroup builds a two-member group with both members connected
// and the group marked connected and active.
func setupActiveGroup(t *testing.T) (*Registry, *GroupRegistry) {
	t.Helper()

	r := NewRegistry()
	g := NewGroupRegistry(r)

	for _, addr := range []string{addrLeft, addrRight} {
		if err := g.AddNode(addr, 3); err != nil {
			t.Fatalf("AddNode(%s) error = %v", addr, err)
		}
		if err := r.SetConnected(addr, true); err != nil {
			t.Fatalf("SetConnected(%s) error = %v", addr, err)
		}
	}
	if err := g.SetConnected(3, true); err != nil {
		t.Fatalf("SetConnected(group) error = %v", err)
	}
	if err := g.SetActive(3, true); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	return r, g
}

func TestRegistry_RemoveSoleConnectedMemberOfActiveGroup(t *testing.T) {
	r, _ := setupActiveGroup(t)

	// Drop the sibling so addrLeft is the sole connected member.
	if err := r.SetConnected(addrRight, false); err != nil {
		t.Fatalf("SetConnected() error = %v", err)
	}

	err := r.Remove(addrLeft)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Remove() error = %v, want ErrPreconditionFailed", err)
	}

	// Still present
	if _, err := r.Get(addrLeft); err != nil {
		t.Error("vetoed Remove() must not delete the descriptor")
	}
}

func TestRegistry_RemoveWithConnectedSibling(t *testing.T) {
	r, _ := setupActiveGroup(t)

	// Both members connected: removal of one is allowed.
	if err := r.Remove(addrLeft); err != nil {
		t.Errorf("Remove() error = %v, want nil", err)
	}
}

func TestRegistry_RemoveFromInactiveGroup(t *testing.T) {
	r, g := setupActiveGroup(t)

	if err := g.SetActive(3, false); err != nil {
		t.Fatalf("SetActive(false) error = %v", err)
	}
	if err := r.SetConnected(addrRight, false); err != nil {
		t.Fatalf("SetConnected() error = %v", err)
	}

	// Sole connected member, but group inactive: removal allowed.
	if err := r.Remove(addrLeft); err != nil {
		t.Errorf("Remove() error = %v, want nil", err)
	}
}

func TestRegistry_SetGroupInvalid(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Upsert(addrLeft); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	err := r.SetGroup(addrLeft, GroupIDInvalid)
	if !errors.Is(err, ErrInvalidGroup) {
		t.Errorf("SetGroup(GroupIDInvalid) error = %v, want ErrInvalidGroup", err)
	}
}

func TestRegistry_ClearGroup(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Upsert(addrLeft); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := r.SetGroup(addrLeft, 3); err != nil {
		t.Fatalf("SetGroup() error = %v", err)
	}
	if err := r.ClearGroup(addrLeft); err != nil {
		t.Fatalf("ClearGroup() error = %v", err)
	}

	d, _ := r.Get(addrLeft)
	if d.GroupID != GroupIDInvalid {
		t.Errorf("GroupID = %d after ClearGroup, want GroupIDInvalid", d.GroupID)
	}
}

func TestRegistry_MembersOf(t *testing.T) {
	r := NewRegistry()
	g := NewGroupRegistry(r)

	if err := g.AddNode(addrRight, 3); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if err := g.AddNode(addrLeft, 3); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if _, err := r.Upsert(addrSolo); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	members := r.MembersOf(3)
	if len(members) != 2 {
		t.Fatalf("MembersOf() returned %d members, want 2", len(members))
	}
	if members[0].Address != addrLeft {
		t.Errorf("MembersOf() not sorted: first = %q", members[0].Address)
	}
}

func TestRegistry_ConnectedMembersOf(t *testing.T) {
	r := NewRegistry()
	g := NewGroupRegistry(r)

	for _, addr := range []string{addrLeft, addrRight} {
		if err := g.AddNode(addr, 3); err != nil {
			t.Fatalf("AddNode(%s) error = %v", addr, err)
		}
	}
	if err := r.SetConnected(addrRight, true); err != nil {
		t.Fatalf("SetConnected() error = %v", err)
	}

	connected := r.ConnectedMembersOf(3)
	if len(connected) != 1 || connected[0].Address != addrRight {
		t.Errorf("ConnectedMembersOf() = %v, want [%s]", connected, addrRight)
	}
}

func TestRegistry_FieldSetters(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Upsert(addrLeft); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := r.SetBondState(addrLeft, Bonded); err != nil {
		t.Fatalf("SetBondState() error = %v", err)
	}
	if err := r.SetSupportedDirections(addrLeft, DirectionOutput|DirectionInput); err != nil {
		t.Fatalf("SetSupportedDirections() error = %v", err)
	}
	if err := r.SetAudioLocation(addrLeft, 0x01); err != nil {
		t.Fatalf("SetAudioLocation() error = %v", err)
	}
	if err := r.SetInbandRingtone(addrLeft, true); err != nil {
		t.Fatalf("SetInbandRingtone() error = %v", err)
	}

	d, _ := r.Get(addrLeft)
	if d.BondState != Bonded {
		t.Errorf("BondState = %v, want Bonded", d.BondState)
	}
	if !d.SupportedDirections.Has(DirectionOutput) || !d.SupportedDirections.Has(DirectionInput) {
		t.Errorf("SupportedDirections = %v", d.SupportedDirections)
	}
	if d.AudioLocation != 0x01 {
		t.Errorf("AudioLocation = %d, want 1", d.AudioLocation)
	}
	if !d.InbandRingtoneEnabled {
		t.Error("InbandRingtoneEnabled = false, want true")
	}
}

func TestRegistry_SetterNotFound(t *testing.T) {
	r := NewRegistry()

	if err := r.SetBondState(addrLeft, Bonded); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetBondState() error = %v, want ErrNotFound", err)
	}
}

func TestDirection_String(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{DirectionNone, "none"},
		{DirectionOutput, "output"},
		{DirectionInput, "input"},
		{DirectionOutput | DirectionInput, "output|input"},
	}

	for _, tt := range tests {
		if got := tt.dir.String(); got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}
