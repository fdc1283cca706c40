package arbiter

import (
	"context"
	"testing"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/profile"
	"github.com/bluecore-io/bluecore/internal/storage"
)

const (
	addrBuds    = "AA:BB:CC:DD:EE:01"
	addrBudsTwo = "AA:BB:CC:DD:EE:02"
	addrHeadset = "AA:BB:CC:DD:EE:10"
)

// capability describes one profile connection in the fake.
type capability struct {
	connected  bool
	directions device.Direction
}

// fakeProfiles serves capability queries from a fixed table.
type fakeProfiles struct {
	caps map[string]map[profile.ID]capability
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{caps: make(map[string]map[profile.ID]capability)}
}

func (f *fakeProfiles) set(address string, p profile.ID, connected bool, dirs device.Direction) {
	if f.caps[address] == nil {
		f.caps[address] = make(map[profile.ID]capability)
	}
	f.caps[address][p] = capability{connected: connected, directions: dirs}
}

func (f *fakeProfiles) Connected(address string, p profile.ID) bool {
	return f.caps[address][p].connected
}

func (f *fakeProfiles) Directions(address string, p profile.ID) device.Direction {
	c := f.caps[address][p]
	if !c.connected {
		return device.DirectionNone
	}
	return c.directions
}

// routeEvent is one recorded audio-framework notification.
type routeEvent struct {
	direction device.Direction
	newAddr   string
	prevAddr  string
	info      RouteInfo
}

type fakeRouter struct {
	events []routeEvent
}

func (f *fakeRouter) ActiveDeviceChanged(direction device.Direction, newAddr, prevAddr string, info RouteInfo) {
	f.events = append(f.events, routeEvent{direction: direction, newAddr: newAddr, prevAddr: prevAddr, info: info})
}

func (f *fakeRouter) reset() { f.events = nil }

// fakePrefs is an in-memory storage.Repository.
type fakePrefs struct {
	prefs map[string]storage.Preferences
}

func (f *fakePrefs) ConnectionPolicy(context.Context, string, profile.ID) (profile.Policy, error) {
	return profile.PolicyUnknown, nil
}

func (f *fakePrefs) SetConnectionPolicy(context.Context, string, profile.ID, profile.Policy) error {
	return nil
}

func (f *fakePrefs) PreferredProfiles(_ context.Context, address string) (storage.Preferences, error) {
	return f.prefs[address], nil
}

func (f *fakePrefs) SetPreferredProfiles(_ context.Context, addresses []string, prefs storage.Preferences) error {
	for _, a := range addresses {
		f.prefs[a] = prefs
	}
	return nil
}

type fakeFinalizer struct {
	synthesised []string
}

func (f *fakeFinalizer) SynthesizeDisconnect(address string) {
	f.synthesised = append(f.synthesised, address)
}

type fixture struct {
	devices  *device.Registry
	groups   *device.GroupRegistry
	profiles *fakeProfiles
	router   *fakeRouter
	prefs    *fakePrefs
	arb      *Arbiter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		devices:  device.NewRegistry(),
		profiles: newFakeProfiles(),
		router:   &fakeRouter{},
		prefs:    &fakePrefs{prefs: make(map[string]storage.Preferences)},
	}
	f.groups = device.NewGroupRegistry(f.devices)
	f.arb = New(f.devices, f.groups, f.profiles, f.router, f.prefs)
	return f
}

// addConnected registers a connected device carrying the profile.
func (f *fixture) addConnected(t *testing.T, address string, groupID int, p profile.ID, dirs device.Direction) {
	t.Helper()

	if groupID != device.GroupIDInvalid {
		if err := f.groups.AddNode(address, groupID); err != nil {
			t.Fatalf("AddNode(%s) error = %v", address, err)
		}
	} else if _, err := f.devices.Upsert(address); err != nil {
		t.Fatalf("Upsert(%s) error = %v", address, err)
	}
	if err := f.devices.SetConnected(address, true); err != nil {
		t.Fatalf("SetConnected(%s) error = %v", address, err)
	}
	if groupID != device.GroupIDInvalid {
		if err := f.groups.SetConnected(groupID, true); err != nil {
			t.Fatalf("SetConnected(group %d) error = %v", groupID, err)
		}
	}
	f.profiles.set(address, p, true, dirs)
}

func TestSetActiveDevice_Activation(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.Headset, device.DirectionOutput|device.DirectionInput)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)

	if len(f.router.events) != 2 {
		t.Fatalf("notifications = %d, want 2 (output and input)", len(f.router.events))
	}
	for _, ev := range f.router.events {
		if ev.newAddr != addrHeadset || ev.prevAddr != "" {
			t.Errorf("event = %+v, want activation of %s", ev, addrHeadset)
		}
		if !ev.info.SuppressNoisy {
			t.Error("activation with a new device must suppress the noisy pause")
		}
	}

	if addr, p := f.arb.ActiveDevice(device.DirectionOutput); addr != addrHeadset || p != profile.Headset {
		t.Errorf("ActiveDevice(output) = (%s, %s), want (%s, hfp)", addr, p, addrHeadset)
	}
}

func TestSetActiveDevice_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.A2DP, device.DirectionOutput)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)
	first := len(f.router.events)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)

	if len(f.router.events) != first {
		t.Errorf("repeated activation emitted %d extra notifications", len(f.router.events)-first)
	}
}

func TestSetActiveDevice_GroupIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrBuds, 3, profile.LEAudio, device.DirectionOutput)
	f.addConnected(t, addrBudsTwo, 3, profile.LEAudio, device.DirectionOutput)

	f.arb.SetActiveDevice(addrBuds, profile.MaskNone)
	first := len(f.router.events)

	// Activating the sibling resolves to the same group: strict no-op.
	f.arb.SetActiveDevice(addrBudsTwo, profile.MaskNone)

	if len(f.router.events) != first {
		t.Errorf("sibling activation emitted %d extra notifications", len(f.router.events)-first)
	}
	if got := f.arb.ActiveGroup(); got != 3 {
		t.Errorf("ActiveGroup() = %d, want 3", got)
	}
}

func TestSetActiveDevice_SingleDevicePerDirection(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.Headset, device.DirectionOutput|device.DirectionInput)
	f.addConnected(t, addrBuds, 3, profile.LEAudio, device.DirectionOutput)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)
	f.arb.SetActiveDevice(addrBuds, profile.MaskNone)
	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)
	f.arb.SetActiveDevice("", profile.MaskNone)

	// Replay the notification stream: per direction, an activation must
	// be preceded by the previous holder being replaced in the same
	// event, never two concurrent holders.
	active := map[device.Direction]string{}
	for _, ev := range f.router.events {
		if cur, ok := active[ev.direction]; ok && cur != "" && ev.newAddr != "" && ev.prevAddr != cur {
			t.Fatalf("direction %v handed from %q to %q without releasing %q",
				ev.direction, ev.prevAddr, ev.newAddr, cur)
		}
		active[ev.direction] = ev.newAddr
	}
	for dir, holder := range active {
		if holder != "" {
			t.Errorf("direction %v still held by %q after deactivation", dir, holder)
		}
	}
}

func TestSetActiveDevice_SwitchSetsFallbackOnOldGroup(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrBuds, 3, profile.LEAudio, device.DirectionOutput)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.A2DP, device.DirectionOutput)

	f.arb.SetActiveDevice(addrBuds, profile.MaskNone)
	if err := f.groups.SetActive(3, true); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	f.router.reset()

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)

	grp, _ := f.groups.Get(3)
	if !grp.HasFallbackOnDeactivate {
		t.Error("old group not flagged with a fallback on handover")
	}

	if len(f.router.events) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.router.events))
	}
	ev := f.router.events[0]
	if ev.newAddr != addrHeadset || ev.prevAddr != addrBuds || !ev.info.SuppressNoisy {
		t.Errorf("handover event = %+v", ev)
	}
}

func TestSetActiveDevice_Deactivation(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrBuds, 3, profile.LEAudio, device.DirectionOutput)

	f.arb.SetActiveDevice(addrBuds, profile.MaskNone)
	f.router.reset()

	f.arb.SetActiveDevice("", profile.MaskNone)

	if len(f.router.events) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.router.events))
	}
	ev := f.router.events[0]
	if ev.newAddr != "" || ev.prevAddr != addrBuds {
		t.Errorf("deactivation event = %+v", ev)
	}
	// The device is still connected, so the pause is suppressed.
	if !ev.info.SuppressNoisy {
		t.Error("deactivation of a still-connected device must suppress the pause")
	}

	grp, _ := f.groups.Get(3)
	if grp.IsActive {
		t.Error("group still active after deactivation")
	}
	if got := f.arb.ActiveGroup(); got != device.GroupIDInvalid {
		t.Errorf("ActiveGroup() = %d, want invalid", got)
	}
}

func TestSetActiveDevice_DeactivationFinalisesLostLead(t *testing.T) {
	f := newFixture(t)
	fin := &fakeFinalizer{}
	f.arb.SetFinalizer(fin)

	f.addConnected(t, addrBuds, 3, profile.LEAudio, device.DirectionOutput)
	f.addConnected(t, addrBudsTwo, 3, profile.LEAudio, device.DirectionOutput)

	f.arb.SetActiveDevice(addrBuds, profile.MaskNone)
	if err := f.groups.MarkLostLead(3, addrBudsTwo); err != nil {
		t.Fatalf("MarkLostLead() error = %v", err)
	}

	f.arb.SetActiveDevice("", profile.MaskNone)

	if len(fin.synthesised) != 1 || fin.synthesised[0] != addrBudsTwo {
		t.Errorf("synthesised = %v, want [%s]", fin.synthesised, addrBudsTwo)
	}
	grp, _ := f.groups.Get(3)
	if grp.LostLeadDevice != "" {
		t.Errorf("LostLeadDevice = %q, want cleared", grp.LostLeadDevice)
	}
}

func TestSetActiveDevice_UnknownDeviceDeactivates(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrBuds, 3, profile.LEAudio, device.DirectionOutput)

	f.arb.SetActiveDevice(addrBuds, profile.MaskNone)
	f.router.reset()

	f.arb.SetActiveDevice("FF:FF:FF:FF:FF:FF", profile.MaskNone)

	if got := f.arb.ActiveGroup(); got != device.GroupIDInvalid {
		t.Errorf("ActiveGroup() = %d, want invalid after unknown target", got)
	}
	if len(f.router.events) != 1 || f.router.events[0].newAddr != "" {
		t.Errorf("events = %+v, want one deactivation", f.router.events)
	}
}

func TestRemoveActiveDevice_PerDirectionNotifications(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.Headset, device.DirectionOutput|device.DirectionInput)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)
	f.router.reset()

	// Device fully dropped: no profile connection survives.
	f.profiles.set(addrHeadset, profile.Headset, false, device.DirectionNone)

	f.arb.RemoveActiveDevice(false)

	if len(f.router.events) != 2 {
		t.Fatalf("notifications = %d, want one per held direction", len(f.router.events))
	}
	for _, ev := range f.router.events {
		if ev.newAddr != "" || ev.prevAddr != addrHeadset {
			t.Errorf("event = %+v, want withdrawal of %s", ev, addrHeadset)
		}
		if ev.info.SuppressNoisy {
			t.Error("withdrawal without fallback must not suppress the pause")
		}
	}
}

func TestRemoveActiveDevice_FallbackSuppressesNoisy(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.A2DP, device.DirectionOutput)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)
	f.router.reset()
	f.profiles.set(addrHeadset, profile.A2DP, false, device.DirectionNone)

	f.arb.RemoveActiveDevice(true)

	if len(f.router.events) != 1 || !f.router.events[0].info.SuppressNoisy {
		t.Errorf("events = %+v, want suppressed withdrawal", f.router.events)
	}
}

func TestPickProfile_ExplicitRequestWins(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.A2DP, device.DirectionOutput)
	f.profiles.set(addrHeadset, profile.LEAudio, true, device.DirectionOutput)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskA2DP)

	if _, p := f.arb.ActiveDevice(device.DirectionOutput); p != profile.A2DP {
		t.Errorf("carrying profile = %s, want a2dp (explicit request)", p)
	}
}

func TestPickProfile_StoredPreference(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.A2DP, device.DirectionOutput)
	f.profiles.set(addrHeadset, profile.LEAudio, true, device.DirectionOutput)
	f.prefs.prefs[addrHeadset] = storage.Preferences{Output: profile.A2DP}

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)

	if _, p := f.arb.ActiveDevice(device.DirectionOutput); p != profile.A2DP {
		t.Errorf("carrying profile = %s, want a2dp (stored preference)", p)
	}
}

func TestPickProfile_DefaultOrder(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.A2DP, device.DirectionOutput)
	f.profiles.set(addrHeadset, profile.LEAudio, true, device.DirectionOutput)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)

	// No request, no history, no stored preference: LE audio leads the
	// default order.
	if _, p := f.arb.ActiveDevice(device.DirectionOutput); p != profile.LEAudio {
		t.Errorf("carrying profile = %s, want le_audio", p)
	}
}

func TestNoteVolume_PropagatedOnActivation(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.A2DP, device.DirectionOutput)
	f.arb.NoteVolume(addrHeadset, 87)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)

	if len(f.router.events) != 1 || f.router.events[0].info.Volume != 87 {
		t.Errorf("events = %+v, want volume 87", f.router.events)
	}
}

func TestNoteVolume_UnknownDefaultsToMinusOne(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, addrHeadset, device.GroupIDInvalid, profile.A2DP, device.DirectionOutput)

	f.arb.SetActiveDevice(addrHeadset, profile.MaskNone)

	if len(f.router.events) != 1 || f.router.events[0].info.Volume != -1 {
		t.Errorf("events = %+v, want volume -1", f.router.events)
	}
}
