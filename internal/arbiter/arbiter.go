package arbiter

import (
	"context"
	"sync"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/profile"
	"github.com/bluecore-io/bluecore/internal/storage"
)

// Logger defines the logging interface used by the arbiter.
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

// SlotState is the explicit state of one active-device slot. The three
// values distinguish "never decided" from "explicitly deactivated",
// which a bare nullable reference cannot.
type SlotState int

const (
	// SlotUnset means no activation decision has been made yet.
	SlotUnset SlotState = iota

	// SlotActive means the slot holds an active device.
	SlotActive

	// SlotInactive means the slot was explicitly deactivated.
	SlotInactive
)

// Slot is one active-device slot: per audio direction, at most one
// device system-wide.
type Slot struct {
	State   SlotState
	Address string
	Profile profile.ID
}

// RouteInfo accompanies an active-device notification to the audio
// framework.
type RouteInfo struct {
	// SuppressNoisy asks the framework not to pause playback on the
	// device change (another device takes over, or the previous one is
	// still connected).
	SuppressNoisy bool

	// Volume is the absolute volume to apply on the new device, -1 when
	// unknown.
	Volume int
}

// AudioRouter is the audio-framework collaborator.
type AudioRouter interface {
	ActiveDeviceChanged(direction device.Direction, newAddress, prevAddress string, info RouteInfo)
}

// Profiles exposes per-device capability queries over the running
// profile managers. Implemented by the coordinator.
type Profiles interface {
	// Connected reports whether the device is connected on the profile.
	Connected(address string, p profile.ID) bool

	// Directions returns the audio directions the profile can currently
	// carry for the device.
	Directions(address string, p profile.ID) device.Direction
}

// GroupCommander asks the native stack to activate or deactivate a
// group. May be nil in tests; commands are best-effort.
type GroupCommander interface {
	GroupSetActive(groupID int, active bool) error
}

// Finalizer synthesises terminal disconnects for lost lead devices.
// Implemented by the coordinator, fanning out to the profile managers.
type Finalizer interface {
	SynthesizeDisconnect(address string)
}

// Recorder receives active-device changes for telemetry.
type Recorder interface {
	WriteActiveDeviceChange(direction, address, profileName string)
}

// audioProfiles is the tie-break order when no explicit or stored
// preference applies.
var audioProfiles = []profile.ID{profile.LEAudio, profile.A2DP, profile.Headset, profile.HearingAid}

// Arbiter is the sole writer of the active-device slots. All requests
// to change the active device funnel through it, which is what enforces
// the one-device-per-direction invariant.
//
// All mutation must run on the dispatch loop.
type Arbiter struct {
	devices  *device.Registry
	groups   *device.GroupRegistry
	profiles Profiles
	router   AudioRouter
	prefs    storage.Repository

	commands  GroupCommander
	finalizer Finalizer
	recorder  Recorder
	logger    Logger

	mu          sync.RWMutex
	slots       map[device.Direction]*Slot
	activeAddr  string
	activeGroup int
	volumes     map[string]int
}

// New creates an arbiter. prefs may be nil when no storage is wired;
// stored preferences then never participate in the tie-break.
func New(devices *device.Registry, groups *device.GroupRegistry, profiles Profiles, router AudioRouter, prefs storage.Repository) *Arbiter {
	return &Arbiter{
		devices:  devices,
		groups:   groups,
		profiles: profiles,
		router:   router,
		prefs:    prefs,
		logger:   noopLogger{},
		slots: map[device.Direction]*Slot{
			device.DirectionOutput: {},
			device.DirectionInput:  {},
		},
		activeGroup: device.GroupIDInvalid,
		volumes:     make(map[string]int),
	}
}

// SetLogger sets the logger for the arbiter.
func (a *Arbiter) SetLogger(logger Logger) {
	a.logger = logger
}

// SetGroupCommander wires the stack bridge's group command publisher.
func (a *Arbiter) SetGroupCommander(c GroupCommander) {
	a.commands = c
}

// SetFinalizer wires the coordinator's lost-lead finaliser.
func (a *Arbiter) SetFinalizer(f Finalizer) {
	a.finalizer = f
}

// SetRecorder wires the telemetry sink.
func (a *Arbiter) SetRecorder(r Recorder) {
	a.recorder = r
}

// NoteVolume records the last known absolute volume for a device, used
// on subsequent output activations. Safe from any goroutine.
func (a *Arbiter) NoteVolume(address string, volume int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volumes[address] = volume
}

// ActiveDevice returns the device currently holding the slot for the
// direction, "" when none. Safe from any goroutine.
func (a *Arbiter) ActiveDevice(direction device.Direction) (string, profile.ID) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	slot, ok := a.slots[direction]
	if !ok || slot.State != SlotActive {
		return "", ""
	}
	return slot.Address, slot.Profile
}

// ActiveGroup returns the currently active group id, GroupIDInvalid
// when none. Safe from any goroutine.
func (a *Arbiter) ActiveGroup() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeGroup
}

// SetActiveDevice makes the device (and its coordinated set, if any)
// the active audio device for every direction it supports.
//
// An empty address deactivates the current active device. A device the
// registries do not know resolves to a no-op deactivation. Repeating
// the call for the already-active device or group changes nothing and
// emits no notification.
//
// requested is the caller's profile preference; MaskNone falls back to
// the previously active profile per direction, then the stored
// preference, then any connected audio profile.
//
// Must run on the dispatch loop. Never returns an error: arbitration
// failures are logged and recovered locally.
func (a *Arbiter) SetActiveDevice(address string, requested profile.Mask) {
	if address == "" {
		a.deactivate()
		return
	}

	d, err := a.devices.Get(address)
	if err != nil {
		a.logger.Warn("activation for unknown device treated as deactivation", "address", address)
		a.deactivate()
		return
	}
	groupID := d.GroupID

	// Idempotent: activating the already-active device or group again
	// is a strict no-op.
	if groupID != device.GroupIDInvalid && groupID == a.activeGroup {
		return
	}
	if groupID == device.GroupIDInvalid && a.activeGroup == device.GroupIDInvalid && address == a.activeAddr {
		return
	}

	newDirections := a.targetDirections(address, groupID)
	if newDirections == device.DirectionNone {
		a.logger.Warn("activation target carries no audio directions",
			"address", address,
			"group_id", groupID,
		)
	}

	prevAddr := a.activeAddr
	prevGroup := a.activeGroup

	for _, dir := range []device.Direction{device.DirectionOutput, device.DirectionInput} {
		a.decideDirection(dir, address, newDirections, requested)
	}

	a.mu.Lock()
	a.activeAddr = address
	a.activeGroup = groupID
	a.mu.Unlock()

	// Registry bookkeeping and stack commands: the old group hands over
	// with a fallback in place, the new one activates.
	if prevGroup != device.GroupIDInvalid && prevGroup != groupID {
		if err := a.groups.SetFallbackOnDeactivate(prevGroup, true); err != nil {
			a.logger.Debug("fallback flag update failed", "group_id", prevGroup, "error", err)
		}
		a.command(prevGroup, false)
	}
	if groupID != device.GroupIDInvalid {
		if err := a.groups.SetActive(groupID, true); err != nil {
			a.logger.Warn("group activation bookkeeping failed", "group_id", groupID, "error", err)
		}
		if err := a.groups.SetLead(groupID, address); err != nil {
			a.logger.Debug("lead update failed", "group_id", groupID, "error", err)
		}
		a.command(groupID, true)
	}

	a.logger.Info("active device set",
		"address", address,
		"group_id", groupID,
		"previous", prevAddr,
		"directions", newDirections.String(),
	)
}

// RemoveActiveDevice withdraws the current active device from every
// direction it holds. hasFallback reports that another device is about
// to take over, which suppresses the framework's noisy-disconnect
// pause.
//
// Must run on the dispatch loop.
func (a *Arbiter) RemoveActiveDevice(hasFallback bool) {
	a.mu.Lock()
	prevGroup := a.activeGroup
	a.activeAddr = ""
	a.activeGroup = device.GroupIDInvalid
	a.mu.Unlock()

	for _, dir := range []device.Direction{device.DirectionOutput, device.DirectionInput} {
		a.clearSlot(dir, hasFallback)
	}

	if prevGroup != device.GroupIDInvalid {
		if lost, ok := a.groups.ClearLostLead(prevGroup); ok && a.finalizer != nil {
			a.finalizer.SynthesizeDisconnect(lost)
		}
	}
}

// deactivate is the pure-deactivation path: the formerly active group
// is marked inactive, its lost-lead tracking is force-cleared with a
// synthesised terminal disconnect, and the audio framework is told the
// slots are empty.
func (a *Arbiter) deactivate() {
	a.mu.RLock()
	prevGroup := a.activeGroup
	prevAddr := a.activeAddr
	a.mu.RUnlock()

	if prevAddr == "" && prevGroup == device.GroupIDInvalid {
		return
	}

	if prevGroup != device.GroupIDInvalid {
		if lost, ok := a.groups.ClearLostLead(prevGroup); ok && a.finalizer != nil {
			a.finalizer.SynthesizeDisconnect(lost)
		}
		if err := a.groups.SetActive(prevGroup, false); err != nil {
			a.logger.Debug("group deactivation bookkeeping failed", "group_id", prevGroup, "error", err)
		}
		a.command(prevGroup, false)
	}

	a.mu.Lock()
	a.activeAddr = ""
	a.activeGroup = device.GroupIDInvalid
	a.mu.Unlock()

	for _, dir := range []device.Direction{device.DirectionOutput, device.DirectionInput} {
		a.clearSlot(dir, false)
	}

	a.logger.Info("active device cleared", "previous", prevAddr, "group_id", prevGroup)
}

// decideDirection updates one direction's slot for a new target device
// and notifies the audio framework when the slot actually changes.
func (a *Arbiter) decideDirection(dir device.Direction, address string, newDirections device.Direction, requested profile.Mask) {
	a.mu.Lock()
	slot := a.slots[dir]
	oldAddr := ""
	if slot.State == SlotActive {
		oldAddr = slot.Address
	}
	oldProfile := slot.Profile
	a.mu.Unlock()

	newAddr := ""
	var newProfile profile.ID
	if newDirections.Has(dir) {
		newAddr = address
		newProfile = a.pickProfile(dir, address, requested, oldProfile)
	}

	// Neither side serves this direction: nothing to decide.
	if oldAddr == "" && newAddr == "" {
		return
	}
	// The slot changes when the device reference differs or the
	// carrying profile flips.
	if oldAddr == newAddr && oldProfile == newProfile {
		return
	}

	suppress := newAddr != "" || a.stillConnected(oldAddr)
	volume := -1
	if newAddr != "" && dir == device.DirectionOutput {
		volume = a.volumeFor(newAddr)
	}

	a.mu.Lock()
	if newAddr == "" {
		*slot = Slot{State: SlotInactive}
	} else {
		*slot = Slot{State: SlotActive, Address: newAddr, Profile: newProfile}
	}
	a.mu.Unlock()

	a.notify(dir, newAddr, oldAddr, RouteInfo{SuppressNoisy: suppress, Volume: volume}, newProfile)
}

// clearSlot empties one direction's slot and notifies the framework if
// it held a device.
func (a *Arbiter) clearSlot(dir device.Direction, hasFallback bool) {
	a.mu.Lock()
	slot := a.slots[dir]
	if slot.State != SlotActive {
		a.mu.Unlock()
		return
	}
	prev := slot.Address
	*slot = Slot{State: SlotInactive}
	a.mu.Unlock()

	suppress := hasFallback || a.stillConnected(prev)
	a.notify(dir, "", prev, RouteInfo{SuppressNoisy: suppress, Volume: -1}, "")
}

// notify forwards one slot change to the audio framework and telemetry.
func (a *Arbiter) notify(dir device.Direction, newAddr, prevAddr string, info RouteInfo, p profile.ID) {
	if a.router != nil {
		a.router.ActiveDeviceChanged(dir, newAddr, prevAddr, info)
	}
	if a.recorder != nil {
		a.recorder.WriteActiveDeviceChange(dir.String(), newAddr, string(p))
	}
}

// pickProfile resolves which profile carries a direction for the
// device. Precedence: the caller's explicit request, then the
// previously active profile (stability over churn), then the stored
// preference, then any connected audio profile.
func (a *Arbiter) pickProfile(dir device.Direction, address string, requested profile.Mask, previous profile.ID) profile.ID {
	serves := func(p profile.ID) bool {
		return a.profiles != nil &&
			a.profiles.Connected(address, p) &&
			a.profiles.Directions(address, p).Has(dir)
	}

	for _, p := range requested.IDs() {
		if serves(p) {
			return p
		}
	}
	if previous != "" && serves(previous) {
		return previous
	}
	if stored := a.storedPreference(dir, address); stored != "" && serves(stored) {
		return stored
	}
	for _, p := range audioProfiles {
		if serves(p) {
			return p
		}
	}
	return ""
}

// storedPreference re-reads the persisted preference for the direction;
// output maps to the output preference, input to the duplex one.
func (a *Arbiter) storedPreference(dir device.Direction, address string) profile.ID {
	if a.prefs == nil {
		return ""
	}
	prefs, err := a.prefs.PreferredProfiles(context.Background(), address)
	if err != nil {
		a.logger.Debug("stored preference lookup failed", "address", address, "error", err)
		return ""
	}
	if dir == device.DirectionInput {
		return prefs.Duplex
	}
	return prefs.Output
}

// targetDirections returns the union of directions the target can
// serve: for a grouped device, across all connected members; otherwise
// the device's own connected profiles.
func (a *Arbiter) targetDirections(address string, groupID int) device.Direction {
	members := []string{address}
	if groupID != device.GroupIDInvalid {
		members = members[:0]
		for _, m := range a.devices.MembersOf(groupID) {
			members = append(members, m.Address)
		}
	}

	var dirs device.Direction
	for _, member := range members {
		for _, p := range audioProfiles {
			if a.profiles != nil && a.profiles.Connected(member, p) {
				dirs |= a.profiles.Directions(member, p)
			}
		}
	}
	return dirs
}

// stillConnected reports whether the device keeps any audio profile
// connection up.
func (a *Arbiter) stillConnected(address string) bool {
	if address == "" || a.profiles == nil {
		return false
	}
	for _, p := range audioProfiles {
		if a.profiles.Connected(address, p) {
			return true
		}
	}
	return false
}

// volumeFor returns the last known volume for the device, -1 unknown.
func (a *Arbiter) volumeFor(address string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if v, ok := a.volumes[address]; ok {
		return v
	}
	return -1
}

// command issues a best-effort group activation command to the stack.
func (a *Arbiter) command(groupID int, active bool) {
	if a.commands == nil {
		return
	}
	if err := a.commands.GroupSetActive(groupID, active); err != nil {
		a.logger.Warn("group command failed", "group_id", groupID, "active", active, "error", err)
	}
}
