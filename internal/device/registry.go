package device

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the registries.
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

// removeGuard vetoes device removal. Installed by the GroupRegistry so
// the sole connected member of an active group cannot be dropped.
// connectedPeers is the number of connected members in the device's
// group, the device itself included.
type removeGuard func(d *Device, connectedPeers int) error

// Registry is the canonical in-memory store of device descriptors.
//
// Descriptors are rebuilt from stack events; the registry persists
// nothing itself. All mutation happens on the dispatch loop; the mutex
// exists so read-only snapshots can be served from any goroutine.
//
// All public methods are thread-safe.
type Registry struct {
	devices map[string]*Device
	mu      sync.RWMutex
	guard   removeGuard
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Upsert returns the descriptor for address, creating it if absent.
// An existing descriptor is never modified: in particular an already
// assigned group ID survives repeated upserts.
//
// Returns:
//   - *Device: Deep copy of the descriptor
//   - error: ErrInvalidAddress for an empty address
func (r *Registry) Upsert(address string) (*Device, error) {
	if address == "" {
		return nil, ErrInvalidAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[address]
	if !ok {
		d = &Device{
			Address: address,
			GroupID: GroupIDInvalid,
		}
		r.devices[address] = d
		r.logger.Debug("device descriptor created", "address", address)
	}
	return d.DeepCopy(), nil
}

// Get retrieves a device by address.
// Returns ErrNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(address string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[address]
	if !ok {
		return nil, ErrNotFound
	}
	return d.DeepCopy(), nil
}

// List retrieves all devices sorted by address.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address < devices[j].Address
	})
	return devices
}

// Remove deletes a device descriptor.
//
// Removal fails with ErrPreconditionFailed when the device is the sole
// connected member of an active group: tearing it down would strand the
// audio framework's routing without a deactivation first.
//
// Returns:
//   - error: ErrNotFound if absent, ErrPreconditionFailed if vetoed
func (r *Registry) Remove(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[address]
	if !ok {
		return ErrNotFound
	}

	if r.guard != nil {
		connectedPeers := 0
		if d.GroupID != GroupIDInvalid {
			for _, peer := range r.devices {
				if peer.GroupID == d.GroupID && peer.Connected {
					connectedPeers++
				}
			}
		}
		if err := r.guard(d, connectedPeers); err != nil {
			r.logger.Warn("device removal vetoed",
				"address", address,
				"group_id", d.GroupID,
				"error", err,
			)
			return err
		}
	}

	delete(r.devices, address)
	r.logger.Info("device descriptor removed", "address", address)
	return nil
}

// SetGroup assigns the device to a coordinated set.
func (r *Registry) SetGroup(address string, groupID int) error {
	if groupID == GroupIDInvalid {
		return ErrInvalidGroup
	}
	return r.update(address, func(d *Device) {
		d.GroupID = groupID
	})
}

// ClearGroup detaches the device from its coordinated set.
func (r *Registry) ClearGroup(address string) error {
	return r.update(address, func(d *Device) {
		d.GroupID = GroupIDInvalid
	})
}

// SetBondState records the device's pairing state.
func (r *Registry) SetBondState(address string, state BondState) error {
	return r.update(address, func(d *Device) {
		d.BondState = state
	})
}

// SetConnected records whether the device has any profile connection up.
func (r *Registry) SetConnected(address string, connected bool) error {
	return r.update(address, func(d *Device) {
		d.Connected = connected
	})
}

// SetSupportedDirections records the directions from the device's last
// audio configuration.
func (r *Registry) SetSupportedDirections(address string, dirs Direction) error {
	return r.update(address, func(d *Device) {
		d.SupportedDirections = dirs
	})
}

// SetAudioLocation records the device's audio channel allocation.
func (r *Registry) SetAudioLocation(address string, location uint32) error {
	return r.update(address, func(d *Device) {
		d.AudioLocation = location
	})
}

// SetInbandRingtone records whether the device renders ringtones locally.
func (r *Registry) SetInbandRingtone(address string, enabled bool) error {
	return r.update(address, func(d *Device) {
		d.InbandRingtoneEnabled = enabled
	})
}

// MembersOf returns all devices assigned to groupID, sorted by address.
func (r *Registry) MembersOf(groupID int) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []Device
	for _, d := range r.devices {
		if d.GroupID == groupID {
			members = append(members, *d.DeepCopy())
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Address < members[j].Address
	})
	return members
}

// ConnectedMembersOf returns the connected devices assigned to groupID,
// sorted by address.
func (r *Registry) ConnectedMembersOf(groupID int) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []Device
	for _, d := range r.devices {
		if d.GroupID == groupID && d.Connected {
			members = append(members, *d.DeepCopy())
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Address < members[j].Address
	})
	return members
}

// update applies fn to the named descriptor under the write lock.
func (r *Registry) update(address string, fn func(d *Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[address]
	if !ok {
		return ErrNotFound
	}
	fn(d)
	return nil
}

// setRemoveGuard installs the removal veto. Called by the GroupRegistry.
func (r *Registry) setRemoveGuard(guard removeGuard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guard = guard
}
