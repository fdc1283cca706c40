package device

import (
	"sort"
	"sync"
)

// GroupRegistry is the canonical in-memory store of coordinated set
// descriptors.
//
// Membership lives on the device descriptors (back-references); the
// group registry tracks set-level state: connectivity, activity, served
// directions, available contexts, lost-lead recovery and codec status.
//
// All public methods are thread-safe. Lock ordering: GroupRegistry
// methods never call into the device Registry while holding their own
// lock, and the removal guard takes only a read lock.
type GroupRegistry struct {
	groups  map[int]*Group
	mu      sync.RWMutex
	devices *Registry
	logger  Logger
}

// NewGroupRegistry creates an empty group registry bound to a device
// registry. It installs the removal guard that protects the sole
// connected member of an active group.
func NewGroupRegistry(devices *Registry) *GroupRegistry {
	g := &GroupRegistry{
		groups:  make(map[int]*Group),
		devices: devices,
		logger:  noopLogger{},
	}
	devices.setRemoveGuard(g.removalGuard)
	return g
}

// SetLogger sets the logger for the group registry.
func (g *GroupRegistry) SetLogger(logger Logger) {
	g.logger = logger
}

// removalGuard vetoes removal of the sole connected member of an active
// group. Invoked by Registry.Remove under the registry lock.
func (g *GroupRegistry) removalGuard(d *Device, connectedPeers int) error {
	if d.GroupID == GroupIDInvalid || !d.Connected {
		return nil
	}

	g.mu.RLock()
	grp, ok := g.groups[d.GroupID]
	active := ok && grp.IsActive
	g.mu.RUnlock()

	if active && connectedPeers == 1 {
		return ErrPreconditionFailed
	}
	return nil
}

// GetOrCreate returns the descriptor for groupID, creating it if absent.
//
// Returns:
//   - *Group: Deep copy of the descriptor
//   - error: ErrInvalidGroup for a negative ID
func (g *GroupRegistry) GetOrCreate(groupID int) (*Group, error) {
	if groupID < 0 {
		return nil, ErrInvalidGroup
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	grp, ok := g.groups[groupID]
	if !ok {
		grp = &Group{ID: groupID}
		g.groups[groupID] = grp
		g.logger.Debug("group descriptor created", "group_id", groupID)
	}
	return grp.DeepCopy(), nil
}

// Get retrieves a group by ID.
// Returns ErrGroupNotFound if the group does not exist.
// The returned group is a deep copy; callers can safely modify it.
func (g *GroupRegistry) Get(groupID int) (*Group, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	grp, ok := g.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return grp.DeepCopy(), nil
}

// List retrieves all groups sorted by ID.
func (g *GroupRegistry) List() []Group {
	g.mu.RLock()
	defer g.mu.RUnlock()

	groups := make([]Group, 0, len(g.groups))
	for _, grp := range g.groups {
		groups = append(groups, *grp.DeepCopy())
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ID < groups[j].ID
	})
	return groups
}

// AddNode records a stack group_node_added event: the device descriptor
// is created if needed, assigned to the group, and the group descriptor
// is created if needed.
func (g *GroupRegistry) AddNode(address string, groupID int) error {
	if _, err := g.devices.Upsert(address); err != nil {
		return err
	}
	if err := g.devices.SetGroup(address, groupID); err != nil {
		return err
	}
	if _, err := g.GetOrCreate(groupID); err != nil {
		return err
	}
	g.logger.Info("group node added", "address", address, "group_id", groupID)
	return nil
}

// RemoveNode records a stack group_node_removed event: the device is
// detached and the group is dropped once empty and inactive.
func (g *GroupRegistry) RemoveNode(address string, groupID int) error {
	if err := g.devices.ClearGroup(address); err != nil {
		return err
	}
	if err := g.RemoveIfEmpty(groupID); err != nil {
		return err
	}
	g.logger.Info("group node removed", "address", address, "group_id", groupID)
	return nil
}

// RemoveIfEmpty deletes the group descriptor when no devices reference
// it and it is not active. A populated or active group is left alone;
// this is not an error.
func (g *GroupRegistry) RemoveIfEmpty(groupID int) error {
	// Snapshot membership before taking the group lock.
	members := g.devices.MembersOf(groupID)

	g.mu.Lock()
	defer g.mu.Unlock()

	grp, ok := g.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if len(members) > 0 || grp.IsActive {
		return nil
	}

	delete(g.groups, groupID)
	g.logger.Debug("group descriptor removed", "group_id", groupID)
	return nil
}

// SetConnected records whether the group has any connected member.
// Dropping connectivity also drops activity to preserve the invariant
// that an active group is connected.
func (g *GroupRegistry) SetConnected(groupID int, connected bool) error {
	return g.update(groupID, func(grp *Group) {
		grp.IsConnected = connected
		if !connected && grp.IsActive {
			g.logger.Warn("group lost connectivity while active", "group_id", groupID)
			grp.IsActive = false
		}
	})
}

// SetActive records whether the group holds an active-device slot.
// Activating a group with no connected members fails with
// ErrGroupNotConnected. Deactivating clears the fallback flag.
func (g *GroupRegistry) SetActive(groupID int, active bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	grp, ok := g.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if active && !grp.IsConnected {
		return ErrGroupNotConnected
	}
	grp.IsActive = active
	if !active {
		grp.HasFallbackOnDeactivate = false
	}
	return nil
}

// SetDirection records the union of directions the group's connected
// members serve.
func (g *GroupRegistry) SetDirection(groupID int, dirs Direction) error {
	return g.update(groupID, func(grp *Group) {
		grp.Direction = dirs
	})
}

// SetAvailableContexts records the audio contexts the group accepts and
// gates every member's in-band ringtone flag on ringtone availability.
func (g *GroupRegistry) SetAvailableContexts(groupID int, contexts Context) error {
	if err := g.update(groupID, func(grp *Group) {
		grp.AvailableContexts = contexts
	}); err != nil {
		return err
	}

	// Ringtone gating fans out to the member descriptors.
	enabled := contexts.Has(ContextRingtone)
	for _, member := range g.devices.MembersOf(groupID) {
		if err := g.devices.SetInbandRingtone(member.Address, enabled); err != nil {
			g.logger.Warn("ringtone gating failed",
				"address", member.Address,
				"group_id", groupID,
				"error", err,
			)
		}
	}
	return nil
}

// SetCodecStatus records the group's codec status.
func (g *GroupRegistry) SetCodecStatus(groupID int, status *CodecStatus) error {
	return g.update(groupID, func(grp *Group) {
		grp.CodecStatus = status.DeepCopy()
	})
}

// SetLead records the member currently fronting the group towards the
// audio framework.
func (g *GroupRegistry) SetLead(groupID int, address string) error {
	return g.update(groupID, func(grp *Group) {
		grp.CurrentLeadDevice = address
	})
}

// SetFallbackOnDeactivate flags a pending deactivation as covered by a
// fallback device.
func (g *GroupRegistry) SetFallbackOnDeactivate(groupID int, hasFallback bool) error {
	return g.update(groupID, func(grp *Group) {
		grp.HasFallbackOnDeactivate = hasFallback
	})
}

// MarkLostLead records that address dropped out of the group mid-stream
// while siblings kept streaming. The mark defers audio-framework
// notification until the group deactivates or the device returns.
func (g *GroupRegistry) MarkLostLead(groupID int, address string) error {
	return g.update(groupID, func(grp *Group) {
		grp.LostLeadDevice = address
		g.logger.Info("lost lead device tracked",
			"group_id", groupID,
			"address", address,
		)
	})
}

// ClearLostLead removes the lost-lead mark, returning the previously
// tracked address and whether a mark existed.
func (g *GroupRegistry) ClearLostLead(groupID int) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	grp, ok := g.groups[groupID]
	if !ok || grp.LostLeadDevice == "" {
		return "", false
	}
	address := grp.LostLeadDevice
	grp.LostLeadDevice = ""
	g.logger.Info("lost lead device cleared",
		"group_id", groupID,
		"address", address,
	)
	return address, true
}

// LostLead returns the lost-lead mark for the group, "" when none.
func (g *GroupRegistry) LostLead(groupID int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	grp, ok := g.groups[groupID]
	if !ok {
		return ""
	}
	return grp.LostLeadDevice
}

// GroupOf returns the group ID a device belongs to, GroupIDInvalid when
// the device is unknown or ungrouped.
func (g *GroupRegistry) GroupOf(address string) int {
	d, err := g.devices.Get(address)
	if err != nil {
		return GroupIDInvalid
	}
	return d.GroupID
}

// update applies fn to the named group under the write lock.
func (g *GroupRegistry) update(groupID int, fn func(grp *Group)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	grp, ok := g.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	fn(grp)
	return nil
}
