package preference

import (
	"context"
	"fmt"
	"time"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/dispatch"
	"github.com/bluecore-io/bluecore/internal/profile"
	"github.com/bluecore-io/bluecore/internal/storage"
)

// Logger defines the logging interface used by the negotiator.
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

// Status is the terminal outcome delivered to the requester.
type Status int

const (
	// StatusSuccess means the preference is persisted and every issued
	// audio-framework request was acknowledged.
	StatusSuccess Status = iota

	// StatusTimeout means the acknowledgement window elapsed. The
	// persisted preference is NOT rolled back; only the confirmation
	// failed.
	StatusTimeout

	// StatusAnotherActiveRequest means a request for the same group was
	// already pending; the new request was rejected, not queued.
	StatusAnotherActiveRequest

	// StatusStorageError means persisting the preference failed; the
	// audio framework was never contacted.
	StatusStorageError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	case StatusAnotherActiveRequest:
		return "another_active_request"
	case StatusStorageError:
		return "storage_error"
	default:
		return "unknown"
	}
}

// Callback delivers the terminal outcome of a preference request.
type Callback func(address string, prefs storage.Preferences, status Status)

// ActiveSource answers which device/group currently holds the active
// slots. Implemented by the arbiter.
type ActiveSource interface {
	ActiveGroup() int
	ActiveDevice(direction device.Direction) (string, profile.ID)
}

// Framework receives the asynchronous audio-framework requests; each
// one is acknowledged later through NotifyActiveDeviceChangeApplied.
type Framework interface {
	PreferredProfileChanged(address string, direction device.Direction, p profile.ID)
}

// Recorder receives negotiation outcomes for telemetry.
type Recorder interface {
	WritePreferenceOutcome(groupID int, status string, durationMs float64)
}

// pending is the request state machine: a record exists only in the
// Pending phase, created on acceptance and destroyed on the final
// acknowledgement or timeout. Remaining counts outstanding framework
// acknowledgements.
type pending struct {
	address   string
	groupID   int
	prefs     storage.Preferences
	remaining int
	callback  Callback
	cancel    func()
	started   time.Time
}

// Negotiator arbitrates preferred-audio-profile changes: which profile
// (classic vs LE) carries output and duplex audio for a device or
// coordinated set.
//
// At most one request is in flight per group at a time; conflicting
// requests are rejected immediately. The persisted value is written
// before the audio framework is contacted and is never rolled back.
//
// All entry points must run on the dispatch loop.
type Negotiator struct {
	devices   *device.Registry
	groups    *device.GroupRegistry
	store     storage.Repository
	active    ActiveSource
	framework Framework
	loop      *dispatch.Loop
	timeout   time.Duration

	// Keyed by group id, or by address for ungrouped devices.
	requests map[string]*pending

	recorder Recorder
	logger   Logger
}

// New creates a negotiator. timeout bounds the acknowledgement window
// for each accepted request.
func New(devices *device.Registry, groups *device.GroupRegistry, store storage.Repository, active ActiveSource, framework Framework, loop *dispatch.Loop, timeout time.Duration) *Negotiator {
	return &Negotiator{
		devices:   devices,
		groups:    groups,
		store:     store,
		active:    active,
		framework: framework,
		loop:      loop,
		timeout:   timeout,
		requests:  make(map[string]*pending),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the negotiator.
func (n *Negotiator) SetLogger(logger Logger) {
	n.logger = logger
}

// SetRecorder wires the telemetry sink.
func (n *Negotiator) SetRecorder(r Recorder) {
	n.recorder = r
}

// Request starts a preference change for the device's group. An empty
// field in prefs means "leave that role unchanged".
//
// The outcome arrives through cb: immediately for rejections, no-delta
// requests and storage failures, asynchronously otherwise.
//
// Returns:
//   - error: ErrAnotherActiveRequest when a request for the group is
//     already pending (cb is NOT invoked in that case)
//
// Must run on the dispatch loop.
func (n *Negotiator) Request(address string, prefs storage.Preferences, cb Callback) error {
	d, err := n.devices.Get(address)
	if err != nil {
		return err
	}
	key := n.key(address, d.GroupID)

	if _, inFlight := n.requests[key]; inFlight {
		return fmt.Errorf("%w: group %s", ErrAnotherActiveRequest, key)
	}

	current, err := n.store.PreferredProfiles(context.Background(), address)
	if err != nil {
		n.logger.Error("reading current preferences failed", "address", address, "error", err)
		cb(address, prefs, StatusStorageError)
		return nil
	}

	merged := current
	outputChanged := prefs.Output != "" && prefs.Output != current.Output
	duplexChanged := prefs.Duplex != "" && prefs.Duplex != current.Duplex
	if outputChanged {
		merged.Output = prefs.Output
	}
	if duplexChanged {
		merged.Duplex = prefs.Duplex
	}

	// No delta: acknowledge without touching storage or the framework.
	if !outputChanged && !duplexChanged {
		cb(address, current, StatusSuccess)
		return nil
	}

	// Persist first. A storage failure aborts before the framework is
	// contacted.
	members := []string{address}
	if d.GroupID != device.GroupIDInvalid {
		members = members[:0]
		for _, m := range n.devices.MembersOf(d.GroupID) {
			members = append(members, m.Address)
		}
	}
	if err := n.store.SetPreferredProfiles(context.Background(), members, merged); err != nil {
		n.logger.Error("persisting preferences failed", "address", address, "error", err)
		cb(address, merged, StatusStorageError)
		return nil
	}

	// One framework request per changed role whose new profile is
	// currently routing that direction through this device or group.
	issued := 0
	if outputChanged && n.holdsDirection(address, d.GroupID, device.DirectionOutput, merged.Output) {
		n.framework.PreferredProfileChanged(address, device.DirectionOutput, merged.Output)
		issued++
	}
	if duplexChanged && n.holdsDirection(address, d.GroupID, device.DirectionInput, merged.Duplex) {
		n.framework.PreferredProfileChanged(address, device.DirectionInput, merged.Duplex)
		issued++
	}

	// Persisted but nothing to confirm: success right away.
	if issued == 0 {
		cb(address, merged, StatusSuccess)
		return nil
	}

	p := &pending{
		address:   address,
		groupID:   d.GroupID,
		prefs:     merged,
		remaining: issued,
		callback:  cb,
		started:   time.Now(),
	}
	p.cancel = n.loop.PostDelayed(n.timeout, func() { n.expire(key) })
	n.requests[key] = p

	n.logger.Info("preference change pending",
		"address", address,
		"group", key,
		"awaiting_acks", issued,
	)
	return nil
}

// NotifyActiveDeviceChangeApplied is the acknowledgement entry point
// for the audio framework. The final acknowledgement cancels the
// timeout and delivers success to the requester.
//
// Returns:
//   - error: ErrNoPendingRequest when no request is pending for the
//     device's group
//
// Must run on the dispatch loop.
func (n *Negotiator) NotifyActiveDeviceChangeApplied(address string) error {
	key := n.key(address, n.groups.GroupOf(address))
	p, ok := n.requests[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingRequest, address)
	}

	p.remaining--
	if p.remaining > 0 {
		return nil
	}

	p.cancel()
	delete(n.requests, key)
	n.record(p, StatusSuccess)
	p.callback(p.address, p.prefs, StatusSuccess)
	return nil
}

// Pending reports whether a request is in flight for the device's
// group.
func (n *Negotiator) Pending(address string) bool {
	_, ok := n.requests[n.key(address, n.groups.GroupOf(address))]
	return ok
}

// expire handles the acknowledgement window elapsing. The pending
// record is removed — a repeated request is accepted afterwards — and
// the requester is told about the timeout. The persisted preference
// stands.
func (n *Negotiator) expire(key string) {
	p, ok := n.requests[key]
	if !ok {
		return
	}
	delete(n.requests, key)

	n.logger.Warn("preference change timed out",
		"address", p.address,
		"group", key,
		"missing_acks", p.remaining,
	)
	n.record(p, StatusTimeout)
	p.callback(p.address, p.prefs, StatusTimeout)
}

// holdsDirection reports whether the direction's active slot is held by
// the device or a member of its group AND carried by the target
// profile. A preference moving towards a profile that is not routing
// the direction leaves the framework with nothing to re-route, so no
// acknowledgement is owed.
func (n *Negotiator) holdsDirection(address string, groupID int, dir device.Direction, target profile.ID) bool {
	holder, carrier := n.active.ActiveDevice(dir)
	if holder == "" || carrier != target {
		return false
	}
	if holder == address {
		return true
	}
	return groupID != device.GroupIDInvalid && n.groups.GroupOf(holder) == groupID
}

// key resolves the pending-request key: the group id when grouped, the
// address otherwise.
func (n *Negotiator) key(address string, groupID int) string {
	if groupID != device.GroupIDInvalid {
		return fmt.Sprintf("g%d", groupID)
	}
	return address
}

func (n *Negotiator) record(p *pending, status Status) {
	if n.recorder == nil {
		return
	}
	n.recorder.WritePreferenceOutcome(p.groupID, status.String(), float64(time.Since(p.started).Milliseconds()))
}
