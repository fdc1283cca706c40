package stack

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/infrastructure/mqtt"
	"github.com/bluecore-io/bluecore/internal/profile"
)

// Logger is the minimal logging interface the bridge needs.
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

// Subscriber is the slice of the MQTT client the bridge consumes.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Poster hands work to the serialised dispatch loop. Satisfied by
// *dispatch.Loop.
type Poster interface {
	Post(fn func()) error
}

// ProfileSink receives the profile-scoped events the bridge decodes.
// Implemented by *adapter.Coordinator.
type ProfileSink interface {
	HandleConnectionState(id profile.ID, address string, state profile.ConnectionState, reason int)
	HandleGroupStatus(id profile.ID, groupID int, active bool)
	HandleBondStateChanged(address string, state device.BondState)
	ProfileStarted(id profile.ID)
	ProfileStopped(id profile.ID)
}

// VolumeSink receives absolute volume reports. Implemented by
// *arbiter.Arbiter.
type VolumeSink interface {
	NoteVolume(address string, volume int)
}

// eventQoS is the QoS level for the stack event subscription. At-least-
// once: the registries tolerate duplicate delivery.
const eventQoS byte = 1

// Bridge subscribes to the native stack's event topics, decodes each
// payload and routes it onto the dispatch loop. All registry mutation
// happens on the loop; the MQTT delivery goroutine only parses.
//
// Thread Safety: Start and Stop are safe for concurrent use. Routed
// events are serialised by the loop.
type Bridge struct {
	sub      Subscriber
	loop     Poster
	devices  *device.Registry
	groups   *device.GroupRegistry
	profiles ProfileSink
	volumes  VolumeSink

	topics mqtt.Topics

	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge wires a bridge over the given sinks. The volume sink may be
// nil; volume events are then dropped with a debug log.
//
// Parameters:
//   - sub: MQTT subscription surface
//   - loop: serialised dispatch loop
//   - devices: device descriptor registry
//   - groups: coordinated-set registry
//   - profiles: profile event sink (the adapter coordinator)
//   - volumes: absolute volume sink (the arbiter), optional
func NewBridge(sub Subscriber, loop Poster, devices *device.Registry, groups *device.GroupRegistry, profiles ProfileSink, volumes VolumeSink) *Bridge {
	return &Bridge{
		sub:      sub,
		loop:     loop,
		devices:  devices,
		groups:   groups,
		profiles: profiles,
		volumes:  volumes,
		logger:   noopLogger{},
	}
}

// SetLogger replaces the bridge logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	defer b.loggerMu.Unlock()
	if logger != nil {
		b.logger = logger
	}
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Start subscribes to every stack event topic. Events arriving before
// Start returns are handled normally.
func (b *Bridge) Start() error {
	if err := b.sub.Subscribe(b.topics.AllStackEvents(), eventQoS, b.onMessage); err != nil {
		return fmt.Errorf("subscribing to stack events: %w", err)
	}
	b.log().Info("stack bridge started", "topic", b.topics.AllStackEvents())
	return nil
}

// Stop withdraws the event subscription. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.sub.Unsubscribe(b.topics.AllStackEvents()); err != nil {
			b.log().Warn("unsubscribe failed during stop", "error", err)
		}
		b.log().Info("stack bridge stopped")
	})
}

// onMessage runs on the MQTT delivery goroutine. It decodes the payload
// and posts the state change onto the loop; decoding errors surface to
// the client wrapper, which logs and drops.
func (b *Bridge) onMessage(topic string, payload []byte) error {
	eventType := topic[strings.LastIndexByte(topic, '/')+1:]

	apply, err := b.route(eventType, payload)
	if err != nil {
		return err
	}
	if err := b.loop.Post(apply); err != nil {
		return fmt.Errorf("posting %s: %w", eventType, err)
	}
	return nil
}

// route decodes one event and returns the closure that applies it.
func (b *Bridge) route(eventType string, payload []byte) (func(), error) {
	switch eventType {
	case EventConnectionStateChanged:
		var ev ConnectionStateChanged
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		id := profile.ID(ev.Profile)
		if !id.Valid() {
			return nil, fmt.Errorf("%w: profile %q", ErrMalformedEvent, ev.Profile)
		}
		state, err := parseConnectionState(ev.State)
		if err != nil {
			return nil, err
		}
		return func() {
			b.profiles.HandleConnectionState(id, ev.Address, state, ev.Reason)
		}, nil

	case EventGroupNodeAdded:
		var ev GroupNode
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		return func() {
			if err := b.groups.AddNode(ev.Address, ev.GroupID); err != nil {
				b.log().Warn("group node add rejected",
					"address", ev.Address, "group", ev.GroupID, "error", err)
			}
		}, nil

	case EventGroupNodeRemoved:
		var ev GroupNode
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		return func() {
			if err := b.groups.RemoveNode(ev.Address, ev.GroupID); err != nil {
				b.log().Warn("group node remove rejected",
					"address", ev.Address, "group", ev.GroupID, "error", err)
			}
		}, nil

	case EventGroupStatusChanged:
		var ev GroupStatusChanged
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		id := profile.ID(ev.Profile)
		if !id.Valid() {
			return nil, fmt.Errorf("%w: profile %q", ErrMalformedEvent, ev.Profile)
		}
		// idle_during_call parks the set without releasing the route;
		// at registry level it reads as inactive.
		active := ev.Status == GroupStatusActive
		return func() {
			b.profiles.HandleGroupStatus(id, ev.GroupID, active)
		}, nil

	case EventAudioConfChanged:
		var ev AudioConfChanged
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		return func() { b.applyAudioConf(ev) }, nil

	case EventBondStateChanged:
		var ev BondStateChanged
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		state, err := parseBondState(ev.State)
		if err != nil {
			return nil, err
		}
		return func() {
			b.profiles.HandleBondStateChanged(ev.Address, state)
		}, nil

	case EventVolumeChanged:
		var ev VolumeChanged
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		return func() {
			if b.volumes == nil {
				b.log().Debug("volume event dropped, no sink", "address", ev.Address)
				return
			}
			b.volumes.NoteVolume(ev.Address, ev.Volume)
		}, nil

	case EventProfileStarted:
		var ev ProfileLifecycle
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		id := profile.ID(ev.Profile)
		if !id.Valid() {
			return nil, fmt.Errorf("%w: profile %q", ErrMalformedEvent, ev.Profile)
		}
		return func() { b.profiles.ProfileStarted(id) }, nil

	case EventProfileStopped:
		var ev ProfileLifecycle
		if err := decode(eventType, payload, &ev); err != nil {
			return nil, err
		}
		id := profile.ID(ev.Profile)
		if !id.Valid() {
			return nil, fmt.Errorf("%w: profile %q", ErrMalformedEvent, ev.Profile)
		}
		return func() { b.profiles.ProfileStopped(id) }, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
}

// applyAudioConf updates the device capabilities and, for grouped
// devices, the set-level contexts. The device is created on demand:
// audio configuration can land before the first connection event.
func (b *Bridge) applyAudioConf(ev AudioConfChanged) {
	if _, err := b.devices.Upsert(ev.Address); err != nil {
		b.log().Warn("audio conf for invalid address", "address", ev.Address, "error", err)
		return
	}
	if err := b.devices.SetSupportedDirections(ev.Address, device.Direction(ev.Directions)); err != nil {
		b.log().Warn("setting directions failed", "address", ev.Address, "error", err)
	}
	if ev.AudioLocation != 0 {
		if err := b.devices.SetAudioLocation(ev.Address, ev.AudioLocation); err != nil {
			b.log().Warn("setting audio location failed", "address", ev.Address, "error", err)
		}
	}
	if ev.GroupID == device.GroupIDInvalid {
		return
	}
	if err := b.groups.SetAvailableContexts(ev.GroupID, device.Context(ev.AvailableContexts)); err != nil {
		b.log().Warn("setting available contexts failed",
			"group", ev.GroupID, "error", err)
	}
}
