package device

// GroupIDInvalid marks a device that belongs to no coordinated set.
const GroupIDInvalid = -1

// Direction is a bitmask of audio directions a device or group can serve.
type Direction uint8

const (
	// DirectionNone means no audio direction.
	DirectionNone Direction = 0

	// DirectionOutput is rendered audio (host -> device, "sink").
	DirectionOutput Direction = 1 << 0

	// DirectionInput is captured audio (device -> host, "source").
	DirectionInput Direction = 1 << 1
)

// Has reports whether all directions in dir are present in d.
func (d Direction) Has(dir Direction) bool {
	return d&dir == dir
}

// String returns a human-readable direction description.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionOutput:
		return "output"
	case DirectionInput:
		return "input"
	case DirectionOutput | DirectionInput:
		return "output|input"
	default:
		return "unknown"
	}
}

// Context is a bitmask of audio context types a group advertises as
// available. Values mirror the LE Audio context type assignments.
type Context uint16

const (
	ContextUnspecified     Context = 1 << 0
	ContextConversational  Context = 1 << 1
	ContextMedia           Context = 1 << 2
	ContextGame            Context = 1 << 3
	ContextInstructional   Context = 1 << 4
	ContextVoiceAssistants Context = 1 << 5
	ContextLive            Context = 1 << 6
	ContextSoundEffects    Context = 1 << 7
	ContextNotifications   Context = 1 << 8
	ContextRingtone        Context = 1 << 9
	ContextAlerts          Context = 1 << 10
	ContextEmergencyAlarm  Context = 1 << 11
)

// Has reports whether all contexts in c2 are present in c.
func (c Context) Has(c2 Context) bool {
	return c&c2 == c2
}

// BondState is the pairing relationship between the adapter and a device.
type BondState int

const (
	// BondNone means no persistent pairing exists.
	BondNone BondState = iota

	// Bonding means pairing is in progress.
	Bonding

	// Bonded means link keys are stored and the device may connect
	// profiles without re-pairing.
	Bonded
)

// String returns the bond state name.
func (b BondState) String() string {
	switch b {
	case BondNone:
		return "none"
	case Bonding:
		return "bonding"
	case Bonded:
		return "bonded"
	default:
		return "unknown"
	}
}

// Device is the canonical descriptor for a remote Bluetooth device.
//
// Descriptors are rebuilt from stack events at runtime; only connection
// policies and audio-profile preferences are persisted (see the storage
// package).
type Device struct {
	// Address is the device's Bluetooth address, "AA:BB:CC:DD:EE:FF".
	Address string `json:"address"`

	// GroupID is the coordinated set this device belongs to, or
	// GroupIDInvalid when ungrouped.
	GroupID int `json:"group_id"`

	// SupportedDirections is the union of audio directions the device
	// advertised in its last audio configuration.
	SupportedDirections Direction `json:"supported_directions"`

	// AudioLocation is the device's reported audio channel allocation
	// bitmask (left/right/etc), zero when unknown.
	AudioLocation uint32 `json:"audio_location"`

	// BondState is the current pairing state.
	BondState BondState `json:"bond_state"`

	// Connected reports whether at least one profile-level connection
	// to the device is up. Maintained by the profile managers.
	Connected bool `json:"connected"`

	// InbandRingtoneEnabled reports whether the device renders ringtones
	// locally. Gated by the group's available contexts.
	InbandRingtoneEnabled bool `json:"inband_ringtone_enabled"`
}

// DeepCopy creates an independent copy of the Device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// CodecConfig describes one codec configuration or capability entry.
type CodecConfig struct {
	CodecName       string `json:"codec_name"`
	SampleRateHz    int    `json:"sample_rate_hz"`
	BitsPerSample   int    `json:"bits_per_sample"`
	ChannelCount    int    `json:"channel_count"`
	FrameDurationUs int    `json:"frame_duration_us"`
	OctetsPerFrame  int    `json:"octets_per_frame"`
}

// CodecStatus carries a group's codec capabilities and the currently
// selected configuration per direction.
type CodecStatus struct {
	InputCapabilities  []CodecConfig `json:"input_capabilities"`
	OutputCapabilities []CodecConfig `json:"output_capabilities"`
	InputConfig        *CodecConfig  `json:"input_config,omitempty"`
	OutputConfig       *CodecConfig  `json:"output_config,omitempty"`
}

// DeepCopy creates an independent copy of the CodecStatus.
func (cs *CodecStatus) DeepCopy() *CodecStatus {
	if cs == nil {
		return nil
	}
	cpy := CodecStatus{}
	if cs.InputCapabilities != nil {
		cpy.InputCapabilities = make([]CodecConfig, len(cs.InputCapabilities))
		copy(cpy.InputCapabilities, cs.InputCapabilities)
	}
	if cs.OutputCapabilities != nil {
		cpy.OutputCapabilities = make([]CodecConfig, len(cs.OutputCapabilities))
		copy(cpy.OutputCapabilities, cs.OutputCapabilities)
	}
	if cs.InputConfig != nil {
		c := *cs.InputConfig
		cpy.InputConfig = &c
	}
	if cs.OutputConfig != nil {
		c := *cs.OutputConfig
		cpy.OutputConfig = &c
	}
	return &cpy
}

// Group is the descriptor for a coordinated set of devices (earbuds,
// hearing aid pairs). Membership is derived from device back-references;
// the group itself carries only set-level state.
type Group struct {
	// ID is the stack-assigned set identifier.
	ID int `json:"id"`

	// IsConnected is true while at least one member has a profile
	// connection up.
	IsConnected bool `json:"is_connected"`

	// IsActive is true while the group holds an active-device slot.
	// Invariant: IsActive implies IsConnected.
	IsActive bool `json:"is_active"`

	// Direction is the union of directions the connected members serve.
	Direction Direction `json:"direction"`

	// AvailableContexts is the set of audio contexts the group currently
	// accepts.
	AvailableContexts Context `json:"available_contexts"`

	// LostLeadDevice is the member that dropped out mid-stream while its
	// siblings kept streaming, "" when none. The audio framework is not
	// told about the loss until the group deactivates or the device
	// returns.
	LostLeadDevice string `json:"lost_lead_device,omitempty"`

	// CurrentLeadDevice is the member currently fronting the group
	// towards the audio framework.
	CurrentLeadDevice string `json:"current_lead_device,omitempty"`

	// HasFallbackOnDeactivate records, for a pending deactivation, that
	// another device will take over routing. Used to suppress the
	// "becoming noisy" pause when the stack later reports the group
	// inactive.
	HasFallbackOnDeactivate bool `json:"has_fallback_on_deactivate"`

	// CodecStatus is the last codec status reported for the group.
	CodecStatus *CodecStatus `json:"codec_status,omitempty"`
}

// DeepCopy creates an independent copy of the Group.
func (g *Group) DeepCopy() *Group {
	if g == nil {
		return nil
	}
	cpy := *g
	cpy.CodecStatus = g.CodecStatus.DeepCopy()
	return &cpy
}
