package profile

// ID identifies a profile module.
type ID string

// Profile identifiers. These match the profile names used on the bus
// topics and in the configuration file.
const (
	// A2DP is the classic media audio profile (output only).
	A2DP ID = "a2dp"

	// Headset is the classic telephony profile (duplex).
	Headset ID = "hfp"

	// LEAudio is the LE unicast audio profile (output and input).
	LEAudio ID = "le_audio"

	// HearingAid is the ASHA hearing aid profile (output only).
	HearingAid ID = "hearing_aid"

	// CSIP is the coordinated set identification profile. It carries no
	// audio; it resolves set membership.
	CSIP ID = "csip"

	// GATT is the baseline always-on scan/attribute capability. It is
	// never stopped while the adapter is in a BLE-capable state.
	GATT ID = "gatt"
)

// Valid reports whether id names a known profile.
func (id ID) Valid() bool {
	switch id {
	case A2DP, Headset, LEAudio, HearingAid, CSIP, GATT:
		return true
	}
	return false
}

// Mask is a bitmask of profile identifiers, used where an operation
// targets several profiles at once (active-device requests, capability
// queries).
type Mask uint16

const (
	MaskNone       Mask = 0
	MaskA2DP       Mask = 1 << 0
	MaskHeadset    Mask = 1 << 1
	MaskLEAudio    Mask = 1 << 2
	MaskHearingAid Mask = 1 << 3
	MaskCSIP       Mask = 1 << 4
	MaskGATT       Mask = 1 << 5
)

var maskBits = map[ID]Mask{
	A2DP:       MaskA2DP,
	Headset:    MaskHeadset,
	LEAudio:    MaskLEAudio,
	HearingAid: MaskHearingAid,
	CSIP:       MaskCSIP,
	GATT:       MaskGATT,
}

// Bit returns the mask bit for the profile, MaskNone for an unknown id.
func (id ID) Bit() Mask {
	return maskBits[id]
}

// MaskOf builds a mask from profile identifiers.
func MaskOf(ids ...ID) Mask {
	var m Mask
	for _, id := range ids {
		m |= id.Bit()
	}
	return m
}

// Has reports whether the mask contains the profile.
func (m Mask) Has(id ID) bool {
	bit := id.Bit()
	return bit != 0 && m&bit == bit
}

// declarationOrder fixes the expansion order for masks and All.
var declarationOrder = []ID{A2DP, Headset, LEAudio, HearingAid, CSIP, GATT}

// IDs expands the mask into profile identifiers, in declaration order.
func (m Mask) IDs() []ID {
	var ids []ID
	for _, id := range declarationOrder {
		if m.Has(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// All returns every recognised profile identifier.
func All() []ID {
	return append([]ID(nil), declarationOrder...)
}

// ConnectionState is the state of one (device, profile) connection.
type ConnectionState int

const (
	// StateDisconnected is the terminal and initial state.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a connect handshake is in flight.
	StateConnecting

	// StateConnected means the profile-level connection is up.
	StateConnected

	// StateDisconnecting means a disconnect handshake is in flight.
	StateDisconnecting
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Policy is the persisted per-device-per-profile connection policy.
// The integer values are the storage encoding; do not reorder.
type Policy int

const (
	// PolicyUnknown means no policy has been decided yet. Treated as
	// permissive for explicit requests.
	PolicyUnknown Policy = 0

	// PolicyAllowed permits connections, including automatic reconnects.
	PolicyAllowed Policy = 1

	// PolicyForbidden rejects all connection attempts.
	PolicyForbidden Policy = 2
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyUnknown:
		return "unknown"
	case PolicyAllowed:
		return "allowed"
	case PolicyForbidden:
		return "forbidden"
	default:
		return "invalid"
	}
}
