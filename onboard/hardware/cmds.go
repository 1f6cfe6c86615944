package hardware

import (
	"fmt"

	"github.com/CodedInternet/gowl/onboard/canbus"
	"github.com/CodedInternet/gowl/onboard/settings"
)

// Arbitration id ranges. The low byte of the id carries the node.
const (
	SettingsBase = 0x100 // settings push, payload is a TLV settings map
	CommandBase  = 0x200 // config select, payload byte 0 is a 1 based index

	kindMask = 0xf00
	nodeMask = 0x0ff
)

// MsgKind identifies what a frame carries.
type MsgKind int

const (
	KindUnknown MsgKind = iota
	KindSettings
	KindConfigSelect
)

func (k MsgKind) String() string {
	switch k {
	case KindSettings:
		return "settings"
	case KindConfigSelect:
		return "config-select"
	default:
		return "unknown"
	}
}

// Classify splits an arbitration id into its message kind and node.
func Classify(id uint32) (kind MsgKind, node uint8) {
	if id > CommandBase|nodeMask {
		return KindUnknown, 0
	}

	node = uint8(id & nodeMask)
	switch id & kindMask {
	case SettingsBase:
		return KindSettings, node
	case CommandBase:
		return KindConfigSelect, node
	default:
		return KindUnknown, node
	}
}

// SettingsFrame builds the frame advertising m for node.
func SettingsFrame(node uint8, m settings.Map) (canbus.Frame, error) {
	data, err := settings.Encode(m)
	if err != nil {
		return canbus.Frame{}, fmt.Errorf("encoding settings for node %d: %w", node, err)
	}

	return canbus.Frame{
		ID:   SettingsBase + uint32(node),
		Data: data,
	}, nil
}

// ConfigSelectFrame builds the command asking node to load config index.
func ConfigSelectFrame(node uint8, index uint8) canbus.Frame {
	return canbus.Frame{
		ID:   CommandBase + uint32(node),
		Data: []byte{index},
	}
}
