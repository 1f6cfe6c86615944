package comms

import (
	"github.com/CodedInternet/gowl/onboard"
	"github.com/CodedInternet/gowl/onboard/settings"
)

// Cmd is a command sent by a client over the event socket.
type Cmd struct {
	Cmd      string       `json:"cmd"`
	Node     uint8        `json:"node,omitempty"`
	Index    int          `json:"index,omitempty"`
	Settings settings.Map `json:"settings,omitempty"`
}

// Message is anything the conductor pushes to clients.
type Message struct {
	Type   string          `json:"type"`
	Event  *onboard.Event  `json:"event,omitempty"`
	Status *onboard.Status `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`
}
