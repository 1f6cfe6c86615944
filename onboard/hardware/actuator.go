package hardware

import "time"

// actuator tracks the pulse currently driving one relay.
type actuator struct {
	Relay int
	Pin   int

	on    bool
	offAt time.Time
	off   *time.Timer
}

// PulseState is a point in time view of a relay.
type PulseState struct {
	Relay int
	Pin   int
	On    bool
	OffAt time.Time
}

func (a *actuator) state() PulseState {
	return PulseState{
		Relay: a.Relay,
		Pin:   a.Pin,
		On:    a.on,
		OffAt: a.offAt,
	}
}
