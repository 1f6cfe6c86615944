package hardware

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/CodedInternet/gowl/onboard/actuation"
)

// NoBuzzer disables audible signals.
const NoBuzzer = -1

// RelayMap maps logical relay index to a header (BOARD) pin.
type RelayMap map[int]int

// Validate checks the map covers relays 0..n-1 exactly once with unique GPIO
// header pins.
func (m RelayMap) Validate(n int) error {
	if len(m) != n {
		return fmt.Errorf("relay map has %d entries, want %d", len(m), n)
	}

	pins := make(map[int]int, n)
	for relay := 0; relay < n; relay++ {
		pin, ok := m[relay]
		if !ok {
			return fmt.Errorf("relay %d has no pin", relay)
		}
		if _, err := BoardLine(pin); err != nil {
			return fmt.Errorf("relay %d: %w", relay, err)
		}
		if other, dup := pins[pin]; dup {
			return fmt.Errorf("pin %d used by relays %d and %d", pin, other, relay)
		}
		pins[pin] = relay
	}
	return nil
}

// RelayController drives relays from actuation commands. A command for a relay
// that is already on extends the pulse to the later of the two ends; pulses
// are never queued or restarted.
type RelayController struct {
	out    Output
	buzzer int
	log    *slog.Logger

	lock      sync.Mutex
	actuators map[int]*actuator
	gen       uint64 // bumped by AllOff, voids pending activations
}

func NewRelayController(relays RelayMap, buzzer int, out Output, log *slog.Logger) *RelayController {
	if log == nil {
		log = slog.Default()
	}

	c := &RelayController{
		out:       out,
		buzzer:    buzzer,
		log:       log.With("component", "relays"),
		actuators: make(map[int]*actuator, len(relays)),
	}
	for relay, pin := range relays {
		c.actuators[relay] = &actuator{Relay: relay, Pin: pin}
	}
	return c
}

// Schedule arms the relay for the command's window and returns immediately.
func (c *RelayController) Schedule(cmd actuation.Command) {
	c.lock.Lock()
	defer c.lock.Unlock()

	a, ok := c.actuators[cmd.Relay]
	if !ok {
		c.log.Warn("command for unknown relay", "relay", cmd.Relay)
		return
	}

	start := cmd.IssuedAt.Add(cmd.Delay)
	end := start.Add(cmd.Duration)
	gen := c.gen

	wait := time.Until(start)
	if wait <= 0 {
		c.activate(a, end, gen)
		return
	}

	time.AfterFunc(wait, func() {
		c.lock.Lock()
		defer c.lock.Unlock()
		if gen != c.gen {
			return
		}
		c.activate(a, end, gen)
	})
}

// activate must be called with the lock held.
func (c *RelayController) activate(a *actuator, end time.Time, gen uint64) {
	if a.on {
		if end.After(a.offAt) {
			a.offAt = end
			if a.off.Stop() {
				a.off.Reset(time.Until(end))
			}
		}
		return
	}

	if !time.Now().Before(end) {
		return
	}

	if err := c.out.Set(a.Pin, true); err != nil {
		c.log.Error("failed to energize relay", "relay", a.Relay, "pin", a.Pin, "err", err)
		return
	}
	a.on = true
	a.offAt = end
	a.off = time.AfterFunc(time.Until(end), func() {
		c.release(a, gen)
	})
}

func (c *RelayController) release(a *actuator, gen uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if gen != c.gen || !a.on {
		return
	}

	// extended while this timer was already firing
	if wait := time.Until(a.offAt); wait > 0 {
		a.off = time.AfterFunc(wait, func() {
			c.release(a, gen)
		})
		return
	}

	c.deenergize(a)
}

func (c *RelayController) deenergize(a *actuator) {
	if err := c.out.Set(a.Pin, false); err != nil {
		c.log.Error("failed to release relay", "relay", a.Relay, "pin", a.Pin, "err", err)
	}
	a.on = false
	a.offAt = time.Time{}
}

// AllOff releases every relay and cancels anything still pending.
func (c *RelayController) AllOff() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.gen++
	for _, a := range c.actuators {
		if a.off != nil {
			a.off.Stop()
		}
		// pins are driven off even if we believe they already are
		a.on = true
		c.deenergize(a)
	}
	c.log.Info("all relays off")
}

// Beep sounds the buzzer repeats times, blocking until done.
func (c *RelayController) Beep(duration time.Duration, repeats int) {
	if c.buzzer == NoBuzzer {
		c.log.Debug("beep skipped, no buzzer", "repeats", repeats)
		return
	}

	for i := 0; i < repeats; i++ {
		if err := c.out.Set(c.buzzer, true); err != nil {
			c.log.Error("buzzer failed", "pin", c.buzzer, "err", err)
			return
		}
		time.Sleep(duration)
		c.out.Set(c.buzzer, false)
		time.Sleep(duration)
	}
}

// States lists the relays in index order.
func (c *RelayController) States() []PulseState {
	c.lock.Lock()
	defer c.lock.Unlock()

	states := make([]PulseState, 0, len(c.actuators))
	for _, a := range c.actuators {
		states = append(states, a.state())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Relay < states[j].Relay })
	return states
}
