package hardware

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const DefaultChip = "gpiochip0"

// Output drives a digital output pin.
type Output interface {
	Set(pin int, on bool) error
}

// LogOutput records pin levels in memory and logs every change. It stands in
// for real outputs on a bench without relays.
type LogOutput struct {
	log *slog.Logger

	lock   sync.Mutex
	levels map[int]bool
}

func NewLogOutput(log *slog.Logger) *LogOutput {
	if log == nil {
		log = slog.Default()
	}
	return &LogOutput{
		log:    log.With("component", "gpio"),
		levels: make(map[int]bool),
	}
}

func (o *LogOutput) Set(pin int, on bool) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	o.levels[pin] = on
	o.log.Debug("pin set", "pin", pin, "on", on)
	return nil
}

func (o *LogOutput) Level(pin int) bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.levels[pin]
}

// line is the part of a gpiocdev.Line we use.
type line interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

type lineRequester func(chip string, offset int, output, activeLow bool) (line, error)

func requestLine(chip string, offset int, output, activeLow bool) (line, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.WithConsumer("gowl")}
	if output {
		opts = append(opts, gpiocdev.AsOutput(0))
	} else {
		opts = append(opts, gpiocdev.AsInput, gpiocdev.WithPullUp)
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	l, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ChipOutput drives header pins through the GPIO character device. Lines are
// requested on first use and held until Close.
type ChipOutput struct {
	Chip      string
	ActiveLow bool

	request lineRequester
	lock    sync.Mutex
	lines   map[int]line // by header pin
}

func NewChipOutput(chip string, activeLow bool) *ChipOutput {
	if chip == "" {
		chip = DefaultChip
	}
	return &ChipOutput{
		Chip:      chip,
		ActiveLow: activeLow,
		request:   requestLine,
		lines:     make(map[int]line),
	}
}

func (o *ChipOutput) Set(pin int, on bool) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	l, ok := o.lines[pin]
	if !ok {
		offset, err := BoardLine(pin)
		if err != nil {
			return err
		}
		l, err = o.request(o.Chip, offset, true, o.ActiveLow)
		if err != nil {
			return err
		}
		o.lines[pin] = l
	}

	value := 0
	if on {
		value = 1
	}
	return l.SetValue(value)
}

// Close releases every requested line.
func (o *ChipOutput) Close() error {
	o.lock.Lock()
	defer o.lock.Unlock()

	var errs []error
	for pin, l := range o.lines {
		errs = append(errs, l.Close())
		delete(o.lines, pin)
	}
	return errors.Join(errs...)
}
