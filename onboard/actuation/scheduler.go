package actuation

import (
	"image"
	"log/slog"
	"time"
)

// Command is a single pulse request for one relay. The pulse starts Delay
// after IssuedAt and lasts Duration.
type Command struct {
	Relay    int
	Delay    time.Duration
	IssuedAt time.Time
	Duration time.Duration
}

// Sink receives commands. Schedule must not block.
type Sink interface {
	Schedule(cmd Command)
}

// Timing holds the pulse parameters applied to every command of a frame.
type Timing struct {
	Delay    time.Duration
	Duration time.Duration
}

// Scheduler routes detection centres to relays through a fixed lane table.
type Scheduler struct {
	lanes LaneTable
	yAct  int
	sink  Sink
	log   *slog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func NewScheduler(width, height, relays int, sink Sink, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{
		lanes: NewLaneTable(width, relays),
		yAct:  ActivationLine(height),
		sink:  sink,
		log:   log.With("component", "scheduler"),
		Now:   time.Now,
	}
}

func (s *Scheduler) Lanes() LaneTable {
	return s.lanes
}

func (s *Scheduler) ActivationLine() int {
	return s.yAct
}

// Process emits one command per qualifying centre and returns how many were
// sent. Nothing is emitted while detection is disabled. Centres above the
// activation line or outside every lane are dropped.
func (s *Scheduler) Process(centres []image.Point, enabled bool, timing Timing) int {
	if !enabled || len(centres) == 0 {
		return 0
	}

	now := s.Now()
	sent := 0
	for _, c := range centres {
		if c.Y <= s.yAct {
			continue
		}

		lane, ok := s.lanes.Match(c.X)
		if !ok {
			s.log.Debug("detection outside lanes", "x", c.X, "y", c.Y)
			continue
		}

		s.sink.Schedule(Command{
			Relay:    lane.Relay,
			Delay:    timing.Delay,
			IssuedAt: now,
			Duration: timing.Duration,
		})
		sent++
	}

	return sent
}

// Multi fans a command out to several sinks in order.
type Multi []Sink

func (m Multi) Schedule(cmd Command) {
	for _, s := range m {
		if s != nil {
			s.Schedule(cmd)
		}
	}
}
