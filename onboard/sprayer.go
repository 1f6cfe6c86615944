package onboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CodedInternet/gowl/onboard/actuation"
	"github.com/CodedInternet/gowl/onboard/canbus"
	"github.com/CodedInternet/gowl/onboard/config"
	"github.com/CodedInternet/gowl/onboard/control"
	deverrors "github.com/CodedInternet/gowl/onboard/errors"
	"github.com/CodedInternet/gowl/onboard/hardware"
)

const (
	InboxSize = 64

	// frame counter period, also the FPS log interval
	FrameWrap = 900

	StopBeep     = 100 * time.Millisecond
	StopBeeps    = 2
	FailureBeep  = 250 * time.Millisecond
	FailureBeeps = 4
)

// Actuators is the relay bank the sprayer fires.
type Actuators interface {
	actuation.Sink
	AllOff()
	Beep(duration time.Duration, repeats int)
}

// Receiver delivers inbound CAN frames.
type Receiver interface {
	StartReceiving(callback func(canbus.Frame))
	Stop()
}

// Sampler records frames for later training.
type Sampler interface {
	Record(s Sample) error
	Stop() error
}

type stopper interface {
	Stop()
}

// Status is a point in time summary of a running sprayer.
type Status struct {
	Running   bool          `json:"running"`
	Config    string        `json:"config"`
	Algorithm string        `json:"algorithm"`
	Frames    uint64        `json:"frames"`
	Commands  uint64        `json:"commands"`
	Flags     control.Flags `json:"flags"`
}

// Sprayer runs the frame loop: frames in, relay pulses out. Collaborators
// left nil are skipped.
type Sprayer struct {
	Config    *config.Handle
	Store     *config.Store
	Source    Source
	Detectors Detectors
	Relays    Actuators
	Sinks     []actuation.Sink // extra observers of every command

	State   *control.State
	Purpose control.Purpose
	Watcher stopper

	Link  Receiver
	Nodes *hardware.Directory

	Recorder Sampler
	Display  io.Closer

	log   *slog.Logger
	inbox chan canbus.Frame

	stopOnce sync.Once
	running  atomic.Bool
	frames   atomic.Uint64
	commands atomic.Uint64
	lastFPS  time.Time
	fpsCount int

	frameCount int
	algorithm  string
}

func NewSprayer(handle *config.Handle, store *config.Store, log *slog.Logger) *Sprayer {
	if log == nil {
		log = slog.Default()
	}

	return &Sprayer{
		Config: handle,
		Store:  store,
		log:    log.With("component", "sprayer"),
		inbox:  make(chan canbus.Frame, InboxSize),
	}
}

// ChangeConfig loads the snapshot for index and makes it active. On failure
// exactly one error is logged and the active snapshot is kept.
func (s *Sprayer) ChangeConfig(index int) error {
	snap, err := s.Store.Load(index)
	if err != nil {
		s.log.Error("failed to change configuration", "index", index, "err", err)
		return err
	}

	s.Config.Swap(snap)
	s.log.Info("configuration changed", "index", index, "path", s.Store.IndexPath(index))
	return nil
}

// ChangeConfigArg is ChangeConfig for an index typed by an operator.
func (s *Sprayer) ChangeConfigArg(arg string) error {
	index, err := config.ParseIndex(arg)
	if err != nil {
		s.log.Error("failed to change configuration", "arg", arg, "err", err)
		return err
	}
	return s.ChangeConfig(index)
}

// enqueue is the CAN receive callback. It never blocks so the receiver can
// always observe a stop.
func (s *Sprayer) enqueue(f canbus.Frame) {
	select {
	case s.inbox <- f:
	default:
		s.log.Warn("CAN inbox full, dropping frame", "id", f.ID)
	}
}

func (s *Sprayer) drainInbox() {
	for {
		select {
		case f := <-s.inbox:
			if s.Nodes != nil {
				s.Nodes.OnFrame(f)
			}
		default:
			return
		}
	}
}

// flags merges the panel switches over the snapshot defaults. A switch only
// overrides the flag it was wired for.
func (s *Sprayer) flags(snap *config.Snapshot) control.Flags {
	f := control.Flags{
		Detection: !snap.DataCollection.DisableDetection,
		Sampling:  snap.DataCollection.SampleImages,
	}

	if s.State != nil {
		live := s.State.Load()
		f.Stop = live.Stop
		switch s.Purpose {
		case control.PurposeDetection:
			f.Detection = live.Detection
		case control.PurposeRecording:
			f.Sampling = live.Sampling
		}
	}
	return f
}

func (s *Sprayer) sink() actuation.Sink {
	sinks := actuation.Multi{}
	if s.Relays != nil {
		sinks = append(sinks, s.Relays)
	}
	sinks = append(sinks, s.Sinks...)
	return sinks
}

// Run drives the loop until the source ends, ctx is cancelled, the panel asks
// to stop or something fails. Shutdown has always run by the time Run
// returns. Only failures are returned; a clean stop returns nil.
func (s *Sprayer) Run(ctx context.Context) (err error) {
	if s.Source == nil {
		s.Shutdown()
		return errors.New("no frame source")
	}

	snap := s.Config.Load()

	alg, err := ParseAlgorithm(snap.System.Algorithm)
	if err == nil {
		var detector Detector
		detector, err = s.Detectors.New(alg, snap)
		if err == nil {
			defer detector.Close()
			return s.loop(ctx, alg, detector)
		}
	}

	if !errors.As(err, &deverrors.DetectorInitError{}) {
		err = deverrors.DetectorInitError{Algorithm: snap.System.Algorithm, Err: err}
	}
	s.log.Error("unable to start detector", "algorithm", snap.System.Algorithm, "err", err)
	if s.Relays != nil && snap.System.EnableAudibleErrors {
		s.Relays.Beep(FailureBeep, FailureBeeps)
	}
	s.Shutdown()
	return err
}

func (s *Sprayer) loop(ctx context.Context, alg Algorithm, detector Detector) (err error) {
	s.algorithm = alg.String()

	width, height := s.Source.Size()
	scheduler := actuation.NewScheduler(width, height, s.Config.Load().System.RelayNum, s.sink(), s.log)
	s.log.Info("starting",
		"algorithm", s.algorithm, "width", width, "height", height,
		"lanes", scheduler.Lanes().Starts(), "activation_line", scheduler.ActivationLine())

	if s.Nodes != nil {
		s.Nodes.OnConfig(func(node uint8, index int) {
			s.log.Info("configuration requested over CAN", "node", node, "index", index)
			s.ChangeConfig(index)
		})
	}
	if s.Link != nil {
		s.Link.StartReceiving(s.enqueue)
	}

	s.running.Store(true)
	s.lastFPS = time.Now()
	defer s.Shutdown()

	for {
		done, err := s.iterate(ctx, detector, scheduler)
		if err != nil {
			s.log.Error("stopped", "err", err)
			return err
		}
		if done {
			return nil
		}
	}
}

// iterate runs a single frame. Panics are turned into errors so shutdown
// still happens.
func (s *Sprayer) iterate(ctx context.Context, detector Detector, scheduler *actuation.Scheduler) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("CRITICAL: panic in frame loop", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if ctx.Err() != nil {
		s.log.Info("interrupted")
		return true, nil
	}

	s.drainInbox()

	snap := s.Config.Load()
	flags := s.flags(snap)
	if flags.Stop {
		s.log.Info("stop requested from panel")
		return true, nil
	}

	frame, err := s.Source.Read(ctx)
	switch {
	case errors.Is(err, io.EOF):
		s.log.Info("frame source finished")
		return true, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Info("interrupted")
		return true, nil
	case err != nil:
		return true, fmt.Errorf("reading frame: %w", err)
	}

	var dets []Detection
	if flags.Detection {
		dets, err = detector.Detect(frame, snap)
		if err != nil {
			return true, fmt.Errorf("detecting: %w", err)
		}

		sent := scheduler.Process(Centres(dets), true, snap.Timing())
		s.commands.Add(uint64(sent))
	}

	if flags.Sampling {
		s.sample(frame, dets, flags, snap)
	}

	s.bookkeeping(snap)
	return false, nil
}

func (s *Sprayer) sample(frame *Frame, dets []Detection, flags control.Flags, snap *config.Snapshot) {
	freq := snap.DataCollection.SampleFrequency
	if freq < 1 {
		freq = 1
	}
	if s.Recorder == nil || s.frameCount%freq != 0 {
		return
	}

	sample := Sample{
		FrameID:   s.frameCount,
		Method:    snap.DataCollection.SampleMethod,
		Camera:    snap.DataCollection.CameraName,
		Config:    snap.Name,
		Directory: snap.DataCollection.SaveDirectory,
		Image:     frame.Image,
	}
	if sample.Method != SampleWhole && flags.Detection {
		sample.Centres = Centres(dets)
		sample.Boxes = Boxes(dets)
	}

	if err := s.Recorder.Record(sample); err != nil {
		s.log.Error("failed to record sample", "frame", frame.ID, "err", err)
	}
}

func (s *Sprayer) bookkeeping(snap *config.Snapshot) {
	s.frames.Add(1)
	s.fpsCount++

	if s.frameCount < FrameWrap {
		s.frameCount++
	} else {
		s.frameCount = 1
	}

	if snap.DataCollection.LogFPS && s.frameCount%FrameWrap == 0 {
		s.logFPS()
	}
}

func (s *Sprayer) logFPS() {
	elapsed := time.Since(s.lastFPS)
	if elapsed > 0 && s.fpsCount > 0 {
		s.log.Info("approximate FPS", "fps", float64(s.fpsCount)/elapsed.Seconds())
	}
	s.lastFPS = time.Now()
	s.fpsCount = 0
}

// Shutdown makes the sprayer safe and releases everything it holds. Relays are
// always released first. Only the first call does anything.
func (s *Sprayer) Shutdown() {
	s.stopOnce.Do(func() {
		wasRunning := s.running.Swap(false)
		snap := s.Config.Load()

		if s.Relays != nil {
			s.Relays.AllOff()
			if snap.System.EnableAudibleErrors {
				s.Relays.Beep(StopBeep, StopBeeps)
			}
		}

		if s.Source != nil {
			if err := s.Source.Stop(); err != nil {
				s.log.Error("failed to stop frame source", "err", err)
			}
		}

		if s.Watcher != nil {
			s.Watcher.Stop()
		}

		if s.Recorder != nil {
			if err := s.Recorder.Stop(); err != nil {
				s.log.Error("failed to stop recorder", "err", err)
			}
		}

		if s.Display != nil {
			if err := s.Display.Close(); err != nil {
				s.log.Error("failed to close display", "err", err)
			}
		}

		if s.Link != nil {
			s.Link.Stop()
		}

		if wasRunning && snap.DataCollection.LogFPS {
			s.logFPS()
		}
		s.log.Info("shutdown complete", "frames", s.frames.Load(), "commands", s.commands.Load())
	})
}

func (s *Sprayer) Status() Status {
	snap := s.Config.Load()
	return Status{
		Running:   s.running.Load(),
		Config:    snap.Name,
		Algorithm: snap.System.Algorithm,
		Frames:    s.frames.Load(),
		Commands:  s.commands.Load(),
		Flags:     s.flags(snap),
	}
}
