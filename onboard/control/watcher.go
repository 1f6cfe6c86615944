package control

import (
	"log/slog"
	"sync"
	"time"
)

const DefaultPollInterval = 50 * time.Millisecond

// Switch is a two position input.
type Switch interface {
	Read() (bool, error)
}

// Purpose selects which flag a switch drives.
type Purpose string

const (
	PurposeDetection Purpose = "detection"
	PurposeRecording Purpose = "recording"
)

// Watcher polls the panel switches on its own goroutine and publishes their
// positions to a State. It is the only writer of that State.
type Watcher struct {
	Interval time.Duration

	state   *State
	purpose Purpose
	main    Switch
	stopBtn Switch
	log     *slog.Logger

	quit     chan struct{}
	done     sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

// NewWatcher drives the flag chosen by purpose from main. stopBtn is
// optional; when it reads true the loop is asked to stop.
func NewWatcher(state *State, purpose Purpose, main, stopBtn Switch, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}

	return &Watcher{
		Interval: DefaultPollInterval,
		state:    state,
		purpose:  purpose,
		main:     main,
		stopBtn:  stopBtn,
		log:      log.With("component", "watcher"),
		quit:     make(chan struct{}),
	}
}

func (w *Watcher) Start() {
	if w.started {
		return
	}
	w.started = true

	w.poll()

	w.done.Add(1)
	go w.run()
}

func (w *Watcher) run() {
	defer w.done.Done()

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	if w.main != nil {
		on, err := w.main.Read()
		if err != nil {
			w.log.Error("switch read failed", "purpose", w.purpose, "err", err)
		} else {
			switch w.purpose {
			case PurposeRecording:
				w.state.SetSampling(on)
			default:
				w.state.SetDetection(on)
			}
		}
	}

	if w.stopBtn != nil {
		pressed, err := w.stopBtn.Read()
		if err != nil {
			w.log.Error("stop button read failed", "err", err)
		} else if pressed && !w.state.stop.Load() {
			w.log.Warn("stop requested from panel")
			w.state.RequestStop()
		}
	}
}

// Stop signals the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		w.done.Wait()
	})
}
