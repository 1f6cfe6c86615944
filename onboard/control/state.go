// Package control holds the flags the panel switches share with the frame loop.
package control

import "sync/atomic"

// State is written by a single watcher and read by the frame loop. Reads never
// block and always see the latest write.
type State struct {
	detection atomic.Bool
	sampling  atomic.Bool
	stop      atomic.Bool
}

// Flags is a copy of State taken once per frame.
type Flags struct {
	Detection bool `json:"detection_enabled"`
	Sampling  bool `json:"sampling_enabled"`
	Stop      bool `json:"stop_requested"`
}

func (s *State) SetDetection(on bool) { s.detection.Store(on) }
func (s *State) SetSampling(on bool)  { s.sampling.Store(on) }
func (s *State) RequestStop()         { s.stop.Store(true) }

func (s *State) Load() Flags {
	return Flags{
		Detection: s.detection.Load(),
		Sampling:  s.sampling.Load(),
		Stop:      s.stop.Load(),
	}
}
