package onboard

import (
	"context"
	"image"
	"io"
	"math/rand"
	"sync"
	"time"
)

const SIM_INTERVAL = time.Second / 30
const SIM_MAX_WEEDS = 3

// SimulatedSource invents a few weeds per frame. It never runs out of frames
// and is meant for bench testing the relays without a camera.
type SimulatedSource struct {
	width, height int
	rng           *rand.Rand

	lock    sync.Mutex
	id      int
	stopped bool
}

func NewSimulatedSource(width, height int, seed int64) *SimulatedSource {
	// room for the largest weed
	if width < 64 {
		width = 64
	}
	if height < 64 {
		height = 64
	}

	return &SimulatedSource{
		width:  width,
		height: height,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *SimulatedSource) Size() (int, int) {
	return s.width, s.height
}

func (s *SimulatedSource) Read(ctx context.Context) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(SIM_INTERVAL):
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopped {
		return nil, io.EOF
	}

	f := &Frame{
		ID:     s.id,
		Width:  s.width,
		Height: s.height,
	}
	s.id++

	for n := s.rng.Intn(SIM_MAX_WEEDS + 1); n > 0; n-- {
		size := 8 + s.rng.Intn(24)
		x := s.rng.Intn(s.width - size)
		y := s.rng.Intn(s.height - size)
		box := image.Rect(x, y, x+size, y+size)
		f.Detections = append(f.Detections, Detection{
			Box:        box,
			Centre:     image.Point{X: x + size/2, Y: y + size/2},
			Confidence: 0.5 + s.rng.Float64()/2,
			Label:      "WEED",
		})
	}

	return f, nil
}

func (s *SimulatedSource) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopped = true
	return nil
}
