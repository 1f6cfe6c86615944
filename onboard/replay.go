package onboard

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/CodedInternet/gowl/calcs"
	"github.com/CodedInternet/gowl/onboard/config"
)

type replayDetection struct {
	Box        []int   `yaml:"box,flow"`    // x, y, w, h
	Centre     []int   `yaml:"centre,flow"` // defaults to the box centre
	Confidence float64 `yaml:"confidence"`
	Label      string  `yaml:"label"`
}

type replayFrame struct {
	Detections []replayDetection `yaml:"detections"`
}

type replayFile struct {
	Width  int           `yaml:"width"`
	Height int           `yaml:"height"`
	FPS    int           `yaml:"fps"`
	Loop   bool          `yaml:"loop"`
	Frames []replayFrame `yaml:"frames"`
}

// ReplaySource plays back recorded detections from a YAML file, paced at the
// recorded frame rate.
type ReplaySource struct {
	width, height int
	interval      time.Duration
	loop          bool
	frames        [][]Detection

	lock    sync.Mutex
	next    int
	id      int
	stopped bool
}

func OpenReplay(path string) (*ReplaySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseReplay(raw)
}

func ParseReplay(raw []byte) (*ReplaySource, error) {
	var rf replayFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parsing replay: %w", err)
	}
	if rf.Width <= 0 || rf.Height <= 0 {
		return nil, fmt.Errorf("replay needs a positive width and height, got %dx%d", rf.Width, rf.Height)
	}

	s := &ReplaySource{
		width:  rf.Width,
		height: rf.Height,
		loop:   rf.Loop,
		frames: make([][]Detection, len(rf.Frames)),
	}
	if rf.FPS > 0 {
		s.interval = time.Second / time.Duration(rf.FPS)
	}

	for i, f := range rf.Frames {
		for j, d := range f.Detections {
			det, err := d.detection()
			if err != nil {
				return nil, fmt.Errorf("frame %d detection %d: %w", i, j, err)
			}
			s.frames[i] = append(s.frames[i], det)
		}
	}

	return s, nil
}

func (d replayDetection) detection() (Detection, error) {
	if len(d.Box) != 4 {
		return Detection{}, fmt.Errorf("box needs 4 values, got %d", len(d.Box))
	}

	det := Detection{
		Box:        image.Rect(d.Box[0], d.Box[1], d.Box[0]+d.Box[2], d.Box[1]+d.Box[3]),
		Confidence: d.Confidence,
		Label:      d.Label,
	}

	switch len(d.Centre) {
	case 0:
		det.Centre = calcs.BoxCentre(det.Box)
	case 2:
		det.Centre = image.Point{X: d.Centre[0], Y: d.Centre[1]}
	default:
		return Detection{}, fmt.Errorf("centre needs 2 values, got %d", len(d.Centre))
	}

	if det.Confidence == 0 {
		det.Confidence = 1
	}
	if det.Label == "" {
		det.Label = "WEED"
	}
	return det, nil
}

func (s *ReplaySource) Size() (int, int) {
	return s.width, s.height
}

func (s *ReplaySource) Read(ctx context.Context) (*Frame, error) {
	if s.interval > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.interval):
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.stopped {
		return nil, io.EOF
	}
	if s.next >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, io.EOF
		}
		s.next = 0
	}

	f := &Frame{
		ID:         s.id,
		Width:      s.width,
		Height:     s.height,
		Detections: s.frames[s.next],
	}
	s.next++
	s.id++
	return f, nil
}

func (s *ReplaySource) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopped = true
	return nil
}

// ReplayDetector reports the detections recorded with each frame. Green on
// green runs drop anything under the configured confidence.
type ReplayDetector struct {
	alg Algorithm
}

func NewReplayDetector(alg Algorithm, snap *config.Snapshot) (Detector, error) {
	return &ReplayDetector{alg: alg}, nil
}

func (d *ReplayDetector) Detect(f *Frame, snap *config.Snapshot) ([]Detection, error) {
	if d.alg.Family() != FamilyGreenOnGreen {
		return f.Detections, nil
	}

	dets := make([]Detection, 0, len(f.Detections))
	for _, det := range f.Detections {
		if det.Confidence >= snap.GreenOnGreen.Confidence {
			dets = append(dets, det)
		}
	}
	return dets, nil
}

func (d *ReplayDetector) Close() error {
	return nil
}
