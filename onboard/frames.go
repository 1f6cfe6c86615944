package onboard

import (
	"context"
	"image"
	"strings"

	"github.com/CodedInternet/gowl/onboard/config"
	deverrors "github.com/CodedInternet/gowl/onboard/errors"
)

// Frame is a single camera frame. Image may be nil for recorded runs, in
// which case Detections carries what was seen at the time.
type Frame struct {
	ID         int
	Width      int
	Height     int
	Image      image.Image
	Detections []Detection
}

// Source produces frames until it returns io.EOF.
type Source interface {
	Read(ctx context.Context) (*Frame, error)
	Size() (width, height int)
	Stop() error
}

// Detection is one object found in a frame.
type Detection struct {
	Box        image.Rectangle
	Centre     image.Point
	Confidence float64
	Label      string
}

// Detector finds weeds in a frame using the parameters of snap.
type Detector interface {
	Detect(f *Frame, snap *config.Snapshot) ([]Detection, error)
	Close() error
}

// Algorithm is the closed set of detection strategies.
type Algorithm int

const (
	ExG Algorithm = iota
	ExGR
	MaxG
	NExG
	ExHSV
	HSV
	GreenOnGreen
)

var algorithmNames = map[Algorithm]string{
	ExG:          "exg",
	ExGR:         "exgr",
	MaxG:         "maxg",
	NExG:         "nexg",
	ExHSV:        "exhsv",
	HSV:          "hsv",
	GreenOnGreen: "gog",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "unknown"
}

// Family groups algorithms sharing an implementation.
type Family int

const (
	FamilyGreenOnBrown Family = iota
	FamilyGreenOnGreen
)

func (a Algorithm) Family() Family {
	if a == GreenOnGreen {
		return FamilyGreenOnGreen
	}
	return FamilyGreenOnBrown
}

func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range algorithmNames {
		if n == name {
			return a, nil
		}
	}
	return 0, deverrors.AlgorithmNameError{Name: name}
}

// DetectorFactory builds the detector for an algorithm of its family.
type DetectorFactory func(alg Algorithm, snap *config.Snapshot) (Detector, error)

// Detectors maps each family to the factory that builds it. A family
// without a factory cannot be started.
type Detectors map[Family]DetectorFactory

func (d Detectors) New(alg Algorithm, snap *config.Snapshot) (Detector, error) {
	factory, ok := d[alg.Family()]
	if !ok || factory == nil {
		return nil, deverrors.DetectorInitError{Algorithm: alg.String(), Err: deverrors.AlgorithmNameError{Name: alg.String()}}
	}

	detector, err := factory(alg, snap)
	if err != nil {
		return nil, deverrors.DetectorInitError{Algorithm: alg.String(), Err: err}
	}
	return detector, nil
}

// Centres extracts the actuation points from a set of detections.
func Centres(dets []Detection) []image.Point {
	centres := make([]image.Point, len(dets))
	for i, d := range dets {
		centres[i] = d.Centre
	}
	return centres
}

// Boxes extracts the bounding boxes from a set of detections.
func Boxes(dets []Detection) []image.Rectangle {
	boxes := make([]image.Rectangle, len(dets))
	for i, d := range dets {
		boxes[i] = d.Box
	}
	return boxes
}
