package onboard

import (
	"fmt"
	"image"
	"image/color"

	"github.com/CodedInternet/gowl/calcs"
	"github.com/CodedInternet/gowl/onboard/config"
)

// GreenOnBrownDetector finds green plants against bare soil by thresholding a
// vegetation index and labelling the connected regions. Frames without an
// image pass through their recorded detections.
type GreenOnBrownDetector struct {
	alg Algorithm
}

func NewGreenOnBrown(alg Algorithm, snap *config.Snapshot) (Detector, error) {
	if alg.Family() != FamilyGreenOnBrown {
		return nil, fmt.Errorf("%s is not a green on brown algorithm", alg)
	}
	return &GreenOnBrownDetector{alg: alg}, nil
}

func (d *GreenOnBrownDetector) Detect(f *Frame, snap *config.Snapshot) ([]Detection, error) {
	if f.Image == nil {
		return f.Detections, nil
	}

	p := snap.GreenOnBrown
	bounds := f.Image.Bounds()
	width := bounds.Dx()
	mask := make([]bool, width*bounds.Dy())

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(f.Image.At(x, y)).(color.NRGBA)
			mask[(y-bounds.Min.Y)*width+(x-bounds.Min.X)] = d.match(c.R, c.G, c.B, p)
		}
	}

	blobs := calcs.Blobs(mask, width, p.MinDetectionArea)
	dets := make([]Detection, len(blobs))
	for i, b := range blobs {
		dets[i] = Detection{
			Box:        b.Box.Add(bounds.Min),
			Centre:     calcs.BoxCentre(b.Box.Add(bounds.Min)),
			Confidence: 1,
			Label:      "WEED",
		}
	}
	return dets, nil
}

func (d *GreenOnBrownDetector) match(r, g, b uint8, p config.GreenOnBrown) bool {
	inRange := func(v, min, max int) bool { return v >= min && v <= max }

	hsvMatch := func() bool {
		h, s, v := calcs.HSV(r, g, b)
		hue := inRange(h, p.HueMin, p.HueMax)
		if p.InvertHue {
			hue = !hue
		}
		return hue && inRange(s, p.SaturationMin, p.SaturationMax) && inRange(v, p.BrightnessMin, p.BrightnessMax)
	}

	switch d.alg {
	case ExGR:
		return inRange(calcs.ExGR(r, g, b), p.ExgMin, p.ExgMax)
	case MaxG:
		return inRange(calcs.MaxG(r, g, b), p.ExgMin, p.ExgMax)
	case NExG:
		return inRange(calcs.NExG(r, g, b), p.ExgMin, p.ExgMax)
	case HSV:
		return hsvMatch()
	case ExHSV:
		return inRange(calcs.ExG(r, g, b), p.ExgMin, p.ExgMax) && hsvMatch()
	default:
		return inRange(calcs.ExG(r, g, b), p.ExgMin, p.ExgMax)
	}
}

func (d *GreenOnBrownDetector) Close() error {
	return nil
}

// imageSize is the frame size of img.
func imageSize(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
