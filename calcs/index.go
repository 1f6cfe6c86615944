package calcs

import "math"

func clip(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return int(v)
}

// ExG is the excess green index 2g - r - b.
func ExG(r, g, b uint8) int {
	return clip(2*float64(g) - float64(r) - float64(b))
}

// ExGR is excess green minus excess red.
func ExGR(r, g, b uint8) int {
	exg := 2*float64(g) - float64(r) - float64(b)
	exr := 1.4*float64(r) - float64(g)
	return clip(exg - exr)
}

// MaxG is 24g - 19r - 2b scaled back into a byte.
func MaxG(r, g, b uint8) int {
	return clip((24*float64(g) - 19*float64(r) - 2*float64(b)) / 24)
}

// NExG is the excess green of the chromatic coordinates.
func NExG(r, g, b uint8) int {
	sum := float64(r) + float64(g) + float64(b)
	if sum == 0 {
		return 0
	}
	rn, gn, bn := float64(r)/sum, float64(g)/sum, float64(b)/sum
	return clip((2*gn - rn - bn) * 255)
}

// HSV converts to hue in 0..179 with saturation and value in 0..255.
func HSV(r, g, b uint8) (h, s, v int) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case max == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}

	var sat float64
	if max > 0 {
		sat = delta / max
	}

	return int(hue / 2), clip(sat * 255), clip(max * 255)
}
