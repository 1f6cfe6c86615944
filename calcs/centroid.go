package calcs

import "image"

func calculateCentroid(vals []int) float64 {
	var sum, X float64

	for i, val := range vals {
		sum += float64(val)
		X += float64(val * i)
	}

	if sum == 0 {
		return float64(len(vals)-1) / 2
	}
	return X / sum
}

// Centroid returns the weighted centre of a grid indexed [row][col].
func Centroid(weights [][]int) (x, y float64) {
	if len(weights) == 0 || len(weights[0]) == 0 {
		return 0, 0
	}

	sumRows := make([]int, len(weights))
	sumCols := make([]int, len(weights[0]))

	for iy, row := range weights {
		for ix, cell := range row {
			sumCols[ix] += cell
			sumRows[iy] += cell
		}
	}

	x = calculateCentroid(sumCols)
	y = calculateCentroid(sumRows)
	return
}

// BoxCentre is the integer centre of r, rounding down.
func BoxCentre(r image.Rectangle) image.Point {
	return image.Point{
		X: r.Min.X + r.Dx()/2,
		Y: r.Min.Y + r.Dy()/2,
	}
}
