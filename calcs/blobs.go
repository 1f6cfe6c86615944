package calcs

import "image"

// Blob is a 4-connected region of set pixels.
type Blob struct {
	Box    image.Rectangle
	Centre image.Point // pixel centroid
	Area   int
}

// Blobs labels the set pixels of a row major mask of the given width and
// returns every region of at least minArea pixels, in scan order.
func Blobs(mask []bool, width, minArea int) []Blob {
	if width <= 0 || len(mask) == 0 {
		return nil
	}
	height := len(mask) / width

	seen := make([]bool, len(mask))
	stack := make([]int, 0, 64)
	var blobs []Blob

	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}

		seen[start] = true
		stack = append(stack[:0], start)

		box := image.Rectangle{Min: image.Point{width, height}}
		var area, sumX, sumY int

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%width, p/width

			area++
			sumX += x
			sumY += y
			if x < box.Min.X {
				box.Min.X = x
			}
			if y < box.Min.Y {
				box.Min.Y = y
			}
			if x+1 > box.Max.X {
				box.Max.X = x + 1
			}
			if y+1 > box.Max.Y {
				box.Max.Y = y + 1
			}

			for _, n := range [4]int{p - 1, p + 1, p - width, p + width} {
				if n < 0 || n >= width*height || seen[n] || !mask[n] {
					continue
				}
				// no wrapping between rows
				if (n == p-1 || n == p+1) && n/width != y {
					continue
				}
				seen[n] = true
				stack = append(stack, n)
			}
		}

		if area < minArea {
			continue
		}

		blobs = append(blobs, Blob{
			Box:    box,
			Centre: image.Point{X: sumX / area, Y: sumY / area},
			Area:   area,
		})
	}

	return blobs
}
