package calcs

import (
	"image"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCentroid(t *testing.T) {
	Convey("a single hot cell is its own centroid", t, func() {
		x, y := Centroid([][]int{
			{0, 0, 0},
			{0, 0, 5},
		})
		So(x, ShouldEqual, 2)
		So(y, ShouldEqual, 1)
	})

	Convey("an even grid centres in the middle", t, func() {
		x, y := Centroid([][]int{
			{1, 1},
			{1, 1},
		})
		So(x, ShouldEqual, 0.5)
		So(y, ShouldEqual, 0.5)
	})

	Convey("an empty grid falls back to the middle", t, func() {
		x, _ := Centroid([][]int{{0, 0, 0}})
		So(x, ShouldEqual, 1)
	})

	Convey("box centres round down", t, func() {
		So(BoxCentre(image.Rect(10, 20, 15, 30)), ShouldResemble, image.Point{12, 25})
	})
}

func TestBlobs(t *testing.T) {
	Convey("separate regions are labelled separately", t, func() {
		// 5 wide
		mask := []bool{
			true, true, false, false, false,
			true, true, false, false, true,
			false, false, false, false, true,
		}
		blobs := Blobs(mask, 5, 1)
		So(blobs, ShouldHaveLength, 2)

		So(blobs[0].Box, ShouldResemble, image.Rect(0, 0, 2, 2))
		So(blobs[0].Area, ShouldEqual, 4)
		So(blobs[0].Centre, ShouldResemble, image.Point{0, 0})

		So(blobs[1].Box, ShouldResemble, image.Rect(4, 1, 5, 3))
		So(blobs[1].Area, ShouldEqual, 2)
	})

	Convey("regions do not wrap across rows", t, func() {
		mask := []bool{
			false, false, true,
			true, false, false,
		}
		So(Blobs(mask, 3, 1), ShouldHaveLength, 2)
	})

	Convey("small regions are discarded", t, func() {
		mask := []bool{true, false, true, true}
		blobs := Blobs(mask, 4, 2)
		So(blobs, ShouldHaveLength, 1)
		So(blobs[0].Area, ShouldEqual, 2)
	})
}

func TestIndices(t *testing.T) {
	Convey("green pixels score high on every index", t, func() {
		So(ExG(40, 200, 40), ShouldEqual, 255)
		So(ExGR(40, 200, 40), ShouldBeGreaterThan, 200)
		So(MaxG(40, 200, 40), ShouldBeGreaterThan, 100)
		So(NExG(40, 200, 40), ShouldBeGreaterThan, 100)
	})

	Convey("soil scores zero", t, func() {
		So(ExG(120, 90, 60), ShouldEqual, 0)
		So(NExG(0, 0, 0), ShouldEqual, 0)
	})

	Convey("hsv uses the 0..179 hue range", t, func() {
		h, s, v := HSV(0, 255, 0)
		So(h, ShouldEqual, 60)
		So(s, ShouldEqual, 255)
		So(v, ShouldEqual, 255)

		h, s, _ = HSV(128, 128, 128)
		So(h, ShouldEqual, 0)
		So(s, ShouldEqual, 0)
	})
}
