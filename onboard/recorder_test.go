package onboard

import (
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asdine/storm/v3"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/CodedInternet/gowl/onboard/actuation"
)

func TestRecorder(t *testing.T) {
	Convey("Given a recorder on a fresh database", t, func() {
		db, err := storm.Open(filepath.Join(t.TempDir(), "samples.db"))
		So(err, ShouldBeNil)
		defer db.Close()

		log, _ := newCountingLogger()
		r := NewRecorder(db, log)
		So(r.Session(), ShouldNotBeEmpty)

		Convey("samples are stored under the session", func() {
			So(r.Record(Sample{FrameID: 30, Method: SampleBBox, Centres: []image.Point{{X: 1, Y: 2}}}), ShouldBeNil)
			So(r.Record(Sample{FrameID: 60, Method: SampleWhole}), ShouldBeNil)
			So(r.Stop(), ShouldBeNil)

			samples, err := r.Samples(r.Session())
			So(err, ShouldBeNil)
			So(len(samples), ShouldEqual, 2)
			So(samples[0].Session, ShouldEqual, r.Session())
			So(samples[0].Recorded.IsZero(), ShouldBeFalse)
			So(samples[0].Files, ShouldBeEmpty)
		})

		Convey("other sessions are kept apart", func() {
			other := NewRecorder(db, log)
			So(other.Session(), ShouldNotEqual, r.Session())
			So(other.Record(Sample{FrameID: 1}), ShouldBeNil)
			So(other.Stop(), ShouldBeNil)
			So(r.Stop(), ShouldBeNil)

			samples, err := r.Samples(r.Session())
			So(err, ShouldBeNil)
			So(samples, ShouldBeEmpty)
		})

		Convey("a stopped recorder refuses samples", func() {
			So(r.Stop(), ShouldBeNil)
			So(r.Stop(), ShouldBeNil)
			So(r.Record(Sample{FrameID: 1}), ShouldEqual, ErrRecorderStopped)
		})

		Convey("with a frame image", func() {
			dir := t.TempDir()
			img := image.NewRGBA(image.Rect(0, 0, 64, 48))
			draw.Draw(img, image.Rect(10, 10, 30, 20), image.NewUniform(color.RGBA{G: 200, A: 255}), image.Point{}, draw.Src)

			Convey("whole samples write the full frame", func() {
				So(r.Record(Sample{FrameID: 5, Method: SampleWhole, Camera: "cam0", Directory: dir, Image: img}), ShouldBeNil)
				So(r.Stop(), ShouldBeNil)

				samples, err := r.Samples(r.Session())
				So(err, ShouldBeNil)
				So(samples, ShouldHaveLength, 1)
				So(samples[0].Files, ShouldHaveLength, 1)
				So(filepath.Dir(samples[0].Files[0]), ShouldEqual, filepath.Join(dir, r.Session()))
				So(samples[0].Files[0], ShouldContainSubstring, "cam0_frame5")

				decoded := decodeJPEG(samples[0].Files[0])
				So(decoded.Bounds().Dx(), ShouldEqual, 64)
				So(decoded.Bounds().Dy(), ShouldEqual, 48)
			})

			Convey("bbox samples write one crop per box", func() {
				boxes := []image.Rectangle{
					image.Rect(10, 10, 30, 20),
					image.Rect(50, 40, 80, 60), // clipped to the frame
					image.Rect(100, 100, 120, 120),
				}
				So(r.Record(Sample{FrameID: 6, Method: SampleBBox, Directory: dir, Boxes: boxes, Image: img}), ShouldBeNil)
				So(r.Stop(), ShouldBeNil)

				samples, err := r.Samples(r.Session())
				So(err, ShouldBeNil)
				So(samples[0].Files, ShouldHaveLength, 2)
				So(samples[0].Files[0], ShouldEndWith, "_box0.jpg")
				So(samples[0].Files[1], ShouldEndWith, "_box1.jpg")

				first := decodeJPEG(samples[0].Files[0])
				So(first.Bounds().Dx(), ShouldEqual, 20)
				So(first.Bounds().Dy(), ShouldEqual, 10)
				_, g, _, _ := first.At(first.Bounds().Min.X+10, first.Bounds().Min.Y+5).RGBA()
				So(g>>8, ShouldBeGreaterThan, 150)

				second := decodeJPEG(samples[0].Files[1])
				So(second.Bounds().Dx(), ShouldEqual, 14)
				So(second.Bounds().Dy(), ShouldEqual, 8)
			})

			Convey("an unwritable directory still records the sample", func() {
				blocker := filepath.Join(dir, "file")
				So(os.WriteFile(blocker, nil, 0644), ShouldBeNil)
				So(r.Record(Sample{FrameID: 7, Method: SampleWhole, Directory: blocker, Image: img}), ShouldBeNil)
				So(r.Stop(), ShouldBeNil)

				samples, err := r.Samples(r.Session())
				So(err, ShouldBeNil)
				So(samples, ShouldHaveLength, 1)
				So(samples[0].Files, ShouldBeEmpty)
			})
		})
	})
}

func decodeJPEG(path string) image.Image {
	f, err := os.Open(path)
	So(err, ShouldBeNil)
	defer f.Close()

	img, err := jpeg.Decode(f)
	So(err, ShouldBeNil)
	return img
}

func TestTelemetry(t *testing.T) {
	Convey("Given a telemetry publisher", t, func() {
		log, _ := newCountingLogger()
		tel := NewTelemetry("gowl.test", log)

		cmd := actuation.Command{
			Relay:    3,
			Delay:    20 * time.Millisecond,
			IssuedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Duration: 150 * time.Millisecond,
		}

		Convey("nothing is published while disconnected", func() {
			called := false
			tel.publish = func(string, []byte) error { called = true; return nil }
			tel.Schedule(cmd)
			So(called, ShouldBeFalse)
		})

		Convey("a failed connect leaves it disabled", func() {
			So(tel.Connect("nats://127.0.0.1:1"), ShouldNotBeNil)
			tel.Schedule(cmd)
		})

		Convey("events are published as msgpack", func() {
			var subject string
			var payload []byte
			tel.enabled = true
			tel.publish = func(s string, data []byte) error {
				subject, payload = s, data
				return nil
			}

			tel.Schedule(cmd)
			So(subject, ShouldEqual, "gowl.test")

			var ev Event
			So(msgpack.Unmarshal(payload, &ev), ShouldBeNil)
			So(ev.Relay, ShouldEqual, 3)
			So(ev.DelayMS, ShouldEqual, 20)
			So(ev.DurationMS, ShouldEqual, 150)
			So(ev.IssuedAt.Equal(cmd.IssuedAt), ShouldBeTrue)

			Convey("until closed", func() {
				tel.Close()
				payload = nil
				tel.Schedule(cmd)
				So(payload, ShouldBeNil)
			})
		})
	})
}
