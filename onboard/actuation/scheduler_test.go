package actuation

import (
	"image"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type testSink struct {
	cmds []Command
}

func (s *testSink) Schedule(cmd Command) {
	s.cmds = append(s.cmds, cmd)
}

func TestScheduler_Process(t *testing.T) {
	Convey("Given a 640x480 frame with 4 relays", t, func() {
		sink := &testSink{}
		s := NewScheduler(640, 480, 4, sink, discard)
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		s.Now = func() time.Time { return now }
		timing := Timing{Delay: 100 * time.Millisecond, Duration: 150 * time.Millisecond}

		So(s.ActivationLine(), ShouldEqual, 4)

		Convey("centres become commands for their lane", func() {
			n := s.Process([]image.Point{{150, 200}, {480, 300}, {640, 300}}, true, timing)
			So(n, ShouldEqual, 2)
			So(sink.cmds, ShouldResemble, []Command{
				{Relay: 0, Delay: timing.Delay, IssuedAt: now, Duration: timing.Duration},
				{Relay: 3, Delay: timing.Delay, IssuedAt: now, Duration: timing.Duration},
			})
		})

		Convey("nothing is sent while detection is disabled", func() {
			n := s.Process([]image.Point{{150, 200}}, false, timing)
			So(n, ShouldEqual, 0)
			So(sink.cmds, ShouldBeEmpty)
		})

		Convey("centres on or above the activation line never fire", func() {
			n := s.Process([]image.Point{{10, 0}, {200, 3}, {400, 4}}, true, timing)
			So(n, ShouldEqual, 0)
			So(sink.cmds, ShouldBeEmpty)

			n = s.Process([]image.Point{{400, 5}}, true, timing)
			So(n, ShouldEqual, 1)
			So(sink.cmds[0].Relay, ShouldEqual, 2)
		})

		Convey("duplicates in one lane are not coalesced", func() {
			n := s.Process([]image.Point{{10, 100}, {20, 110}, {30, 120}}, true, timing)
			So(n, ShouldEqual, 3)
			for _, c := range sink.cmds {
				So(c.Relay, ShouldEqual, 0)
			}
		})
	})

	Convey("the activation guard holds for any lane layout", t, func() {
		for _, n := range []int{1, 2, 4, 8} {
			sink := &testSink{}
			s := NewScheduler(832, 640, n, sink, discard)
			line := s.ActivationLine()

			var centres []image.Point
			for x := 0; x < 832; x += 13 {
				for y := 0; y <= line; y++ {
					centres = append(centres, image.Point{x, y})
				}
			}

			So(s.Process(centres, true, Timing{}), ShouldEqual, 0)
			So(sink.cmds, ShouldBeEmpty)
		}
	})
}

func TestMulti(t *testing.T) {
	Convey("every sink sees every command", t, func() {
		a, b := &testSink{}, &testSink{}
		m := Multi{a, nil, b}
		m.Schedule(Command{Relay: 2})

		So(a.cmds, ShouldHaveLength, 1)
		So(b.cmds, ShouldHaveLength, 1)
	})
}
