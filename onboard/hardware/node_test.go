package hardware

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/CodedInternet/gowl/onboard/canbus"
	deverrors "github.com/CodedInternet/gowl/onboard/errors"
	"github.com/CodedInternet/gowl/onboard/settings"
	. "github.com/smartystreets/goconvey/convey"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type testBus struct {
	lock    sync.Mutex
	txCount int
	lastTx  canbus.Frame
	retries int
}

func (t *testBus) Send(f canbus.Frame, retries int, retryDelay time.Duration) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.lastTx = f
	t.retries = retries
	t.txCount++
}

func createTestDirectory() (tBus *testBus, dir *Directory) {
	tBus = &testBus{}
	dir = NewDirectory(tBus, discard)
	return
}

func TestDirectory_UpdateNode(t *testing.T) {
	Convey("Given a directory", t, func() {
		tBus, dir := createTestDirectory()

		Convey("updating a node mirrors and pushes the settings", func() {
			err := dir.UpdateNode(3, settings.Map{"a": 1, "b": 300})
			So(err, ShouldBeNil)
			So(tBus.txCount, ShouldEqual, 1)
			So(tBus.lastTx.ID, ShouldEqual, 0x103)
			So(tBus.retries, ShouldEqual, canbus.DefaultRetries)

			m, ok := dir.Settings(3)
			So(ok, ShouldBeTrue)
			So(m, ShouldResemble, settings.Map{"a": 1, "b": 300})

			decoded, _ := settings.Decode(tBus.lastTx.Data)
			So(decoded, ShouldResemble, m)
		})

		Convey("the last write wins", func() {
			dir.UpdateNode(3, settings.Map{"a": 1})
			dir.UpdateNode(3, settings.Map{"a": 2})

			m, _ := dir.Settings(3)
			So(m, ShouldResemble, settings.Map{"a": 2})
			So(tBus.txCount, ShouldEqual, 2)
		})

		Convey("the mirror is not shared with the caller", func() {
			in := settings.Map{"a": 1}
			dir.UpdateNode(3, in)
			in["a"] = 9

			m, _ := dir.Settings(3)
			m["b"] = 4

			m, _ = dir.Settings(3)
			So(m, ShouldResemble, settings.Map{"a": 1})
		})

		Convey("encoding errors are returned and nothing is sent", func() {
			err := dir.UpdateNode(3, settings.Map{"": 1})
			So(err, ShouldNotBeNil)
			So(tBus.txCount, ShouldEqual, 0)

			_, ok := dir.Settings(3)
			So(ok, ShouldBeFalse)
		})

		Convey("config select is sent as a command", func() {
			So(dir.SelectConfig(2, 5), ShouldBeNil)
			So(tBus.lastTx, ShouldResemble, canbus.Frame{ID: 0x202, Data: []byte{5}})

			So(dir.SelectConfig(2, 0), ShouldHaveSameTypeAs, deverrors.ConfigIndexError{})
			So(tBus.txCount, ShouldEqual, 1)
		})
	})
}

func TestDirectory_OnFrame(t *testing.T) {
	Convey("Given a directory with handlers", t, func() {
		_, dir := createTestDirectory()

		var gotNode uint8
		var gotSettings settings.Map
		dir.OnSettings(func(node uint8, m settings.Map) {
			gotNode = node
			gotSettings = m
		})

		gotIndex := -1
		dir.OnConfig(func(node uint8, index int) {
			gotNode = node
			gotIndex = index
		})

		Convey("a settings frame for node 5 updates its mirror", func() {
			data, _ := settings.Encode(settings.Map{"a": 1})
			err := dir.OnFrame(canbus.Frame{ID: 0x105, Data: data})
			So(err, ShouldBeNil)

			m, ok := dir.Settings(5)
			So(ok, ShouldBeTrue)
			So(m, ShouldResemble, settings.Map{"a": 1})

			So(gotNode, ShouldEqual, 5)
			So(gotSettings, ShouldResemble, settings.Map{"a": 1})
			So(dir.Nodes(), ShouldResemble, []uint8{5})
		})

		Convey("a malformed payload keeps the previous settings", func() {
			data, _ := settings.Encode(settings.Map{"a": 1})
			dir.OnFrame(canbus.Frame{ID: 0x105, Data: data})

			err := dir.OnFrame(canbus.Frame{ID: 0x105, Data: []byte{0x01, 'a', 0x02, 0x01}})
			So(err, ShouldNotBeNil)

			m, _ := dir.Settings(5)
			So(m, ShouldResemble, settings.Map{"a": 1})
		})

		Convey("config commands go to the config handler", func() {
			err := dir.OnFrame(canbus.Frame{ID: 0x205, Data: []byte{5}})
			So(err, ShouldBeNil)
			So(gotIndex, ShouldEqual, 5)
			So(gotNode, ShouldEqual, 5)
			So(gotSettings, ShouldBeNil)

			_, ok := dir.Settings(5)
			So(ok, ShouldBeFalse)
		})

		Convey("config commands without a payload are rejected", func() {
			err := dir.OnFrame(canbus.Frame{ID: 0x205})
			So(err, ShouldHaveSameTypeAs, &deverrors.ProtocolError{})
			So(gotIndex, ShouldEqual, -1)
		})

		Convey("frames outside the known ranges are ignored", func() {
			err := dir.OnFrame(canbus.Frame{ID: 0x7ff, Data: []byte{1}})
			So(err, ShouldNotBeNil)
			So(dir.Nodes(), ShouldBeEmpty)
			So(gotIndex, ShouldEqual, -1)
		})
	})

	Convey("Nodes are listed in order", t, func() {
		_, dir := createTestDirectory()
		dir.UpdateNode(9, settings.Map{"a": 1})
		dir.UpdateNode(2, settings.Map{"a": 1})
		dir.UpdateNode(4, settings.Map{"a": 1})

		So(dir.Nodes(), ShouldResemble, []uint8{2, 4, 9})
	})
}
