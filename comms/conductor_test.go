package comms

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CodedInternet/gowl/onboard"
	"github.com/CodedInternet/gowl/onboard/actuation"
	"github.com/CodedInternet/gowl/onboard/settings"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockDevice struct {
	lastIndex int
}

func (d *mockDevice) ChangeConfig(index int) error {
	if index < 1 || index > 20 {
		return errors.New("bad index")
	}
	d.lastIndex = index
	return nil
}

func (d *mockDevice) Status() onboard.Status {
	return onboard.Status{Running: true, Config: "config_1"}
}

type mockNodes struct {
	node     uint8
	index    int
	settings settings.Map
}

func (n *mockNodes) UpdateNode(node uint8, m settings.Map) error {
	n.node, n.settings = node, m
	return nil
}

func (n *mockNodes) SelectConfig(node uint8, index int) error {
	n.node, n.index = node, index
	return nil
}

func newTestServer(c *Conductor) (*httptest.Server, *websocket.Conn) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.Serve(conn)
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		panic(err)
	}
	return srv, conn
}

func waitClients(c *Conductor, n int) {
	deadline := time.Now().Add(time.Second)
	for c.Clients() != n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConductor_ProcessCommand(t *testing.T) {
	Convey("Given a conductor", t, func() {
		dev := &mockDevice{}
		nodes := &mockNodes{}
		c := NewConductor(dev, nodes, discard)

		Convey("change_config hot swaps the local snapshot", func() {
			So(c.ProcessCommand(Cmd{Cmd: "change_config", Index: 5}).Type, ShouldEqual, "ok")
			So(dev.lastIndex, ShouldEqual, 5)

			msg := c.ProcessCommand(Cmd{Cmd: "change_config", Index: 25})
			So(msg.Type, ShouldEqual, "error")
			So(dev.lastIndex, ShouldEqual, 5)
		})

		Convey("node commands reach the directory", func() {
			c.ProcessCommand(Cmd{Cmd: "select_config", Node: 2, Index: 3})
			So(nodes.node, ShouldEqual, 2)
			So(nodes.index, ShouldEqual, 3)

			c.ProcessCommand(Cmd{Cmd: "push_settings", Node: 4, Settings: settings.Map{"a": 1}})
			So(nodes.node, ShouldEqual, 4)
			So(nodes.settings, ShouldResemble, settings.Map{"a": 1})
		})

		Convey("status is returned", func() {
			msg := c.ProcessCommand(Cmd{Cmd: "status"})
			So(msg.Status, ShouldNotBeNil)
			So(msg.Status.Config, ShouldEqual, "config_1")
		})

		Convey("unknown commands are errors", func() {
			So(c.ProcessCommand(Cmd{Cmd: "fly"}).Error, ShouldContainSubstring, "unknown command")
		})

		Convey("missing collaborators are reported", func() {
			bare := NewConductor(nil, nil, discard)
			So(bare.ProcessCommand(Cmd{Cmd: "select_config"}).Type, ShouldEqual, "error")
			So(bare.ProcessCommand(Cmd{Cmd: "status"}).Type, ShouldEqual, "error")
		})
	})
}

func TestConductor_Serve(t *testing.T) {
	Convey("Given a connected client", t, func() {
		c := NewConductor(&mockDevice{}, &mockNodes{}, discard)
		srv, conn := newTestServer(c)
		defer srv.Close()
		defer conn.Close()
		waitClients(c, 1)
		So(c.Clients(), ShouldEqual, 1)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		Convey("actuation commands are broadcast", func() {
			c.Schedule(actuation.Command{Relay: 2, Delay: 0, Duration: 150 * time.Millisecond})

			var msg Message
			So(conn.ReadJSON(&msg), ShouldBeNil)
			So(msg.Type, ShouldEqual, "actuation")
			So(msg.Event.Relay, ShouldEqual, 2)
			So(msg.Event.DurationMS, ShouldEqual, 150)
		})

		Convey("commands get a reply", func() {
			So(conn.WriteJSON(Cmd{Cmd: "change_config", Index: 3}), ShouldBeNil)

			var msg Message
			So(conn.ReadJSON(&msg), ShouldBeNil)
			So(msg.Type, ShouldEqual, "ok")
		})

		Convey("bad json gets an error reply", func() {
			So(conn.WriteMessage(websocket.TextMessage, []byte("{")), ShouldBeNil)

			var msg Message
			So(conn.ReadJSON(&msg), ShouldBeNil)
			So(msg.Error, ShouldEqual, "invalid json")
		})

		Convey("closing the conductor disconnects clients", func() {
			So(c.Close(), ShouldBeNil)
			So(c.Clients(), ShouldEqual, 0)

			_, _, err := conn.ReadMessage()
			So(err, ShouldNotBeNil)

			Convey("and refuses new ones", func() {
				srv2, conn2 := newTestServer(c)
				defer srv2.Close()
				defer conn2.Close()

				conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, _, err := conn2.ReadMessage()
				So(err, ShouldNotBeNil)
				So(c.Clients(), ShouldEqual, 0)
			})
		})
	})
}
