package comms

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CodedInternet/gowl/onboard"
	"github.com/CodedInternet/gowl/onboard/actuation"
	"github.com/CodedInternet/gowl/onboard/settings"
)

const (
	clientQueue  = 32
	writeTimeout = time.Second
)

// Device is the part of the sprayer clients may drive.
type Device interface {
	ChangeConfig(index int) error
	Status() onboard.Status
}

// Nodes is the part of the node directory clients may drive.
type Nodes interface {
	UpdateNode(node uint8, m settings.Map) error
	SelectConfig(node uint8, index int) error
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Conductor fans actuation events out to every connected websocket client and
// runs the commands they send back.
type Conductor struct {
	Device Device
	Nodes  Nodes

	log *slog.Logger

	lock    sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewConductor(device Device, nodes Nodes, log *slog.Logger) *Conductor {
	if log == nil {
		log = slog.Default()
	}
	return &Conductor{
		Device:  device,
		Nodes:   nodes,
		log:     log.With("component", "conductor"),
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (c *Conductor) Clients() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.clients)
}

// Schedule implements actuation.Sink. Slow clients miss events rather than
// holding up the frame loop.
func (c *Conductor) Schedule(cmd actuation.Command) {
	ev := onboard.NewEvent(cmd)
	c.broadcast(Message{Type: "actuation", Event: &ev})
}

func (c *Conductor) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to encode message", "err", err)
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	for cl := range c.clients {
		select {
		case cl.send <- data:
		default:
			c.log.Debug("client queue full, dropping message", "remote", cl.conn.RemoteAddr())
		}
	}
}

// Serve takes ownership of conn and blocks until the client goes away or the
// conductor is closed.
func (c *Conductor) Serve(conn *websocket.Conn) {
	cl := &client{conn: conn, send: make(chan []byte, clientQueue)}

	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		conn.Close()
		return
	}
	c.clients[cl] = struct{}{}
	c.lock.Unlock()

	c.log.Info("client connected", "remote", conn.RemoteAddr())
	go c.writer(cl)

	defer func() {
		c.lock.Lock()
		delete(c.clients, cl)
		c.lock.Unlock()
		cl.close()
		c.log.Info("client disconnected", "remote", conn.RemoteAddr())
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Cmd
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.reply(cl, Message{Type: "error", Error: "invalid json"})
			continue
		}
		c.reply(cl, c.ProcessCommand(cmd))
	}
}

func (c *Conductor) reply(cl *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, ok := c.clients[cl]; !ok {
		return
	}
	select {
	case cl.send <- data:
	default:
	}
}

func (c *Conductor) writer(cl *client) {
	defer cl.conn.Close()
	for data := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Debug("write failed", "remote", cl.conn.RemoteAddr(), "err", err)
			return
		}
	}
	cl.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
}

// ProcessCommand runs a single client command and returns the reply.
func (c *Conductor) ProcessCommand(cmd Cmd) Message {
	var err error

	switch cmd.Cmd {
	case "status":
		if c.Device == nil {
			err = fmt.Errorf("no device")
			break
		}
		st := c.Device.Status()
		return Message{Type: "status", Status: &st}

	case "change_config":
		if c.Device == nil {
			err = fmt.Errorf("no device")
			break
		}
		err = c.Device.ChangeConfig(cmd.Index)

	case "select_config":
		if c.Nodes == nil {
			err = fmt.Errorf("no CAN nodes")
			break
		}
		err = c.Nodes.SelectConfig(cmd.Node, cmd.Index)

	case "push_settings":
		if c.Nodes == nil {
			err = fmt.Errorf("no CAN nodes")
			break
		}
		err = c.Nodes.UpdateNode(cmd.Node, cmd.Settings)

	default:
		err = fmt.Errorf("unknown command %q", cmd.Cmd)
	}

	if err != nil {
		c.log.Warn("command failed", "cmd", cmd.Cmd, "err", err)
		return Message{Type: "error", Error: err.Error()}
	}
	return Message{Type: "ok"}
}

// Close disconnects every client. It is used as the display resource and so
// runs during sprayer shutdown.
func (c *Conductor) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.closed = true
	for cl := range c.clients {
		cl.close()
		delete(c.clients, cl)
	}
	return nil
}
