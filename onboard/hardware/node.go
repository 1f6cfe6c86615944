package hardware

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/CodedInternet/gowl/onboard/canbus"
	deverrors "github.com/CodedInternet/gowl/onboard/errors"
	"github.com/CodedInternet/gowl/onboard/settings"
)

// Bus is the part of canbus.Link the directory needs.
type Bus interface {
	Send(f canbus.Frame, retries int, retryDelay time.Duration)
}

type SettingsHandler func(node uint8, m settings.Map)
type ConfigHandler func(node uint8, index int)

// Directory mirrors the last known settings of every node on the bus. Pushes
// are advisory: nothing is acknowledged and the last local write wins.
type Directory struct {
	Retries    int
	RetryDelay time.Duration

	bus Bus
	log *slog.Logger

	lock       sync.RWMutex
	nodes      map[uint8]settings.Map
	onSettings SettingsHandler
	onConfig   ConfigHandler
}

func NewDirectory(bus Bus, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}

	return &Directory{
		Retries:    canbus.DefaultRetries,
		RetryDelay: canbus.DefaultRetryDelay,
		bus:        bus,
		log:        log.With("component", "nodes"),
		nodes:      make(map[uint8]settings.Map),
	}
}

// OnSettings registers the handler run after a node's settings are stored.
func (d *Directory) OnSettings(h SettingsHandler) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.onSettings = h
}

// OnConfig registers the handler run for config select commands.
func (d *Directory) OnConfig(h ConfigHandler) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.onConfig = h
}

// UpdateNode stores m as the local mirror of node and pushes it on the bus.
// Only encoding errors are returned; the bus drops failed frames silently.
func (d *Directory) UpdateNode(node uint8, m settings.Map) error {
	f, err := SettingsFrame(node, m)
	if err != nil {
		return err
	}

	d.lock.Lock()
	d.nodes[node] = m.Clone()
	d.lock.Unlock()

	d.bus.Send(f, d.Retries, d.RetryDelay)
	return nil
}

// SelectConfig asks node to switch to config index.
func (d *Directory) SelectConfig(node uint8, index int) error {
	if index < 1 || index > 0xff {
		return deverrors.ConfigIndexError{Index: index, Max: 0xff}
	}

	d.bus.Send(ConfigSelectFrame(node, uint8(index)), d.Retries, d.RetryDelay)
	return nil
}

// OnFrame decodes an inbound frame, updates the mirror and calls the matching
// handler. Malformed frames are logged and leave the mirror untouched; the
// error is returned for callers that want it.
func (d *Directory) OnFrame(f canbus.Frame) error {
	kind, node := Classify(f.ID)

	switch kind {
	case KindSettings:
		m, err := settings.Decode(f.Data)
		if err != nil {
			d.log.Error("dropping settings frame", "node", node, "err", err)
			return err
		}

		d.lock.Lock()
		d.nodes[node] = m
		h := d.onSettings
		d.lock.Unlock()

		d.log.Debug("node settings updated", "node", node, "settings", m)
		if h != nil {
			h(node, m.Clone())
		}

	case KindConfigSelect:
		if len(f.Data) == 0 {
			err := &deverrors.ProtocolError{Offset: 0, Reason: "config select without index"}
			d.log.Error("dropping config command", "node", node, "err", err)
			return err
		}

		d.lock.RLock()
		h := d.onConfig
		d.lock.RUnlock()

		if h != nil {
			h(node, int(f.Data[0]))
		}

	default:
		err := &deverrors.ProtocolError{Offset: 0, Reason: fmt.Sprintf("unknown arbitration id 0x%03x", f.ID)}
		d.log.Warn("ignoring frame", "id", f.ID, "err", err)
		return err
	}

	return nil
}

// Settings returns a copy of the last known settings of node.
func (d *Directory) Settings(node uint8) (settings.Map, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	m, ok := d.nodes[node]
	return m.Clone(), ok
}

// Nodes lists every node seen or written to, in ascending order.
func (d *Directory) Nodes() []uint8 {
	d.lock.RLock()
	defer d.lock.RUnlock()

	ids := make([]uint8, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
