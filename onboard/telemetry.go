package onboard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/CodedInternet/gowl/onboard/actuation"
)

// Event is the public form of an actuation command.
type Event struct {
	Relay      int       `json:"relay" msgpack:"relay"`
	DelayMS    int64     `json:"delay_ms" msgpack:"delay_ms"`
	DurationMS int64     `json:"duration_ms" msgpack:"duration_ms"`
	IssuedAt   time.Time `json:"issued_at" msgpack:"issued_at"`
}

func NewEvent(cmd actuation.Command) Event {
	return Event{
		Relay:      cmd.Relay,
		DelayMS:    cmd.Delay.Milliseconds(),
		DurationMS: cmd.Duration.Milliseconds(),
		IssuedAt:   cmd.IssuedAt,
	}
}

// Telemetry publishes actuation events to NATS. While disconnected it drops
// events without complaint.
type Telemetry struct {
	subject string
	log     *slog.Logger

	lock    sync.Mutex
	conn    *nats.Conn
	enabled bool
	publish func(subject string, data []byte) error
}

func NewTelemetry(subject string, log *slog.Logger) *Telemetry {
	if log == nil {
		log = slog.Default()
	}
	return &Telemetry{
		subject: subject,
		log:     log.With("component", "telemetry"),
	}
}

func (t *Telemetry) Connect(url string) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	opts := []nats.Option{
		nats.Name("gowl-actuation"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			t.log.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		t.enabled = false
		return fmt.Errorf("connecting to nats: %w", err)
	}

	t.conn = conn
	t.publish = conn.Publish
	t.enabled = true
	t.log.Info("nats connected", "url", url, "subject", t.subject)
	return nil
}

// Schedule implements actuation.Sink.
func (t *Telemetry) Schedule(cmd actuation.Command) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.enabled || t.publish == nil {
		return
	}

	data, err := msgpack.Marshal(NewEvent(cmd))
	if err != nil {
		t.log.Error("failed to encode event", "err", err)
		return
	}

	if err := t.publish(t.subject, data); err != nil {
		t.log.Debug("failed to publish event", "err", err)
	}
}

func (t *Telemetry) Close() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.enabled = false
}
