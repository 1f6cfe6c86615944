package canbus

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultRetries        = 3
	DefaultRetryDelay     = time.Second
	DefaultReceiveTimeout = time.Second
	DefaultBitrate        = 500000

	// consecutive receive errors between log lines
	errorLogEvery = 60
)

var (
	ErrNoBus = errors.New("CAN bus not available")
)

// Transport moves raw frames on and off a physical bus.
type Transport interface {
	Send(f Frame) error
	// Receive blocks for at most timeout. ok is false when nothing arrived.
	Receive(timeout time.Duration) (f Frame, ok bool, err error)
	Close() error
}

// Link gives best-effort framed messaging over an unreliable bus. A Link whose
// transport could not be opened is inert: every call logs and returns.
type Link struct {
	ReceiveTimeout time.Duration

	transport Transport
	log       *slog.Logger

	lock      sync.Mutex
	receiving bool
	stop      chan struct{}
	done      sync.WaitGroup
	stopOnce  sync.Once
}

// NewLink wraps an already opened transport. A nil transport gives an inert link.
func NewLink(transport Transport, log *slog.Logger) *Link {
	if log == nil {
		log = slog.Default()
	}

	return &Link{
		ReceiveTimeout: DefaultReceiveTimeout,
		transport:      transport,
		log:            log.With("component", "canbus"),
		stop:           make(chan struct{}),
	}
}

// Open connects to the named SocketCAN interface. Failure is logged and an
// inert link is returned so the caller can carry on without a bus.
func Open(ifname string, bitrate int, log *slog.Logger) *Link {
	if log == nil {
		log = slog.Default()
	}

	transport, err := OpenSocketCAN(ifname)
	if err != nil {
		log.Error("failed to initialize CAN bus", "interface", ifname, "err", err)
		return NewLink(nil, log)
	}

	log.Info("CAN bus setup", "interface", ifname, "bitrate", bitrate)
	return NewLink(transport, log)
}

// Available reports whether the link has a working transport.
func (l *Link) Available() bool {
	return l.transport != nil
}

// Send attempts transmission up to retries times, waiting retryDelay after
// each failed attempt that is followed by another. Failure is only ever
// logged; the caller is never told.
func (l *Link) Send(f Frame, retries int, retryDelay time.Duration) {
	if l.transport == nil {
		l.log.Warn("dropping frame, no bus", "id", f.ID)
		return
	}

	for attempt := 1; attempt <= retries; attempt++ {
		err := l.transport.Send(f)
		if err == nil {
			l.log.Debug("message sent", "id", f.ID, "data", f.Data)
			return
		}

		l.log.Error("error sending message", "id", f.ID, "attempt", attempt, "retries", retries, "err", err)
		if attempt < retries {
			time.Sleep(retryDelay)
		}
	}

	l.log.Error("failed to send message", "id", f.ID, "retries", retries)
}

// StartReceiving runs a receive loop on its own goroutine, handing every frame
// to callback on that goroutine. callback must not block for long or Stop
// will stall behind it.
func (l *Link) StartReceiving(callback func(Frame)) {
	if l.transport == nil {
		l.log.Warn("not receiving, no bus")
		return
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	if l.receiving {
		return
	}
	l.receiving = true

	l.done.Add(1)
	go l.reader(callback)
}

func (l *Link) reader(callback func(Frame)) {
	defer l.done.Done()

	failures := 0
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		f, ok, err := l.transport.Receive(l.ReceiveTimeout)
		if err != nil {
			failures++
			if failures == 1 || failures%errorLogEvery == 0 {
				l.log.Error("error receiving message", "err", err, "failures", failures)
			}

			// a dead interface fails at once, so wait before trying again
			select {
			case <-l.stop:
				return
			case <-time.After(l.ReceiveTimeout):
			}
			continue
		}
		if failures > 0 {
			l.log.Info("receiving again", "failures", failures)
			failures = 0
		}
		if !ok {
			continue
		}

		l.log.Debug("message received", "id", f.ID, "data", f.Data)
		callback(f)
	}
}

// Stop ends the receive loop and waits for it. The wait is bounded by
// ReceiveTimeout rather than being immediate. After a receive error the loop
// backs off for ReceiveTimeout before polling again. The transport is closed
// afterwards. Stop is safe to call more than once.
func (l *Link) Stop() {
	if l.transport == nil {
		return
	}

	l.stopOnce.Do(func() {
		l.log.Info("stopping CAN message receiving")
		close(l.stop)
		l.done.Wait()

		if err := l.transport.Close(); err != nil {
			l.log.Error("error closing CAN bus", "err", err)
		}
	})
}
