//go:build !linux

package canbus

import "time"

// SocketCAN is only available on linux.
type SocketCAN struct{}

func OpenSocketCAN(ifname string) (*SocketCAN, error) {
	return nil, ErrNoBus
}

func (c *SocketCAN) Send(f Frame) error {
	return ErrNoBus
}

func (c *SocketCAN) Receive(timeout time.Duration) (f Frame, ok bool, err error) {
	return f, false, ErrNoBus
}

func (c *SocketCAN) Close() error {
	return nil
}
