package canbus

import (
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// SocketCAN is a raw CAN_RAW socket bound to a single interface.
type SocketCAN struct {
	fd int

	lock    sync.Mutex
	timeout time.Duration
}

func OpenSocketCAN(ifname string) (bus *SocketCAN, err error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, err
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err = unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &SocketCAN{fd: fd}, nil
}

func (c *SocketCAN) Send(f Frame) error {
	raw, err := f.toByteArray()
	if err != nil {
		return err
	}

	_, err = unix.Write(c.fd, raw)
	return err
}

func (c *SocketCAN) Receive(timeout time.Duration) (f Frame, ok bool, err error) {
	if err = c.setTimeout(timeout); err != nil {
		return f, false, err
	}

	raw := make([]byte, frameSize)
	n, err := unix.Read(c.fd, raw)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return f, false, nil
		}
		return f, false, err
	}

	return frameFromByteArray(raw[:n])
}

func (c *SocketCAN) Close() error {
	return unix.Close(c.fd)
}

// setTimeout applies SO_RCVTIMEO only when it differs from the last value.
func (c *SocketCAN) setTimeout(timeout time.Duration) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if timeout == c.timeout {
		return nil
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return err
	}
	c.timeout = timeout
	return nil
}
