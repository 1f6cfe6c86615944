// Package settings implements the compact TLV payload used to advertise node
// settings over the CAN bus.
//
// Each entry is written as
//
//	[key_len:1][key][value_len:1][value, big-endian unsigned]
//
// and entries repeat until the payload is exhausted. Only the first byte of a
// key is transmitted, so "threshold" and "t" collide on the wire.
package settings

import (
	"errors"
	"sort"

	deverrors "github.com/CodedInternet/gowl/onboard/errors"
)

// maximum width of an encoded value, anything wider cannot fit a uint64
const maxValueLen = 8

var (
	ErrEmptyKey = errors.New("settings key must not be empty")
)

// Map holds the settings of a single node keyed by a one character name.
type Map map[string]uint64

// Clone returns an independent copy of m.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	c := make(Map, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Encode serialises m. Keys are written in sorted order so the same map always
// produces the same payload. The result is not bounded to the 8 byte classic
// CAN payload; callers sending it on a bus must check the length themselves.
func Encode(m Map) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if len(k) == 0 {
			return nil, ErrEmptyKey
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make([]byte, 0, len(keys)*4)
	for _, k := range keys {
		value := valueBytes(m[k])
		data = append(data, 1, k[0])
		data = append(data, byte(len(value)))
		data = append(data, value...)
	}

	return data, nil
}

// Decode parses a payload produced by Encode. A truncated or malformed payload
// returns a *errors.ProtocolError.
func Decode(data []byte) (Map, error) {
	m := make(Map)

	i := 0
	for i < len(data) {
		keyLen := int(data[i])
		i++
		if keyLen != 1 {
			return nil, &deverrors.ProtocolError{Offset: i - 1, Reason: "key length must be 1"}
		}
		if i+keyLen > len(data) {
			return nil, &deverrors.ProtocolError{Offset: i, Reason: "key runs past end of payload"}
		}
		key := string(data[i : i+keyLen])
		i += keyLen

		if i >= len(data) {
			return nil, &deverrors.ProtocolError{Offset: i, Reason: "missing value length"}
		}
		valueLen := int(data[i])
		i++
		switch {
		case valueLen == 0:
			return nil, &deverrors.ProtocolError{Offset: i - 1, Reason: "zero length value"}
		case valueLen > maxValueLen:
			return nil, &deverrors.ProtocolError{Offset: i - 1, Reason: "value wider than 8 bytes"}
		case i+valueLen > len(data):
			return nil, &deverrors.ProtocolError{Offset: i, Reason: "value runs past end of payload"}
		}

		var value uint64
		for _, b := range data[i : i+valueLen] {
			value = value<<8 | uint64(b)
		}
		i += valueLen

		m[key] = value
	}

	return m, nil
}

// valueBytes returns the minimal big-endian representation of v, at least one byte.
func valueBytes(v uint64) []byte {
	n := 1
	for x := v >> 8; x > 0; x >>= 8 {
		n++
	}

	buf := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}
