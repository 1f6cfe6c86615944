package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	msgMaxLength = 8
	frameSize    = 16 // sizeof(struct can_frame)

	canSFFMask = 0x000007ff
	canEFFMask = 0x1fffffff
	canEFFFlag = 0x80000000
	canRTRFlag = 0x40000000
	canERRFlag = 0x20000000
)

// errors
var (
	ErrDataTooLong = errors.New("data length exceeds 8 bytes")
	ErrShortFrame  = errors.New("raw frame shorter than 16 bytes")
)

// Frame is a classic CAN frame. DLC is taken from len(Data).
type Frame struct {
	ID   uint32 // arbitration id
	Data []byte // up to eight bytes
}

func (f Frame) String() string {
	return fmt.Sprintf("0x%03x [%d] % x", f.ID, len(f.Data), f.Data)
}

// toByteArray lays the frame out as a linux struct can_frame. Identifiers that
// do not fit the standard 11 bit range are sent as extended frames.
func (f Frame) toByteArray() (raw []byte, err error) {
	if len(f.Data) > msgMaxLength {
		return nil, ErrDataTooLong
	}

	raw = make([]byte, frameSize)

	oid := f.ID
	if oid != oid&canSFFMask {
		oid = (oid & canEFFMask) | canEFFFlag
	}
	binary.LittleEndian.PutUint32(raw[0:4], oid)

	raw[4] = byte(len(f.Data))
	copy(raw[8:], f.Data)

	return raw, nil
}

// frameFromByteArray is the inverse of toByteArray. Error and remote frames are
// reported with ok == false.
func frameFromByteArray(raw []byte) (f Frame, ok bool, err error) {
	if len(raw) < frameSize {
		return f, false, ErrShortFrame
	}

	oid := binary.LittleEndian.Uint32(raw[0:4])
	if oid&(canERRFlag|canRTRFlag) != 0 {
		return f, false, nil
	}

	if oid&canEFFFlag != 0 {
		f.ID = oid & canEFFMask
	} else {
		f.ID = oid & canSFFMask
	}

	dlc := int(raw[4])
	if dlc > msgMaxLength {
		dlc = msgMaxLength
	}
	f.Data = make([]byte, dlc)
	copy(f.Data, raw[8:8+dlc])

	return f, true, nil
}
