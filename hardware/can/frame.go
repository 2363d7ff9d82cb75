package can

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const (
	FrameMaxData = 8
	MaxStdID     = 0x7ff

	// Linux struct can_frame
	wireLen     = 16
	wireFlagEFF = 0x80000000
	wireFlagRTR = 0x40000000
	wireFlagERR = 0x20000000
	wireMaskSFF = 0x000007ff
)

// Classical CAN 2.0A data frame. Comfort bus uses 11 bit identifiers only.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [FrameMaxData]byte
}

func NewFrame(id uint32, data []byte) (Frame, error) {
	f := Frame{ID: id}
	if id > MaxStdID {
		return f, errors.NotValidf("frame id=%x > max=%x", id, MaxStdID)
	}
	if len(data) > FrameMaxData {
		return f, errors.NotValidf("frame id=%03x length=%d > max=%d", id, len(data), FrameMaxData)
	}
	f.Len = uint8(copy(f.Data[:], data))
	return f, nil
}

func MustFrame(id uint32, data []byte) Frame {
	f, err := NewFrame(id, data)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseFrame accepts candump style "260#8000ff".
func ParseFrame(s string) (Frame, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "#", 2)
	if len(parts) != 2 {
		return Frame{}, errors.NotValidf("frame=%q expected ID#HEX", s)
	}
	id, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return Frame{}, errors.NotValidf("frame=%q id", s)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return Frame{}, errors.NotValidf("frame=%q data", s)
	}
	return NewFrame(uint32(id), data)
}

func (f *Frame) Bytes() []byte { return f.Data[:f.Len] }

func (f *Frame) Equal(f2 *Frame) bool {
	return f.ID == f2.ID && f.Len == f2.Len && f.Data == f2.Data
}

// candump format
func (f Frame) String() string {
	return fmt.Sprintf("%03x#%s", f.ID, hex.EncodeToString(f.Data[:f.Len]))
}

// MarshalBinary encodes Linux SocketCAN struct can_frame, host (little endian) byte order.
func (f Frame) MarshalBinary() ([]byte, error) {
	if f.ID > MaxStdID || f.Len > FrameMaxData {
		return nil, errors.NotValidf("frame=%s", f.String())
	}
	b := make([]byte, wireLen)
	binary.LittleEndian.PutUint32(b[0:4], f.ID)
	b[4] = f.Len
	copy(b[8:], f.Data[:])
	return b, nil
}

// UnmarshalBinary decodes struct can_frame. Extended, remote and error frames are rejected
// with errors.NotSupported, callers usually skip them.
func (f *Frame) UnmarshalBinary(b []byte) error {
	if len(b) < wireLen {
		return errors.NotValidf("can_frame length=%d < %d", len(b), wireLen)
	}
	raw := binary.LittleEndian.Uint32(b[0:4])
	switch {
	case raw&wireFlagERR != 0:
		return errors.NotSupportedf("error frame id=%08x", raw)
	case raw&wireFlagEFF != 0:
		return errors.NotSupportedf("extended frame id=%08x", raw)
	case raw&wireFlagRTR != 0:
		return errors.NotSupportedf("remote frame id=%08x", raw)
	}
	length := b[4]
	if length > FrameMaxData {
		return errors.NotValidf("can_frame dlc=%d", length)
	}
	*f = Frame{ID: raw & wireMaskSFF, Len: length}
	copy(f.Data[:], b[8:8+int(length)])
	return nil
}
