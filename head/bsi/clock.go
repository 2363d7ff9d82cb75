package bsi

import (
	"time"

	"github.com/juju/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const TicksPerSecond = 1000

// Ticker is monotonic millisecond counter. It may restart from zero across reboots.
type Ticker interface {
	Ticks() uint64
}

// WallSetter propagates accepted time writes to host clock.
type WallSetter interface {
	SetWallClock(time.Time) error
}

type TickerFunc func() uint64

func (f TickerFunc) Ticks() uint64 { return f() }

// AnchoredClock derives calendar time from epoch seconds captured at tick Ref.
// Zero Epoch means clock was never set.
type AnchoredClock struct {
	Epoch int64  `msgpack:"epoch"`
	Ref   uint64 `msgpack:"mono_ref"`
}

func (c AnchoredClock) IsSet() bool { return c.Epoch != 0 }

// Now returns Epoch + whole seconds since Ref. Ticks before Ref count as zero elapsed.
func (c AnchoredClock) Now(ticks uint64) int64 {
	if !c.IsSet() {
		return 0
	}
	var elapsed uint64
	if ticks > c.Ref {
		elapsed = ticks - c.Ref
	}
	return c.Epoch + int64(elapsed/TicksPerSecond)
}

// Reconstruct re-anchors persisted clock at boot. When counter restarted (ticks < Ref)
// time resumes from persisted epoch; off period is lost.
func (c AnchoredClock) Reconstruct(ticks uint64) AnchoredClock {
	if !c.IsSet() {
		return AnchoredClock{}
	}
	if ticks < c.Ref {
		return AnchoredClock{Epoch: c.Epoch, Ref: ticks}
	}
	return c
}

// clockRecord drops methods so msgpack encodes fields instead of calling MarshalBinary.
type clockRecord AnchoredClock

func (c AnchoredClock) MarshalBinary() ([]byte, error) {
	r := clockRecord(c)
	b, err := msgpack.Marshal(&r)
	return b, errors.Annotate(err, "clock marshal")
}

func (c *AnchoredClock) UnmarshalBinary(b []byte) error {
	var tmp AnchoredClock
	if err := msgpack.Unmarshal(b, (*clockRecord)(&tmp)); err != nil {
		return errors.Annotate(err, "clock unmarshal")
	}
	*c = tmp
	return nil
}
