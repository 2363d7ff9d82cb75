// Package sysclock provides host clock sources for the emulator:
// monotonic millisecond ticks and privileged wall clock setting.
package sysclock

import (
	"time"

	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

const ticksPerSecond = 1000

// Monotonic counts milliseconds since host boot when available.
// It does not advance across reboots, persisted anchors treat restart as zero elapsed.
type Monotonic struct{}

func (Monotonic) Ticks() uint64 { return monotonicTicks() }

// Wall sets host real time clock. Requires CAP_SYS_TIME.
type Wall struct {
	Log *log2.Log
}

func (self Wall) SetWallClock(t time.Time) error {
	if err := setWallClock(t); err != nil {
		return err
	}
	self.Log.Infof("sysclock: system time set to %s", t.UTC().Format(time.RFC3339))
	return nil
}

func durationTicks(d time.Duration) uint64 {
	return uint64(d / (time.Second / ticksPerSecond))
}
