package sysclock

import (
	"time"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

var processStart = time.Now()

func monotonicTicks() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return durationTicks(time.Since(processStart))
	}
	return durationTicks(time.Duration(ts.Nano()))
}

func setWallClock(t time.Time) error {
	tv := unix.NsecToTimeval(t.UnixNano())
	if err := unix.Settimeofday(&tv); err != nil {
		return errors.Annotate(err, "sysclock: settimeofday")
	}
	return nil
}
