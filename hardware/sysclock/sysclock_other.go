//go:build !linux
// +build !linux

package sysclock

import (
	"time"

	"github.com/juju/errors"
)

var processStart = time.Now()

func monotonicTicks() uint64 { return durationTicks(time.Since(processStart)) }

func setWallClock(t time.Time) error {
	return errors.NotSupportedf("sysclock: set wall clock on this platform")
}
