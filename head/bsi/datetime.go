package bsi

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

const (
	TimeWriteMinLen = 5
	TimeFrameLen    = 7

	yearBase      = 2000
	yearOffsetMax = 0x7f
	bitHour24     = 0x80

	timeFiller   = 0x3f
	timeNoSecond = 0xfe
)

// DateTime is calendar time as carried on the bus: minute resolution, no time zone.
type DateTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Hour24 bool
}

// ParseTimeWrite decodes inbound date/time write. Month and day zero are clamped to 1.
// Returns NotValid for short frame or fields that do not form a calendar date.
func ParseTimeWrite(b []byte) (DateTime, error) {
	if len(b) < TimeWriteMinLen {
		return DateTime{}, errors.NotValidf("time write length=%d < %d", len(b), TimeWriteMinLen)
	}
	dt := DateTime{
		Hour24: b[0]&bitHour24 != 0,
		Year:   yearBase + int(b[0]&yearOffsetMax),
		Month:  int(b[1] & 0x0f),
		Day:    int(b[2] & 0x1f),
		Hour:   int(b[3] & 0x1f),
		Minute: int(b[4] & 0x3f),
	}
	if dt.Month == 0 {
		dt.Month = 1
	}
	if dt.Day == 0 {
		dt.Day = 1
	}
	if err := dt.Validate(); err != nil {
		return DateTime{}, err
	}
	return dt, nil
}

func (dt DateTime) Validate() error {
	switch {
	case dt.Month < 1 || dt.Month > 12:
		return errors.NotValidf("date=%s month", dt.String())
	case dt.Day < 1 || dt.Day > daysIn(dt.Year, time.Month(dt.Month)):
		return errors.NotValidf("date=%s day", dt.String())
	case dt.Hour < 0 || dt.Hour > 23:
		return errors.NotValidf("date=%s hour", dt.String())
	case dt.Minute < 0 || dt.Minute > 59:
		return errors.NotValidf("date=%s minute", dt.String())
	}
	return nil
}

// Epoch interprets fields as naive calendar time (UTC, no zone offset).
func (dt DateTime) Epoch() int64 {
	return time.Date(dt.Year, time.Month(dt.Month), dt.Day, dt.Hour, dt.Minute, 0, 0, time.UTC).Unix()
}

func DateTimeFromEpoch(epoch int64, hour24 bool) DateTime {
	t := time.Unix(epoch, 0).UTC()
	return DateTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Hour24: hour24,
	}
}

// Wire returns 7 byte date/time broadcast. Year outside 2000..2127 is clamped.
func (dt DateTime) Wire() []byte {
	offset := dt.Year - yearBase
	if offset < 0 {
		offset = 0
	} else if offset > yearOffsetMax {
		offset = yearOffsetMax
	}
	b0 := byte(offset)
	if dt.Hour24 {
		b0 |= bitHour24
	}
	return []byte{b0, byte(dt.Month), byte(dt.Day), byte(dt.Hour), byte(dt.Minute), timeFiller, timeNoSecond}
}

func (dt DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d h24=%t", dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Hour24)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
