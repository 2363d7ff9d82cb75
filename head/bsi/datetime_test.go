package bsi

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeWrite(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		input  string
		expect string
		errstr string
	}
	cases := []Case{
		{"example", "98030f0e1e", "2024-03-15T14:30 h24=true", ""},
		{"12h", "18030f0e1e", "2024-03-15T14:30 h24=false", ""},
		{"extra-bytes-ignored", "98030f0e1e3ffe", "2024-03-15T14:30 h24=true", ""},
		{"masked-bits", "98f3ef0e5e", "2024-03-15T14:30 h24=true", ""},
		{"month-zero-clamped", "9800050000", "2024-01-05T00:00 h24=true", ""},
		{"day-zero-clamped", "9802000000", "2024-02-01T00:00 h24=true", ""},
		{"leap-day", "98021d0000", "2024-02-29T00:00 h24=true", ""},
		{"year-max", "ff0c1f173b", "2127-12-31T23:59 h24=true", ""},
		{"short", "98030f0e", "", "time write length=4 < 5 not valid"},
		{"month-13", "980d010000", "", "month not valid"},
		{"day-31-april", "98041f0000", "", "day not valid"},
		{"day-29-feb-2023", "97021d0000", "", "day not valid"},
		{"hour-24", "9801011800", "", "hour not valid"},
		{"minute-60", "980101003c", "", "minute not valid"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			input, err := hex.DecodeString(c.input)
			require.NoError(t, err)
			dt, err := ParseTimeWrite(input)
			if c.errstr != "" {
				require.Error(t, err)
				assert.True(t, errors.IsNotValid(err))
				assert.Contains(t, err.Error(), c.errstr)
				assert.Equal(t, DateTime{}, dt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, dt.String())
		})
	}
}

func TestDateTimeWire(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		dt     DateTime
		expect string
	}
	cases := []Case{
		{"example", DateTime{2024, 3, 15, 14, 30, true}, "98030f0e1e3ffe"},
		{"12h", DateTime{2024, 3, 15, 14, 30, false}, "18030f0e1e3ffe"},
		{"year-below-range", DateTime{1970, 1, 1, 0, 0, false}, "00010100003ffe"},
		{"year-above-range", DateTime{2200, 6, 1, 12, 0, true}, "ff06010c003ffe"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			wire := c.dt.Wire()
			require.Len(t, wire, TimeFrameLen)
			assert.Equal(t, c.expect, hex.EncodeToString(wire))
		})
	}
}

func TestDateTimeEpoch(t *testing.T) {
	t.Parallel()

	input, _ := hex.DecodeString("98030f0e1e")
	dt, err := ParseTimeWrite(input)
	require.NoError(t, err)
	epoch := dt.Epoch()
	assert.Equal(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC).Unix(), epoch)

	back := DateTimeFromEpoch(epoch+59, true)
	assert.Equal(t, dt, back)
	assert.Equal(t, "98030f0e1e3ffe", hex.EncodeToString(back.Wire()))
	// unset clock broadcasts lowest encodable value
	assert.Equal(t, "00010100003ffe", hex.EncodeToString(DateTimeFromEpoch(0, false).Wire()))
}

func TestDateTimeRoundTripAllDates(t *testing.T) {
	t.Parallel()

	for year := yearBase; year <= yearBase+yearOffsetMax; year++ {
		for month := 1; month <= 12; month++ {
			days := daysIn(year, time.Month(month))
			for day := 1; day <= days; day++ {
				hour, minute := (year+day)%24, (month*7+day)%60
				h24 := day%2 == 0
				in := DateTime{Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Hour24: h24}
				wire := in.Wire()
				dt, err := ParseTimeWrite(wire[:TimeWriteMinLen])
				require.NoError(t, err, in.String())
				require.Equal(t, in, dt)
				back := DateTimeFromEpoch(dt.Epoch(), h24)
				require.Equal(t, in, back)
				require.Equal(t, wire, back.Wire())
			}
			// day past month end is rejected
			b := []byte{byte(year - yearBase), byte(month), byte(days + 1), 0, 0}
			if days+1 <= 0x1f {
				_, err := ParseTimeWrite(b)
				require.True(t, errors.IsNotValid(err), "%d-%02d-%02d", year, month, days+1)
			}
		}
	}
}
