package can

import (
	"encoding/hex"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		expect    string
		expectErr string
	}
	cases := []Case{
		{"settings", "260#8000000000000000", "260#8000000000000000", ""},
		{"empty-data", "15b#", "15b#", ""},
		{"upper", "39B#980F", "39b#980f", ""},
		{"no-hash", "260", "", `frame="260" expected ID#HEX not valid`},
		{"bad-id", "xyz#00", "", `frame="xyz#00" id not valid`},
		{"bad-data", "260#0", "", `frame="260#0" data not valid`},
		{"long", "260#000000000000000000", "", "frame id=260 length=9 > max=8 not valid"},
		{"extended", "18daf110#00", "", "frame id=18daf110 > max=7ff not valid"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			f, err := ParseFrame(c.input)
			if c.expectErr != "" {
				require.Error(t, err)
				assert.Equal(t, c.expectErr, err.Error())
				return
			}
			require.NoError(t, err, errors.ErrorStack(err))
			assert.Equal(t, c.expect, f.String())
		})
	}
}

func TestFrameWire(t *testing.T) {
	t.Parallel()

	f := MustFrame(0x276, []byte{0x98, 0x03, 0x0f, 0x0e, 0x1e, 0x3f, 0xfe})
	b, err := f.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, "7602000007000000"+"98030f0e1e3ffe00", hex.EncodeToString(b))

	var f2 Frame
	require.NoError(t, f2.UnmarshalBinary(b))
	assert.True(t, f.Equal(&f2), "decoded=%s", f2.String())

	eff := append([]byte(nil), b...)
	eff[3] |= 0x80
	assert.True(t, errors.IsNotSupported(f2.UnmarshalBinary(eff)))
	errFrame := append([]byte(nil), b...)
	errFrame[3] |= 0x20
	assert.True(t, errors.IsNotSupported(f2.UnmarshalBinary(errFrame)))
	assert.True(t, errors.IsNotValid(f2.UnmarshalBinary(b[:8])))
}
