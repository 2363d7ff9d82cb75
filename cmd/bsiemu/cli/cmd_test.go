package cli

import (
	"strings"
	"testing"

	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	type Case struct {
		line      string
		expectN   int
		expectErr string
	}
	cases := []Case{
		{"", 0, ""},
		{"start poll state", 3, ""},
		{"@260#8040000000000000 s10 loop=3", 2, ""},
		{"loop=2 loop=3", 0, "multiple loop"},
		{"loop=0", 0, "word=loop=0 not valid"},
		{"@zz#00", 0, "not valid"},
		{"bc=radio", 0, `kind="radio" not valid`},
		{"lang=x", 0, "word=lang=x not valid"},
		{"units=k", 0, "expected units=c|f"},
		{"h24=maybe", 0, "expected yes|no"},
		{"time=yesterday", 0, "word=time=yesterday not valid"},
		{"reboot", 0, "word=reboot not supported"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.line, func(t *testing.T) {
			t.Parallel()
			actions, _, err := ParseLine(c.line)
			if c.expectErr == "" {
				require.NoError(t, err)
				assert.Len(t, actions, c.expectN)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestExec(t *testing.T) {
	t.Parallel()
	ctx, g := state.NewTestContext(t, "", nil)
	m := state.MockTransport(g)

	err := Exec(ctx, "@39b#98030f0e1e")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")

	require.NoError(t, Exec(ctx, "start=250k poll"))
	p, ok := g.Emulator.Profile()
	require.True(t, ok)
	assert.Equal(t, 250000, p.Bitrate)
	// start makes both broadcasts due
	assert.Len(t, m.TakeSentID(0x260), 1)
	assert.Len(t, m.TakeSentID(0x276), 1)

	require.NoError(t, Exec(ctx, "lang=5 units=f h24=no"))
	s := g.Emulator.CurrentSettings()
	assert.Equal(t, uint8(5), s.Language)
	assert.False(t, s.Celsius)
	assert.False(t, s.Hour24)

	require.NoError(t, Exec(ctx, "time=1710513000"))
	assert.True(t, strings.HasPrefix(g.Emulator.CurrentTimeISO(), "2024-03-15T14:30"))

	m.TakeSent()
	require.NoError(t, Exec(ctx, "@39b#98030f0e1e bc=settings loop=2"))
	assert.Len(t, m.TakeSentID(0x39b), 2)
	assert.Len(t, m.TakeSentID(0x260), 2)

	require.NoError(t, Exec(ctx, "state log=no log=yes stop"))
	_, ok = g.Emulator.Profile()
	assert.False(t, ok)

	err = Exec(ctx, "start=1m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus profile=1m not found")
}
