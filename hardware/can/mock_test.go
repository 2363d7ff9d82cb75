package can

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockLifecycle(t *testing.T) {
	t.Parallel()

	m := NewMockTransport(t)
	p := Profile{Name: "125k", Bitrate: 125000}
	assert.Equal(t, ErrNotInstalled, m.Start())
	require.NoError(t, m.Install(p))
	require.NoError(t, m.Start())
	_, running := m.Running()
	assert.True(t, running)

	m.PushHex("15b#94", "39b#980f")
	f, ok, err := m.Receive()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "15b#94", f.String())
	_, ok, _ = m.Receive()
	assert.True(t, ok)
	_, ok, err = m.Receive()
	assert.NoError(t, err)
	assert.False(t, ok)

	m.FailReceive(errors.New("network is down"))
	_, _, err = m.Receive()
	assert.EqualError(t, err, "network is down")
	m.FailReceive(nil)
	_, ok, err = m.Receive()
	assert.NoError(t, err)
	assert.False(t, ok)

	m.FailSend(1)
	assert.True(t, errors.IsTimeout(m.Send(MustFrame(0x260, []byte{0x80}), 20*time.Millisecond)))
	require.NoError(t, m.Send(MustFrame(0x260, []byte{0x80}), 20*time.Millisecond))
	require.NoError(t, m.Send(MustFrame(0x276, []byte{0x00}), 20*time.Millisecond))
	assert.Len(t, m.TakeSentID(0x260), 1)
	assert.Len(t, m.TakeSent(), 0)

	require.NoError(t, m.Stop())
	assert.True(t, IsAlreadyStopped(m.Stop()))
	assert.True(t, IsAlreadyStopped(errors.Annotate(m.Stop(), "teardown")))
	require.NoError(t, m.Uninstall())
	assert.Equal(t, []string{"start", "install:125k", "start", "stop", "stop", "stop", "uninstall"}, m.TakeCalls())
}
