package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	var b Backoff
	const slack = 50 * time.Millisecond
	inRange := func(expect time.Duration) {
		t.Helper()
		d := b.DelayBefore()
		assert.True(t, d <= expect && d > expect-slack, "delay=%v expected~%v", d, expect)
	}
	b = Backoff{Min: 100 * time.Millisecond, Max: time.Second, K: 2}
	assert.Equal(t, time.Duration(0), b.DelayBefore())

	b.Failure()
	inRange(100 * time.Millisecond)
	b.Failure()
	inRange(200 * time.Millisecond)
	for i := 0; i < 10; i++ {
		b.Failure()
	}
	inRange(time.Second)

	assert.Equal(t, time.Duration(0), b.DelayAfter(true))
}

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	e1 := ErrTest("first")
	assert.Equal(t, error(e1), FoldErrors([]error{nil, e1}))
	assert.EqualError(t, FoldErrors([]error{e1, ErrTest("second")}), "first\nsecond")
}

func TestParseHex(t *testing.T) {
	t.Parallel()

	b, err := ParseHex("80 00 ff", 3)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x00, 0xff}, b)
	_, err = ParseHex("8000", 8)
	assert.Error(t, err)
	_, err = ParseHex("zz", -1)
	assert.Error(t, err)
}

type ErrTest string

func (e ErrTest) Error() string { return string(e) }
