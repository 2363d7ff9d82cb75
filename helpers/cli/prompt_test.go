package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadLines(t *testing.T) {
	t.Parallel()

	var got []string
	exec := func(line string) { got = append(got, line) }
	ReadLines(strings.NewReader("start\n  poll \n\nstate"), exec, nil)
	assert.Equal(t, []string{"start", "poll", "", "state"}, got)

	stop := make(chan struct{})
	close(stop)
	got = nil
	ReadLines(strings.NewReader("start\npoll"), exec, stop)
	assert.Empty(t, got)
}
