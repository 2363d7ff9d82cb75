package can

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

var (
	ErrAlreadyStopped = errors.New("can: transport already stopped")
	ErrNotInstalled   = errors.New("can: transport not installed")
	ErrNotRunning     = errors.New("can: transport not running")
)

// Bus timing configuration. Cannot be changed while transport is running.
type Profile struct {
	Name    string
	Bitrate int
}

func (p Profile) String() string { return fmt.Sprintf("%s(%dbps)", p.Name, p.Bitrate) }
func (p Profile) IsZero() bool   { return p == Profile{} }

// Transport is the bus capability required by the emulator.
// Lifecycle: Install(profile) -> Start -> (Send|Receive)* -> Stop -> Uninstall.
type Transport interface {
	Install(Profile) error
	Start() error
	// Stop returns ErrAlreadyStopped (possibly annotated) when not running.
	Stop() error
	Uninstall() error
	// Send blocks at most timeout.
	Send(f Frame, timeout time.Duration) error
	// Receive never blocks, ok=false means nothing pending.
	Receive() (f Frame, ok bool, err error)
	Close() error
}

func IsAlreadyStopped(err error) bool {
	return errors.Cause(err) == ErrAlreadyStopped
}
