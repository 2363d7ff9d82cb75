package can

// Public API to easy create bus stubs to test your code.
import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
)

// MockTransport records lifecycle calls and sent frames, serves queued inbound frames.
type MockTransport struct {
	t  testing.TB
	mu sync.Mutex

	calls     []string
	sent      []Frame
	inbox     []Frame
	profile   Profile
	installed bool
	running   bool

	failSend    int
	failReceive error
	failInstall error
	failStart   error
	failStop    error
}

var _ Transport = &MockTransport{}

func NewMockTransport(t testing.TB) *MockTransport {
	return &MockTransport{t: t}
}

func (self *MockTransport) logf(format string, args ...interface{}) {
	if self.t != nil {
		self.t.Helper()
		self.t.Logf("mock can: "+format, args...)
	}
}

func (self *MockTransport) Install(p Profile) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.calls = append(self.calls, "install:"+p.Name)
	if self.running {
		return errors.Errorf("mock can: install while running")
	}
	if err := self.failInstall; err != nil {
		self.failInstall = nil
		return err
	}
	self.profile = p
	self.installed = true
	return nil
}

func (self *MockTransport) Start() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.calls = append(self.calls, "start")
	if !self.installed {
		return ErrNotInstalled
	}
	if err := self.failStart; err != nil {
		self.failStart = nil
		return err
	}
	self.running = true
	return nil
}

func (self *MockTransport) Stop() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.calls = append(self.calls, "stop")
	if err := self.failStop; err != nil {
		self.failStop = nil
		return err
	}
	if !self.running {
		return ErrAlreadyStopped
	}
	self.running = false
	return nil
}

func (self *MockTransport) Uninstall() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.calls = append(self.calls, "uninstall")
	self.installed = false
	self.profile = Profile{}
	return nil
}

func (self *MockTransport) Send(f Frame, timeout time.Duration) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.running {
		return ErrNotRunning
	}
	if self.failSend > 0 {
		self.failSend--
		self.logf("send fail frame=%s", f.String())
		return errors.Timeoutf("mock can: send frame=%s timeout=%v", f.String(), timeout)
	}
	self.logf("send frame=%s", f.String())
	self.sent = append(self.sent, f)
	return nil
}

func (self *MockTransport) Receive() (Frame, bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.running {
		return Frame{}, false, ErrNotRunning
	}
	if self.failReceive != nil {
		return Frame{}, false, self.failReceive
	}
	if len(self.inbox) == 0 {
		return Frame{}, false, nil
	}
	f := self.inbox[0]
	self.inbox = self.inbox[1:]
	return f, true, nil
}

func (self *MockTransport) Close() error { return nil }

// Push queues inbound frames for Receive.
func (self *MockTransport) Push(frames ...Frame) {
	self.mu.Lock()
	self.inbox = append(self.inbox, frames...)
	self.mu.Unlock()
}

// PushHex queues "ID#HEX" frames, fails test on syntax error.
func (self *MockTransport) PushHex(ss ...string) {
	for _, s := range ss {
		f, err := ParseFrame(s)
		if err != nil {
			self.t.Fatal(errors.ErrorStack(err))
		}
		self.Push(f)
	}
}

// TakeSent returns frames sent since last call.
func (self *MockTransport) TakeSent() []Frame {
	self.mu.Lock()
	defer self.mu.Unlock()
	sent := self.sent
	self.sent = nil
	return sent
}

// TakeSentID is TakeSent filtered by identifier. Other frames are dropped too.
func (self *MockTransport) TakeSentID(id uint32) []Frame {
	all := self.TakeSent()
	result := make([]Frame, 0, len(all))
	for _, f := range all {
		if f.ID == id {
			result = append(result, f)
		}
	}
	return result
}

// TakeCalls returns lifecycle calls since last call, e.g. ["stop" "uninstall" "install:125k" "start"].
func (self *MockTransport) TakeCalls() []string {
	self.mu.Lock()
	defer self.mu.Unlock()
	calls := self.calls
	self.calls = nil
	return calls
}

func (self *MockTransport) Running() (Profile, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.profile, self.running
}

// FailSend makes next n Send calls return timeout error.
func (self *MockTransport) FailSend(n int) {
	self.mu.Lock()
	self.failSend = n
	self.mu.Unlock()
}

// FailReceive makes every Receive return err until called with nil.
func (self *MockTransport) FailReceive(err error) {
	self.mu.Lock()
	self.failReceive = err
	self.mu.Unlock()
}

// Next Install/Start/Stop returns err once.
func (self *MockTransport) FailInstall(err error) { self.mu.Lock(); self.failInstall = err; self.mu.Unlock() }
func (self *MockTransport) FailStart(err error)   { self.mu.Lock(); self.failStart = err; self.mu.Unlock() }
func (self *MockTransport) FailStop(err error)    { self.mu.Lock(); self.failStop = err; self.mu.Unlock() }

func (self *MockTransport) String() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return fmt.Sprintf("mock can profile=%s running=%t sent=%d inbox=%d",
		self.profile.String(), self.running, len(self.sent), len(self.inbox))
}
