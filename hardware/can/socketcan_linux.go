package can

import (
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"golang.org/x/sys/unix"
)

// SocketCAN transport. Bitrate is programmed with iproute2 when SetBitrate=true,
// otherwise interface is expected to be configured by system (e.g. systemd-networkd).
type SocketCAN struct {
	Interface  string
	SetBitrate bool
	Log        *log2.Log

	lk        sync.Mutex
	fd        int
	installed bool
	profile   Profile
	runIp     func(args ...string) error
}

func NewSocketCAN(iface string, setBitrate bool, log *log2.Log) *SocketCAN {
	return &SocketCAN{
		Interface:  iface,
		SetBitrate: setBitrate,
		Log:        log,
		fd:         -1,
		runIp:      runIproute,
	}
}

func runIproute(args ...string) error {
	out, err := exec.Command("ip", args...).CombinedOutput()
	if err != nil {
		return errors.Annotatef(err, "ip %v output=%s", args, string(out))
	}
	return nil
}

func (self *SocketCAN) Install(p Profile) error {
	self.lk.Lock()
	defer self.lk.Unlock()
	if self.fd >= 0 {
		return errors.Errorf("can: install %s while running", p.String())
	}
	if self.SetBitrate {
		if err := self.runIp("link", "set", self.Interface, "down"); err != nil {
			return errors.Annotate(err, "can: install")
		}
		err := self.runIp("link", "set", self.Interface, "type", "can", "bitrate", strconv.Itoa(p.Bitrate))
		if err != nil {
			return errors.Annotate(err, "can: install")
		}
	}
	self.profile = p
	self.installed = true
	self.Log.Debugf("can: %s installed profile=%s", self.Interface, p.String())
	return nil
}

func (self *SocketCAN) Start() error {
	self.lk.Lock()
	defer self.lk.Unlock()
	if !self.installed {
		return ErrNotInstalled
	}
	if self.fd >= 0 {
		return nil
	}
	if self.SetBitrate {
		if err := self.runIp("link", "set", self.Interface, "up"); err != nil {
			return errors.Annotate(err, "can: start")
		}
	}
	iface, err := net.InterfaceByName(self.Interface)
	if err != nil {
		return errors.Annotatef(err, "can: interface=%s", self.Interface)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return errors.Annotate(err, "can: socket")
	}
	if err = unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return errors.Annotatef(err, "can: bind interface=%s", self.Interface)
	}
	self.fd = fd
	self.Log.Debugf("can: %s started", self.Interface)
	return nil
}

func (self *SocketCAN) Stop() error {
	self.lk.Lock()
	defer self.lk.Unlock()
	if self.fd < 0 {
		return ErrAlreadyStopped
	}
	err := unix.Close(self.fd)
	self.fd = -1
	if err != nil {
		return errors.Annotate(err, "can: stop")
	}
	if self.SetBitrate {
		if err = self.runIp("link", "set", self.Interface, "down"); err != nil {
			return errors.Annotate(err, "can: stop")
		}
	}
	return nil
}

func (self *SocketCAN) Uninstall() error {
	self.lk.Lock()
	defer self.lk.Unlock()
	if self.fd >= 0 {
		return errors.Errorf("can: uninstall while running")
	}
	self.installed = false
	self.profile = Profile{}
	return nil
}

func (self *SocketCAN) Send(f Frame, timeout time.Duration) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return errors.Trace(err)
	}
	self.lk.Lock()
	fd := self.fd
	self.lk.Unlock()
	if fd < 0 {
		return ErrNotRunning
	}

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(pfd, int(timeout/time.Millisecond))
	switch {
	case err == unix.EINTR:
		return errors.Timeoutf("can: send frame=%s interrupted", f.String())
	case err != nil:
		return errors.Annotatef(err, "can: send frame=%s poll", f.String())
	case n == 0:
		return errors.Timeoutf("can: send frame=%s timeout=%v", f.String(), timeout)
	}
	if _, err = unix.Write(fd, b); err != nil {
		return errors.Annotatef(err, "can: send frame=%s", f.String())
	}
	return nil
}

func (self *SocketCAN) Receive() (Frame, bool, error) {
	self.lk.Lock()
	fd := self.fd
	self.lk.Unlock()
	if fd < 0 {
		return Frame{}, false, ErrNotRunning
	}

	var buf [wireLen]byte
	for {
		n, err := unix.Read(fd, buf[:])
		switch {
		case err == unix.EAGAIN || err == unix.EINTR:
			return Frame{}, false, nil
		case err != nil:
			return Frame{}, false, errors.Annotate(err, "can: receive")
		case n < wireLen:
			return Frame{}, false, errors.NotValidf("can: receive short read=%d", n)
		}
		var f Frame
		err = f.UnmarshalBinary(buf[:n])
		if errors.IsNotSupported(err) {
			self.Log.Debugf("can: receive skip %v", err)
			continue
		}
		return f, err == nil, errors.Trace(err)
	}
}

func (self *SocketCAN) Close() error {
	err := self.Stop()
	if IsAlreadyStopped(err) {
		err = nil
	}
	if uerr := self.Uninstall(); err == nil {
		err = uerr
	}
	return err
}
