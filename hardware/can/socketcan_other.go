//go:build !linux
// +build !linux

package can

import (
	"time"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

// SocketCAN is only available on Linux.
type SocketCAN struct {
	Interface  string
	SetBitrate bool
	Log        *log2.Log
}

func NewSocketCAN(iface string, setBitrate bool, log *log2.Log) *SocketCAN {
	return &SocketCAN{Interface: iface, SetBitrate: setBitrate, Log: log}
}

func (self *SocketCAN) Install(Profile) error           { return errors.NotSupportedf("socketcan") }
func (self *SocketCAN) Start() error                    { return errors.NotSupportedf("socketcan") }
func (self *SocketCAN) Stop() error                     { return ErrAlreadyStopped }
func (self *SocketCAN) Uninstall() error                { return nil }
func (self *SocketCAN) Send(Frame, time.Duration) error { return ErrNotRunning }
func (self *SocketCAN) Receive() (Frame, bool, error)   { return Frame{}, false, ErrNotRunning }
func (self *SocketCAN) Close() error                    { return nil }
