package tele

import (
	tele_api "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/api"
	"go.uber.org/atomic"
)

// Low priority telemetry counters. Can be updated at any time.
// Sent together with next telemetry message and reset.
type Stat struct {
	CommandReceived atomic.Uint32
	CommandInvalid  atomic.Uint32
	CommandFailed   atomic.Uint32
	SendRetry       atomic.Uint32
}

func (self *Stat) take() tele_api.Stat {
	return tele_api.Stat{
		CommandReceived: self.CommandReceived.Swap(0),
		CommandInvalid:  self.CommandInvalid.Swap(0),
		CommandFailed:   self.CommandFailed.Swap(0),
		SendRetry:       self.SendRetry.Swap(0),
	}
}
