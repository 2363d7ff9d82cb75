package tele_api

import (
	"context"

	tele_config "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/config"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

// Noop is Teler for disabled telemetry that still logs what would be sent.
type Noop struct{ log *log2.Log }

var _ Teler = &Noop{} // compile-time interface test

func (self *Noop) Init(_ context.Context, log *log2.Log, _ tele_config.Config) error {
	self.log = log
	return nil
}

func (self *Noop) Error(e error) { self.log.Debugf("tele disabled, error=%v", e) }

func (self *Noop) State(s State) { self.log.Debugf("tele disabled, state=%s", s) }

func (*Noop) Report(context.Context) error { return nil }

func (*Noop) Close() {}
