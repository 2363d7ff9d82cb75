package tele

import (
	"context"

	"github.com/juju/errors"
	tele_api "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/api"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state"
)

const logMsgDisabled = "disabled"

func (self *Tele) State(s tele_api.State) {
	if !self.enabled {
		self.log.Debugf("%s state=%s", logMsgDisabled, s)
		return
	}

	self.log.Infof("State s=%s", s)
	self.state.Store(uint32(s))
	select {
	case self.stateSignal <- struct{}{}:
	default:
	}
}

func (self *Tele) Error(e error) {
	if !self.enabled {
		self.log.Debugf("%s error=%v", logMsgDisabled, e)
		return
	}

	self.log.Errorf("Error e=%v", e)
	tmerr := tele_api.TelemetryError{
		Message: e.Error(),
	}
	if err := self.qpushTelemetry(&tele_api.Telemetry{Error: &tmerr}); err != nil {
		self.log.Errorf("CRITICAL qpushTelemetry telemetry_error=%#v err=%v", tmerr, err)
	}
}

func (self *Tele) CommandReplyErr(c *tele_api.Command, e error) {
	if !self.enabled {
		self.log.Errorf(logMsgDisabled)
		return
	}
	errText := ""
	if e != nil {
		errText = e.Error()
	}
	r := tele_api.Response{
		CommandId: c.Id,
		Error:     errText,
	}
	err := self.qpushCommandResponse(c, r)
	if err != nil {
		self.log.Errorf("CRITICAL command=%#v response=%#v err=%v", c, r, err)
	}
}

// Report queues emulator snapshot telemetry.
func (self *Tele) Report(ctx context.Context) error {
	if !self.enabled {
		return nil
	}
	g := state.GetGlobal(ctx)
	if g.Emulator == nil {
		return errors.Errorf("tele report: emulator is not initialized")
	}
	r := g.Emulator.Snapshot()
	return errors.Annotate(self.qpushTelemetry(&tele_api.Telemetry{Report: &r}), "tele report")
}
