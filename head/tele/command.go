package tele

import (
	"context"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/bsi"
	tele_api "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/api"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state"
	"github.com/vmihailenco/msgpack/v5"
)

func (self *Tele) onCommandMessage(ctx context.Context, payload []byte) bool {
	self.stat.CommandReceived.Inc()
	cmd := new(tele_api.Command)
	err := msgpack.Unmarshal(payload, cmd)
	if err != nil {
		self.stat.CommandInvalid.Inc()
		self.log.Errorf("command parse raw=%x err=%v", payload, err)
		// redelivery will not fix it
		return true
	}
	self.log.Debugf("command raw=%x id=%d task=%s", payload, cmd.Id, cmd.Task)
	self.dispatchCommand(ctx, cmd)
	return true
}

func (self *Tele) dispatchCommand(ctx context.Context, cmd *tele_api.Command) {
	g := state.GetGlobal(ctx)
	err := self.execCommand(ctx, g, cmd)
	if err != nil {
		self.stat.CommandFailed.Inc()
		self.log.Errorf("command id=%d task=%s err=%v", cmd.Id, cmd.Task, err)
	}
	self.CommandReplyErr(cmd, err)
}

func (self *Tele) execCommand(ctx context.Context, g *state.Global, cmd *tele_api.Command) error {
	e := g.Emulator
	if e == nil {
		return errors.Errorf("emulator is not initialized")
	}

	switch cmd.Task {
	case tele_api.TaskReport:
		return errors.Annotate(self.Report(ctx), "cmdReport")

	case tele_api.TaskRebroadcast:
		kind, err := bsi.ParseKind(cmd.Kind)
		if err != nil {
			return err
		}
		return e.ForceRebroadcast(kind)

	case tele_api.TaskSetLanguage:
		return e.SetLanguage(cmd.Language)

	case tele_api.TaskSetUnits:
		e.SetUnits(cmd.Celsius)
		return nil

	case tele_api.TaskSetHour24:
		e.SetHour24(cmd.Hour24)
		return nil

	case tele_api.TaskSetTime:
		// 12/24h flag is separate command
		return e.SetTimeKeepFormat(cmd.Epoch)

	case tele_api.TaskReconfigure:
		profile, err := g.Config.BusProfile(cmd.Profile)
		if err != nil {
			return err
		}
		return e.ReconfigureBus(ctx, profile)

	default:
		return errors.NotSupportedf("command task=%q", cmd.Task)
	}
}
