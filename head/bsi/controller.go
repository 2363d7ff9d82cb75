package bsi

import (
	"context"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/helpers"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/looplab/fsm"
)

const (
	BusStopped = "stopped"
	BusRunning = "running"

	eventStart = "start"
	eventStop  = "stop"
)

// BusController owns transport lifecycle: stopped <-> running(profile).
// Not safe for concurrent use, Emulator serializes access.
type BusController struct {
	log     *log2.Log
	tr      can.Transport
	fsm     *fsm.FSM
	profile can.Profile

	// result of transport I/O inside fsm callbacks
	startErr    error
	teardownErr error
}

func NewBusController(tr can.Transport, log *log2.Log) *BusController {
	self := &BusController{log: log, tr: tr}
	self.fsm = fsm.NewFSM(
		BusStopped,
		fsm.Events{
			{Name: eventStart, Src: []string{BusStopped}, Dst: BusRunning},
			{Name: eventStop, Src: []string{BusRunning}, Dst: BusStopped},
		},
		fsm.Callbacks{
			"before_" + eventStart: self.onBeforeStart,
			"before_" + eventStop:  self.onBeforeStop,
			"enter_state":          self.onEnterState,
		},
	)
	return self
}

func (self *BusController) State() string { return self.fsm.Current() }

// Running returns active profile, ok=false when stopped.
func (self *BusController) Running() (can.Profile, bool) {
	if self.fsm.Is(BusRunning) {
		return self.profile, true
	}
	return can.Profile{}, false
}

func (self *BusController) Start(ctx context.Context, p can.Profile) error {
	self.startErr = nil
	if err := self.fsm.Event(ctx, eventStart, p); err != nil {
		if self.startErr != nil {
			return self.startErr
		}
		return errors.Annotatef(err, "bus start profile=%s", p.String())
	}
	return nil
}

// Stop tears transport down. Transport reporting already stopped is not an error.
// State is stopped after return even if teardown failed.
func (self *BusController) Stop(ctx context.Context) error {
	if !self.fsm.Is(BusRunning) {
		return nil
	}
	self.teardownErr = nil
	if err := self.fsm.Event(ctx, eventStop); err != nil {
		return errors.Annotate(err, "bus stop")
	}
	return self.teardownErr
}

// Reconfigure switches transport to profile p.
// No-op when already running p. Otherwise teardown, onTeardown (cache reset), start.
// restarted=true when transport was (re)started.
func (self *BusController) Reconfigure(ctx context.Context, p can.Profile, onTeardown func()) (bool, error) {
	if current, ok := self.Running(); ok && current == p {
		self.log.Debugf("bus reconfigure profile=%s already running", p.String())
		return false, nil
	}
	errs := make([]error, 0, 2)
	if err := self.Stop(ctx); err != nil {
		self.log.Errorf("bus reconfigure teardown err=%v", err)
		errs = append(errs, err)
	}
	if onTeardown != nil {
		onTeardown()
	}
	if err := self.Start(ctx, p); err != nil {
		errs = append(errs, err)
	}
	_, ok := self.Running()
	return ok, helpers.FoldErrors(errs)
}

func (self *BusController) onBeforeStart(ctx context.Context, e *fsm.Event) {
	p := e.Args[0].(can.Profile)
	if err := self.tr.Install(p); err != nil {
		self.startErr = errors.Annotatef(err, "bus install profile=%s", p.String())
		e.Cancel(self.startErr)
		return
	}
	if err := self.tr.Start(); err != nil {
		if uerr := self.tr.Uninstall(); uerr != nil {
			self.log.Errorf("bus start rollback uninstall err=%v", uerr)
		}
		self.startErr = errors.Annotatef(err, "bus start profile=%s", p.String())
		e.Cancel(self.startErr)
		return
	}
	self.profile = p
}

func (self *BusController) onBeforeStop(ctx context.Context, e *fsm.Event) {
	errs := make([]error, 0, 2)
	if err := self.tr.Stop(); err != nil && !can.IsAlreadyStopped(err) {
		errs = append(errs, errors.Annotate(err, "bus stop"))
	}
	if err := self.tr.Uninstall(); err != nil {
		errs = append(errs, errors.Annotate(err, "bus uninstall"))
	}
	self.teardownErr = helpers.FoldErrors(errs)
	self.profile = can.Profile{}
}

func (self *BusController) onEnterState(ctx context.Context, e *fsm.Event) {
	self.log.Debugf("bus %s -> %s", e.Src, e.Dst)
}
