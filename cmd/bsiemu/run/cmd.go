// Main mode of operation: emulate node on real bus until signal.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/cmd/bsiemu/subcmd"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/web"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/helpers"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state"
)

const shutdownTimeout = 5 * time.Second

var Mod = subcmd.Mod{Name: "run", Usage: "emulate BSI on configured bus (default)", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.Transport = can.NewSocketCAN(config.BusInterface(), config.Bus.SetBitrate, g.Log)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		g.Log.Infof("signal=%v, stopping", s)
		g.Alive.Stop()
	}()

	var srv *web.Server
	if config.Web.Listen != "" {
		srv = web.NewServer(g.Emulator, config.BusProfile, g.Log)
		go func() {
			if err := srv.ListenAndServe(config.Web.Listen); err != nil {
				g.Error(err)
				g.Alive.Stop()
			}
		}()
	}

	err := g.StartBus(ctx)
	if err == nil {
		subcmd.SdNotify(daemon.SdNotifyReady)
		g.Log.Debugf("init complete, running")
		Loop(ctx, g)
	}

	subcmd.SdNotify(daemon.SdNotifyStopping)
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if errWeb := srv.Shutdown(sctx); errWeb != nil {
			g.Log.Errorf("web shutdown err=%v", errWeb)
		}
		cancel()
	}
	if errShut := g.Shutdown(ctx); errShut != nil {
		g.Log.Errorf("shutdown err=%v", errShut)
	}
	return err
}

// Loop drives emulator poll and broadcast schedule until Alive stop.
func Loop(ctx context.Context, g *state.Global) {
	tmr := time.NewTicker(g.Config.PollInterval())
	defer tmr.Stop()
	stopCh := g.Alive.StopChan()
	// repeated identical errors are logged once until success
	var lastErr string
	for {
		select {
		case <-tmr.C:
			// broadcasts go out even when receive is broken
			err := helpers.FoldErrors([]error{g.Emulator.Poll(), g.Emulator.Tick()})
			switch {
			case err == nil:
				lastErr = ""
			case err.Error() != lastErr:
				lastErr = err.Error()
				g.Error(err, "loop")
			}
		case <-stopCh:
			return
		}
	}
}
