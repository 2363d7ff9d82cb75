package state

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/sysclock"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/bsi"
	tele_api "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/api"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/helpers"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state/persist"
	"github.com/temoto/alive/v2"
)

type Global struct {
	Alive     *alive.Alive
	Config    *Config
	Emulator  *bsi.Emulator
	Log       *log2.Log
	Store     persist.Store
	Tele      tele_api.Teler
	Transport can.Transport
	// nil means host monotonic clock
	Ticker bsi.Ticker
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log, teler tele_api.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)

	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
// Transport must be set before Init.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if g.Transport == nil {
		return errors.Errorf("code error Global.Init() Transport=nil")
	}

	if g.Config.Persist.Root == "" {
		g.Config.Persist.Root = DefaultPersistRoot
		g.Log.Errorf("config: persist.root=empty changed=%s", g.Config.Persist.Root)
	}
	g.Log.Debugf("config: persist.root=%s backend=%s", g.Config.Persist.Root, g.Config.PersistBackend())

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	if g.Config.Tele.PersistPath == "" {
		g.Config.Tele.PersistPath = filepath.Join(g.Config.Persist.Root, "tele")
	}
	if err := g.Tele.Init(ctx, g.Log, g.Config.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}

	ec, err := g.Config.EmulatorConfig()
	if err != nil {
		return errors.Annotate(err, "emulator config")
	}

	if g.Store == nil {
		g.Store, err = persist.Open(g.Config.PersistBackend(), g.Config.Persist.Root, g.Log)
		if err != nil {
			return errors.Annotate(err, "persist open")
		}
	}
	if g.Ticker == nil {
		g.Ticker = sysclock.Monotonic{}
	}

	emuLog := g.Log.Clone(log2.LInfo)
	if g.Config.LogDebug || g.Config.Bus.LogDebug {
		emuLog.SetLevel(log2.LDebug)
	}
	emuLog.SetPrefix("bsi: ")
	g.Emulator = bsi.NewEmulator(ec, g.Transport, g.Store, g.Ticker, emuLog)
	if g.Config.Clock.SetSystem {
		g.Emulator.SetWallSetter(&sysclock.Wall{Log: g.Log})
	}

	// persistence problems are not fatal, emulator runs on defaults
	if err := g.Emulator.Load(); err != nil {
		g.Error(err, "emulator load")
		g.Tele.State(tele_api.StateProblem)
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

// StartBus brings transport up with configured profile, retrying until success or Alive stop.
func (g *Global) StartBus(ctx context.Context) error {
	profile, err := g.Config.BusProfile("")
	if err != nil {
		return errors.Trace(err)
	}
	backoff := helpers.Backoff{Min: 100 * time.Millisecond, Max: 10 * time.Second, K: 2}
	for {
		err = g.Emulator.StartBus(ctx, profile)
		if err == nil {
			g.Log.Infof("bus running profile=%s", profile.String())
			g.Tele.State(tele_api.StateNominal)
			return nil
		}
		g.Error(err, "bus start profile=%s", profile.String())
		g.Tele.State(tele_api.StateProblem)
		select {
		case <-time.After(backoff.DelayAfter(false)):
		case <-g.Alive.StopChan():
			return errors.Annotate(err, "bus start interrupted")
		}
	}
}

// Shutdown stops bus and releases persistence. Safe to call once after Alive stop.
func (g *Global) Shutdown(ctx context.Context) error {
	errs := make([]error, 0, 3)
	if g.Emulator != nil {
		if err := g.Emulator.StopBus(ctx); err != nil {
			errs = append(errs, errors.Annotate(err, "bus stop"))
		}
	}
	if g.Transport != nil {
		if err := g.Transport.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "transport close"))
		}
	}
	if g.Store != nil {
		if err := g.Store.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "persist close"))
		}
	}
	g.Tele.Close()
	return helpers.FoldErrors(errs)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf(errors.ErrorStack(err))
		g.Tele.Error(err)
	}
}
