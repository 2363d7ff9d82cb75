// Interactive bus console: inspect emulator state, poke settings, send raw frames.
package cli

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/cmd/bsiemu/subcmd"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/bsi"
	tele_api "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/api"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/helpers/cli"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state"
)

const modName = "cli"

const usage = `syntax: commands separated by whitespace
(bus)
- start[=PROFILE]   install and start transport
- stop              stop transport
- poll              drain inbound frames, send due broadcasts
- @ID#HEX           transmit raw frame, e.g. @39b#98030f0e1e
- bc=settings|time  rebroadcast now

(emulator)
- state             show snapshot
- lang=N            display language 0..31
- units=c|f
- h24=yes|no
- time=EPOCH|now    set clock

(meta)
- sN                pause N milliseconds
- log=yes|no        console debug logging
- loop=N            repeat N times all commands on this line
`

var Mod = subcmd.Mod{Name: modName, Usage: "interactive bus console", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	// console must not report its experiments as device telemetry
	g.Tele = &tele_api.Noop{}
	g.Transport = can.NewSocketCAN(config.BusInterface(), config.Bus.SetBitrate, g.Log)
	g.MustInit(ctx, config)
	defer func() {
		if err := g.Shutdown(ctx); err != nil {
			g.Log.Errorf("shutdown err=%v", err)
		}
	}()

	g.Log.Infof("type help for commands")
	cli.MainLoop("bsiemu", newExecutor(ctx), newCompleter(), g.Alive.StopChan())
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "start", Description: "start bus with configured profile"},
		{Text: "stop", Description: "stop bus"},
		{Text: "poll", Description: "drain inbound, send due broadcasts"},
		{Text: "state", Description: "show emulator snapshot"},
		{Text: "bc=settings", Description: "rebroadcast settings"},
		{Text: "bc=time", Description: "rebroadcast date/time"},
		{Text: "lang=", Description: "set display language"},
		{Text: "units=", Description: "c|f"},
		{Text: "h24=", Description: "yes|no"},
		{Text: "time=now", Description: "set clock from host"},
		{Text: "@", Description: "transmit raw frame ID#HEX"},
		{Text: "sN", Description: "pause for N ms"},
		{Text: "loop=N", Description: "repeat line N times"},
		{Text: "help", Description: "show usage"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context) func(string) {
	g := state.GetGlobal(ctx)
	return func(line string) {
		if err := Exec(ctx, line); err != nil {
			g.Log.Errorf(errors.ErrorStack(err))
		}
	}
}

// Action is one parsed console command.
type Action struct {
	Name string
	F    func(context.Context) error
}

// Exec parses and runs one console line. First failing action stops the line.
func Exec(ctx context.Context, line string) error {
	actions, loopn, err := ParseLine(line)
	if err != nil {
		return err
	}
	if loopn == 0 {
		loopn = 1
	}
	for i := uint(0); i < loopn; i++ {
		for _, a := range actions {
			if err := a.F(ctx); err != nil {
				return errors.Annotate(err, a.Name)
			}
		}
	}
	return nil
}

func ParseLine(line string) ([]Action, uint, error) {
	words := strings.Fields(line)
	loopn := uint(0)
	actions := make([]Action, 0, len(words))
	for _, word := range words {
		if strings.HasPrefix(word, "loop=") {
			if loopn != 0 {
				return nil, 0, errors.Errorf("multiple loop commands, expected at most one")
			}
			i, err := strconv.ParseUint(word[5:], 10, 32)
			if err != nil || i == 0 {
				return nil, 0, errors.NotValidf("word=%s", word)
			}
			loopn = uint(i)
			continue
		}
		a, err := parseCommand(word)
		if err != nil {
			return nil, 0, err
		}
		actions = append(actions, a)
	}
	return actions, loopn, nil
}

func parseCommand(word string) (Action, error) {
	key, value := word, ""
	if i := strings.IndexByte(word, '='); i >= 0 {
		key, value = word[:i], word[i+1:]
	}
	a := Action{Name: word}

	switch {
	case word == "help":
		a.F = func(ctx context.Context) error {
			state.GetGlobal(ctx).Log.Infof(usage)
			return nil
		}

	case key == "start":
		a.F = func(ctx context.Context) error {
			g := state.GetGlobal(ctx)
			p, err := g.Config.BusProfile(value)
			if err != nil {
				return err
			}
			if _, running := g.Emulator.Profile(); running {
				return g.Emulator.ReconfigureBus(ctx, p)
			}
			return g.Emulator.StartBus(ctx, p)
		}

	case word == "stop":
		a.F = func(ctx context.Context) error { return state.GetGlobal(ctx).Emulator.StopBus(ctx) }

	case word == "poll":
		a.F = func(ctx context.Context) error {
			g := state.GetGlobal(ctx)
			if err := g.Emulator.Poll(); err != nil {
				return err
			}
			return g.Emulator.Tick()
		}

	case word == "state":
		a.F = func(ctx context.Context) error {
			g := state.GetGlobal(ctx)
			b, err := json.MarshalIndent(g.Emulator.Snapshot(), "", "  ")
			if err != nil {
				return errors.Trace(err)
			}
			g.Log.Infof("%s", b)
			return nil
		}

	case strings.HasPrefix(word, "@"):
		f, err := can.ParseFrame(word[1:])
		if err != nil {
			return a, err
		}
		a.F = func(ctx context.Context) error {
			g := state.GetGlobal(ctx)
			if _, running := g.Emulator.Profile(); !running {
				return can.ErrNotRunning
			}
			ec, err := g.Config.EmulatorConfig()
			if err != nil {
				return err
			}
			if err := g.Transport.Send(f, ec.SendTimeout); err != nil {
				return err
			}
			g.Log.Infof("> %s", f.String())
			return nil
		}

	case key == "bc":
		k, err := bsi.ParseKind(value)
		if err != nil {
			return a, err
		}
		a.F = func(ctx context.Context) error { return state.GetGlobal(ctx).Emulator.ForceRebroadcast(k) }

	case key == "lang":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return a, errors.NotValidf("word=%s", word)
		}
		a.F = func(ctx context.Context) error { return state.GetGlobal(ctx).Emulator.SetLanguage(uint8(n)) }

	case key == "units":
		var celsius bool
		switch value {
		case "c":
			celsius = true
		case "f":
		default:
			return a, errors.NotValidf("word=%s expected units=c|f", word)
		}
		a.F = func(ctx context.Context) error {
			state.GetGlobal(ctx).Emulator.SetUnits(celsius)
			return nil
		}

	case key == "h24":
		yes, err := parseYesNo(word, value)
		if err != nil {
			return a, err
		}
		a.F = func(ctx context.Context) error {
			state.GetGlobal(ctx).Emulator.SetHour24(yes)
			return nil
		}

	case key == "time":
		var epoch int64
		if value != "now" {
			var err error
			if epoch, err = strconv.ParseInt(value, 10, 64); err != nil {
				return a, errors.NotValidf("word=%s", word)
			}
		}
		a.F = func(ctx context.Context) error {
			e := state.GetGlobal(ctx).Emulator
			t := epoch
			if t == 0 {
				// naive local calendar time as seen by car display
				_, offset := time.Now().Zone()
				t = time.Now().Unix() + int64(offset)
			}
			return e.SetTimeKeepFormat(t)
		}

	case key == "log":
		yes, err := parseYesNo(word, value)
		if err != nil {
			return a, err
		}
		a.F = func(ctx context.Context) error {
			g := state.GetGlobal(ctx)
			if yes {
				g.Log.SetLevel(log2.LDebug)
			} else {
				g.Log.SetLevel(log2.LInfo)
			}
			return nil
		}

	case len(word) > 1 && word[0] == 's':
		ms, err := strconv.ParseUint(word[1:], 10, 32)
		if err != nil {
			return a, errors.NotValidf("word=%s", word)
		}
		a.F = func(ctx context.Context) error {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return nil
		}

	default:
		return a, errors.NotSupportedf("word=%s", word)
	}
	return a, nil
}

func parseYesNo(word, value string) (bool, error) {
	switch value {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, errors.NotValidf("word=%s expected yes|no", word)
}
