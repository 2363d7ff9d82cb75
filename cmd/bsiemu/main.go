// bsiemu emulates body computer of the comfort CAN bus: broadcasts display
// settings and date/time, applies writes from head unit and diagnostic tools.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/cmd/bsiemu/cli"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/cmd/bsiemu/run"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/cmd/bsiemu/subcmd"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	cli.Mod,
}

func main() {
	log.SetFlags(log2.LInteractiveFlags)

	flagset := flag.NewFlagSet("bsiemu", flag.ExitOnError)
	flagConfig := flagset.String("config", "bsiemu.hcl", "")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: %s [-config=bsiemu.hcl] [command]\n\nCommands:\n", os.Args[0])
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %-6s %s\n", m.Name, m.Usage)
		}
		flagset.PrintDefaults()
	}
	_ = flagset.Parse(os.Args[1:])

	command := flagset.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Error(err)
		flagset.Usage()
		os.Exit(2)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	}
	log.Infof("bsiemu version=%s command=%s", BuildVersion, mod.Name)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	config.Tele.BuildVersion = BuildVersion
	log.Debugf("config=%+v", config)

	ctx, _ := state.NewContext(log, tele.New())
	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
