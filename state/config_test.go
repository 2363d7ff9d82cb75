package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/bsi"
	tele_api "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/api"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, context.Context)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, ctx context.Context) {
			g := GetGlobal(ctx)
			ec, err := g.Config.EmulatorConfig()
			require.NoError(t, err)
			assert.Equal(t, bsi.DefaultConfig(), ec)
			p, err := g.Config.BusProfile("")
			require.NoError(t, err)
			assert.Equal(t, can.Profile{Name: "125k", Bitrate: 125000}, p)
			assert.Equal(t, "can0", g.Config.BusInterface())
			assert.Equal(t, persist.BackendExtremofile, g.Config.PersistBackend())
			assert.Equal(t, 5*time.Millisecond, g.Config.PollInterval())
			assert.Equal(t, "8040000000000000", g.Emulator.CurrentSettings().Frame)
		}, ""},

		{"full", `
bus { interface = "vcan0" profile = "slow" send_timeout_ms = 50 poll_ms = 2 }
profile "slow" { bitrate = 50000 }
ids { settings_write = 0x15c settings_broadcast = 0x261 time_write = 0x39c time_broadcast = 0x277 }
broadcast { settings_ms = 250 time_ms = 2000 }
settings { baseline = "80 00 12 34 00 00 00 01" language = 3 celsius = false h24 = false }
clock { set_system = false }
persist { backend = "memory" }
`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				ec, err := g.Config.EmulatorConfig()
				require.NoError(t, err)
				assert.Equal(t, bsi.IDs{SettingsWrite: 0x15c, SettingsBroadcast: 0x261, TimeWrite: 0x39c, TimeBroadcast: 0x277}, ec.IDs)
				assert.Equal(t, 250*time.Millisecond, ec.SettingsPeriod)
				assert.Equal(t, 2*time.Second, ec.TimePeriod)
				assert.Equal(t, 50*time.Millisecond, ec.SendTimeout)
				assert.Equal(t, uint8(3), ec.Defaults.Language)
				assert.False(t, ec.Defaults.Celsius)
				assert.False(t, ec.Defaults.Hour24)
				assert.Equal(t, 2*time.Millisecond, g.Config.PollInterval())
				p, err := g.Config.BusProfile("")
				require.NoError(t, err)
				assert.Equal(t, can.Profile{Name: "slow", Bitrate: 50000}, p)
				// language 3, fahrenheit, tail from baseline
				assert.Equal(t, "8c00123400000001", g.Emulator.CurrentSettings().Frame)
				assert.Equal(t, []string{"125k", "250k", "500k", "slow"}, g.Config.ProfileNames())
			},
			"",
		},

		{"profile-override-builtin", `profile "125k" { bitrate = 125001 }`,
			func(t testing.TB, ctx context.Context) {
				p, err := GetGlobal(ctx).Config.BusProfile("125k")
				require.NoError(t, err)
				assert.Equal(t, 125001, p.Bitrate)
			}, ""},

		{"include-normalize", `
broadcast { time_ms = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "language-7" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 7, g.Config.Settings.Language)
			}, ""},

		{"include-overwrites", `
settings { language = 1 }
include "language-7" {}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 7, g.Config.Settings.Language)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-profile-unknown", `bus { profile = "1m" }`, nil, "bus profile=1m not found"},
		{"error-profile-bitrate", `profile "bad" { bitrate = 0 }`, nil, "profile=bad bitrate=0 not valid"},
		{"error-driver", `bus { driver = "slcan" }`, nil, "bus.driver=slcan not supported"},
		{"error-id-range", `ids { time_broadcast = 0x800 }`, nil, "ids.time_broadcast=0x800 not valid"},
		{"error-baseline-length", `settings { baseline = "8000" }`, nil, "length=2 expected=8"},
		{"error-baseline-hex", `settings { baseline = "zz00000000000000" }`, nil, "config: settings.baseline"},
		{"error-language", `settings { language = 32 }`, nil, "settings.language=32 not valid"},
		{"error-persist-backend", `persist { backend = "sqlite" }`, nil, "persist.backend=sqlite not supported"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			// log := log2.NewStderr(log2.LDebug) // helps with panics
			log := log2.NewTest(t, log2.LDebug)

			ctx, g := NewContext(log, tele_api.NewStub())
			g.Transport = can.NewMockTransport(t)
			g.Store = persist.NewMemory()

			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"language-7":   "settings{language=7}",
				"error-syntax": "hello",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if err == nil {
				err = g.Init(ctx, cfg)
			}
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, ctx)
				}
			} else {
				if err == nil || !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestGlobalLoadsPersisted(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	store := persist.NewMemory()
	s := bsi.Settings{Language: 9, Celsius: true, Hour24: true, Frame: bsi.SettingsFrame{0xa4, 0x40, 0xde, 0xad}}
	b, err := s.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, store.Save(bsi.KeySettings, b))

	ctx, g := NewContext(log, tele_api.NewStub())
	g.Transport = can.NewMockTransport(t)
	g.Store = store
	g.MustInit(ctx, MustReadConfig(log, NewMockFullReader(map[string]string{"c": ""}), "c"))
	assert.Equal(t, "a440dead00000000", g.Emulator.CurrentSettings().Frame)

	require.NoError(t, g.StartBus(ctx))
	p, ok := g.Emulator.Profile()
	assert.True(t, ok)
	assert.Equal(t, "125k", p.Name)
	require.NoError(t, g.Shutdown(ctx))
	_, ok = g.Emulator.Profile()
	assert.False(t, ok)
}

func TestStartBusRetry(t *testing.T) {
	t.Parallel()
	ctx, g := NewTestContext(t, "", nil)
	m := MockTransport(g)
	m.FailInstall(errors.New("no such device"))
	require.NoError(t, g.StartBus(ctx))
	assert.Equal(t, []string{"install:125k", "install:125k", "start"}, m.TakeCalls())

	// stopped Alive interrupts retry loop
	ctx2, g2 := NewTestContext(t, "", nil)
	m2 := MockTransport(g2)
	m2.FailInstall(errors.New("no such device"))
	g2.Alive.Stop()
	err := g2.StartBus(ctx2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interrupted")
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../bsiemu.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../bsiemu.hcl")
	_, err := c.EmulatorConfig()
	assert.NoError(t, err)
}
