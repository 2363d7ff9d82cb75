package state

import (
	"context"
	"testing"

	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	tele_api "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/api"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state/persist"
)

// NewTestContext builds initialized Global on mock bus and in-memory store.
// Transport is *can.MockTransport.
func NewTestContext(t testing.TB, confString string, teler tele_api.Teler) (context.Context, *Global) {
	fs := NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	log := log2.NewTest(t, log2.LDebug)
	// log := log2.NewStderr(log2.LDebug) // useful with panics
	log.SetFlags(log2.LTestFlags)
	if teler == nil {
		teler = tele_api.NewStub()
	}
	ctx, g := NewContext(log, teler)
	g.Transport = can.NewMockTransport(t)
	g.Store = persist.NewMemory()
	g.MustInit(ctx, MustReadConfig(log, fs, "test-inline"))

	return ctx, g
}

func MockTransport(g *Global) *can.MockTransport { return g.Transport.(*can.MockTransport) }
