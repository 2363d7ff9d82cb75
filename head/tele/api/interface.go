package tele_api

import (
	"context"

	tele_config "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/config"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

// State is single byte retained on state topic.
type State uint8

const (
	StateInvalid State = iota
	StateBoot
	StateNominal
	StateProblem
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateBoot:
		return "boot"
	case StateNominal:
		return "nominal"
	case StateProblem:
		return "problem"
	case StateDisconnected:
		return "disconnected"
	}
	return "invalid"
}

type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	State(State)
	Error(error)
	Report(context.Context) error
	Close()
}

type stub struct{}

func (stub) Init(context.Context, *log2.Log, tele_config.Config) error {
	return nil
}
func (stub) State(State)                  {}
func (stub) Error(error)                  {}
func (stub) Report(context.Context) error { return nil }
func (stub) Close()                       {}

func NewStub() Teler { return stub{} }
