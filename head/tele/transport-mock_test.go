package tele

import (
	"context"
	"testing"
	"time"

	tele_config "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/config"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"go.uber.org/atomic"
)

type transportMock struct {
	t              testing.TB
	onCommand      CommandCallback
	networkTimeout time.Duration
	outBuffer      int
	outTelemetry   chan []byte
	outState       chan []byte
	outResponse    chan []byte
	// number of next SendTelemetry calls to fail
	failTelemetry atomic.Uint32
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback, willPayload []byte) error {
	self.onCommand = func(payload []byte) bool {
		self.t.Logf("mock command=%x", payload)
		return onCommand(payload)
	}
	if self.networkTimeout == 0 {
		self.networkTimeout = DefaultNetworkTimeout
	}
	self.outTelemetry = make(chan []byte, self.outBuffer)
	self.outState = make(chan []byte, self.outBuffer)
	self.outResponse = make(chan []byte, self.outBuffer)
	return nil
}

func (self *transportMock) Close() {}

func (self *transportMock) SendTelemetry(payload []byte) bool {
	for {
		n := self.failTelemetry.Load()
		if n == 0 {
			break
		}
		if self.failTelemetry.CompareAndSwap(n, n-1) {
			self.t.Logf("mock telemetry fail, left=%d", n-1)
			return false
		}
	}
	return self.deliver(self.outTelemetry, "telemetry", payload)
}

func (self *transportMock) SendState(payload []byte) bool {
	return self.deliver(self.outState, "state", payload)
}

func (self *transportMock) SendCommandResponse(topicSuffix string, payload []byte) bool {
	return self.deliver(self.outResponse, "response topic="+topicSuffix, payload)
}

func (self *transportMock) deliver(ch chan<- []byte, tag string, payload []byte) bool {
	select {
	case ch <- copyBytes(payload):
		self.t.Logf("mock delivered %s=%x", tag, payload)
	case <-time.After(self.networkTimeout):
		self.t.Logf("mock network timeout")
		return false
	}
	return true
}

// split send/receive buffer identity for safe concurrent access
func copyBytes(b []byte) []byte {
	new := make([]byte, len(b))
	copy(new, b)
	return new
}
