// Package tele is remote monitoring and control of the emulator over MQTT.
package tele

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	tele_api "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/api"
	tele_config "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/config"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/helpers"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/temoto/spq"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/atomic"
)

const (
	defaultStateInterval  = 5 * time.Minute
	DefaultNetworkTimeout = 30 * time.Second
)

// CommandCallback returns true when message is consumed and may be acknowledged.
type CommandCallback func([]byte) bool

type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback, willPayload []byte) error
	Close()
	SendState(payload []byte) bool
	SendTelemetry(payload []byte) bool
	SendCommandResponse(topicSuffix string, payload []byte) bool
}

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - State/Error/Report public API calls block at most for disk write
//   network may be slow or absent, messages will be delivered in background
// - Telemetry/Response messages delivered at least once
// - State messages may be lost, latest state wins
type Tele struct { //nolint:maligned
	enabled       bool
	log           *log2.Log
	transport     Transporter
	q             *spq.Queue
	state         atomic.Uint32
	stateSignal   chan struct{}
	stopCh        chan struct{}
	workers       sync.WaitGroup
	deviceId      int32
	buildVersion  string
	stateInterval time.Duration
	retry         helpers.Backoff
	stat          Stat
}

var _ tele_api.Teler = &Tele{}

func New() *Tele { return &Tele{} }

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.enabled = teleConfig.Enabled
	self.log = log.Clone(log2.LInfo)
	self.log.SetPrefix("tele: ")
	if teleConfig.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.enabled {
		return nil
	}

	self.stopCh = make(chan struct{})
	self.stateSignal = make(chan struct{}, 1)
	self.deviceId = int32(teleConfig.DeviceId)
	self.buildVersion = teleConfig.BuildVersion
	self.stateInterval = helpers.IntSecondDefault(teleConfig.StateIntervalSec, defaultStateInterval)
	if self.retry.Min == 0 {
		self.retry = helpers.Backoff{Min: 1 * time.Second, Max: 2 * time.Minute, K: 2}
	}

	if teleConfig.PersistPath == "" {
		panic("code error must set teleConfig.PersistPath")
	}
	var err error
	self.q, err = spq.Open(teleConfig.PersistPath)
	if err != nil {
		return errors.Annotate(err, "tele queue")
	}

	willPayload := []byte{byte(tele_api.StateDisconnected)}
	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	onCommand := func(payload []byte) bool { return self.onCommandMessage(ctx, payload) }
	if err := self.transport.Init(ctx, self.log, teleConfig, onCommand, willPayload); err != nil {
		self.q.Close()
		return errors.Annotate(err, "tele transport")
	}

	self.workers.Add(2)
	go self.qworker()
	go self.stateWorker(ctx)
	self.State(tele_api.StateBoot)
	return nil
}

// Close stops workers. Undelivered messages stay in persistent queue for next run.
func (self *Tele) Close() {
	if !self.enabled {
		return
	}
	close(self.stopCh)
	self.q.Close()
	self.workers.Wait()
	self.transport.Close()
}

func (self *Tele) stateWorker(ctx context.Context) {
	defer self.workers.Done()
	const retryInterval = 17 * time.Second
	var b [1]byte
	var sent bool
	tmrRegular := time.NewTicker(self.stateInterval)
	defer tmrRegular.Stop()
	tmrRetry := time.NewTicker(retryInterval)
	defer tmrRetry.Stop()
	for {
		select {
		case <-self.stateSignal:
			if next := byte(self.state.Load()); next != b[0] {
				b[0] = next
				sent = self.transport.SendState(b[:])
			}

		case <-tmrRegular.C:
			sent = self.transport.SendState(b[:])
			if err := self.Report(ctx); err != nil {
				self.log.Errorf("periodic report err=%v", err)
			}

		case <-tmrRetry.C:
			if !sent {
				sent = self.transport.SendState(b[:])
			}

		case <-self.stopCh:
			return
		}
	}
}

// denote value type in persistent queue bytes form
const (
	qCommandResponse byte = 1
	qTelemetry       byte = 2
)

// queued response keeps reply topic, wire form does not
type queuedResponse struct {
	Topic    string            `msgpack:"topic"`
	Response tele_api.Response `msgpack:"response"`
}

func (self *Tele) qworker() {
	defer self.workers.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			var del bool
			del, err = self.qhandle(b)
			if err != nil {
				self.log.Errorf("qhandle b=%x err=%v", b, err)
			}
			if del {
				self.retry.Reset()
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("qhandle Delete b=%x err=%v", b, err)
				}
				continue
			}
			self.stat.SendRetry.Inc()
			if err = self.q.DeletePush(box); err != nil {
				self.log.Errorf("qhandle DeletePush b=%x err=%v", b, err)
			}
			select {
			case <-time.After(self.retry.DelayAfter(false)):
			case <-self.stopCh:
				return
			}

		case spq.ErrClosed:
			select {
			case <-self.stopCh: // success path
			default:
				self.log.Errorf("CRITICAL spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL spq err=%v", err)
			// disk full or corruption, do not spin
			select {
			case <-time.After(self.retry.DelayAfter(false)):
			case <-self.stopCh:
				return
			}
		}
	}
}

func (self *Tele) qhandle(b []byte) (bool, error) {
	if len(b) == 0 {
		self.log.Errorf("spq peek=empty")
		// what else can we do?
		return true, nil
	}

	switch b[0] {
	case qCommandResponse:
		var r queuedResponse
		if err := msgpack.Unmarshal(b[1:], &r); err != nil {
			return true, errors.Annotate(err, "response unmarshal")
		}
		return self.qsendResponse(&r), nil

	case qTelemetry:
		// forwarded as is, tag byte stripped
		return self.transport.SendTelemetry(b[1:]), nil

	default:
		err := errors.Errorf("unknown kind=%d", b[0])
		return true, err
	}
}

func (self *Tele) qpushCommandResponse(c *tele_api.Command, r tele_api.Response) error {
	if c.ReplyTopic == "" {
		err := errors.Errorf("command with reply_topic=empty")
		self.Error(err)
		return err
	}
	return self.qpushTagMsgpack(qCommandResponse, &queuedResponse{Topic: c.ReplyTopic, Response: r})
}

func (self *Tele) qpushTelemetry(tm *tele_api.Telemetry) error {
	if tm.DeviceId == 0 {
		tm.DeviceId = self.deviceId
	}
	if tm.Time == 0 {
		tm.Time = time.Now().Unix()
	}
	tm.BuildVersion = self.buildVersion
	tm.Stat = self.stat.take()
	return self.qpushTagMsgpack(qTelemetry, tm)
}

func (self *Tele) qpushTagMsgpack(tag byte, v interface{}) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return errors.Annotate(err, "msgpack marshal")
	}
	buf := make([]byte, 0, 1+len(b))
	buf = append(buf, tag)
	buf = append(buf, b...)
	return self.q.Push(buf)
}

func (self *Tele) qsendResponse(r *queuedResponse) bool {
	payload, err := msgpack.Marshal(&r.Response)
	if err != nil {
		self.log.Errorf("CRITICAL response Marshal r=%#v err=%v", r, err)
		return true // retry will not help
	}
	return self.transport.SendCommandResponse(r.Topic, payload)
}
