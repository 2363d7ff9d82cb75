package tele

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	tele_config "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/config"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/helpers"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

type transportMqtt struct {
	log       *log2.Log
	onCommand CommandCallback
	m         mqtt.Client
	mopt      *mqtt.ClientOptions
	stopCh    chan struct{}
	// test code sets newClient
	newClient func(*mqtt.ClientOptions) mqtt.Client

	topicPrefix    string
	topicState     string
	topicTelemetry string
	topicCommand   string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback, willPayload []byte) error {
	self.log = log
	self.onCommand = onCommand
	self.stopCh = make(chan struct{})

	mqttLog := log.Clone(log2.LDebug)
	mqttLog.SetPrefix("tele.mqtt: ")
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	if teleConfig.MqttBroker == "" {
		return errors.NotValidf("tele: mqtt_broker=empty")
	}
	mqttClientId := fmt.Sprintf("bsi%d", teleConfig.DeviceId)
	credFun := func() (string, string) {
		return mqttClientId, teleConfig.MqttPassword
	}

	self.topicPrefix = mqttClientId // coincidence
	self.topicState = fmt.Sprintf("%s/w/1s", self.topicPrefix)
	self.topicTelemetry = fmt.Sprintf("%s/w/1t", self.topicPrefix)
	self.topicCommand = fmt.Sprintf("%s/r/c", self.topicPrefix)

	networkTimeout := helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	if networkTimeout < 1*time.Second {
		networkTimeout = 1 * time.Second
	}
	connectTimeout := networkTimeout * 3
	keepaliveTimeout := helpers.IntSecondDefault(teleConfig.KeepaliveSec, networkTimeout/2)

	defaultHandler := func(_ mqtt.Client, msg mqtt.Message) {
		self.log.Errorf("unexpected mqtt message: %v", msg)
	}

	tlsconf := new(tls.Config)
	if teleConfig.TlsCaFile != "" {
		tlsconf.RootCAs = x509.NewCertPool()
		cabytes, err := os.ReadFile(teleConfig.TlsCaFile)
		if err != nil {
			return errors.Annotate(err, "tele: tls_ca_file")
		}
		tlsconf.RootCAs.AppendCertsFromPEM(cabytes)
	}
	if teleConfig.TlsPsk != "" {
		psk, err := helpers.ParseHex(teleConfig.TlsPsk, -1)
		if err != nil {
			return errors.Annotate(err, "tele: tls_psk")
		}
		copy(tlsconf.SessionTicketKey[:], psk)
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topicState, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(mqttClientId).
		SetConnectTimeout(connectTimeout).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(defaultHandler).
		SetKeepAlive(keepaliveTimeout).
		SetMaxReconnectInterval(connectTimeout).
		SetMessageChannelDepth(1).
		SetOrderMatters(false).
		SetPingTimeout(networkTimeout).
		SetTLSConfig(tlsconf).
		SetWriteTimeout(networkTimeout)
	if self.newClient == nil {
		self.newClient = mqtt.NewClient
	}
	self.m = self.newClient(self.mopt)

	go self.online()
	return nil
}

func (self *transportMqtt) Close() {
	close(self.stopCh)
	self.m.Disconnect(uint(self.mopt.PingTimeout / time.Millisecond))
}

func (self *transportMqtt) SendState(payload []byte) bool {
	self.log.Debugf("transport sendstate payload=%x", payload)
	t := self.m.Publish(self.topicState, 1, true, payload)
	err := self.tokenWait(t, "publish state")
	return err == nil
}

func (self *transportMqtt) SendTelemetry(payload []byte) bool {
	t := self.m.Publish(self.topicTelemetry, 1, false, payload)
	err := self.tokenWait(t, "publish telemetry")
	return err == nil
}

func (self *transportMqtt) SendCommandResponse(topicSuffix string, payload []byte) bool {
	topic := fmt.Sprintf("%s/%s", self.topicPrefix, topicSuffix)
	t := self.m.Publish(topic, 1, false, payload)
	err := self.tokenWait(t, "publish command response")
	return err == nil
}

func (self *transportMqtt) online() {
	if self.m.IsConnected() {
		return
	}

	for self.isRunning() {
		self.log.Debugf("connect before")
		t := self.m.Connect()
		if self.tokenWait(t, "connect") == nil {
			break // success path
		}
		self.log.Debugf("connect after")
		self.sleep(1 * time.Second)
	}

	for self.isRunning() {
		self.log.Debugf("sub-command before")
		t := self.m.Subscribe(self.topicCommand, 1, self.mqttSubCommand)
		if self.tokenWait(t, "subscribe:"+self.topicCommand) == nil {
			break // success path
		}
		self.log.Debugf("sub-command after")
		self.sleep(1 * time.Second)
	}
}

func (self *transportMqtt) isRunning() bool {
	select {
	case <-self.stopCh:
		return false
	default:
		return true
	}
}

func (self *transportMqtt) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-self.stopCh:
	}
}

func (self *transportMqtt) mqttSubCommand(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	if self.onCommand(payload) {
		msg.Ack()
	}
}

func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.Wait() {
		err := errors.Timeoutf(tag)
		self.log.Errorf("MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Errorf("MQTT %s", err.Error())
		return err
	}
	return nil
}
