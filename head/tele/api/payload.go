package tele_api

import (
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/bsi"
)

// Command tasks.
const (
	TaskReport      = "report"
	TaskRebroadcast = "rebroadcast"
	TaskSetLanguage = "set_language"
	TaskSetUnits    = "set_units"
	TaskSetHour24   = "set_h24"
	TaskSetTime     = "set_time"
	TaskReconfigure = "reconfigure"
)

// Command arrives on command topic. Only fields relevant to Task are read.
type Command struct {
	Id         uint32 `msgpack:"id"`
	ReplyTopic string `msgpack:"reply_topic"`
	Task       string `msgpack:"task"`

	// rebroadcast: settings|time
	Kind     string `msgpack:"kind,omitempty"`
	Language uint8  `msgpack:"language,omitempty"`
	Celsius  bool   `msgpack:"celsius,omitempty"`
	Hour24   bool   `msgpack:"h24,omitempty"`
	// set_time: unix seconds
	Epoch int64 `msgpack:"epoch,omitempty"`
	// reconfigure: bus profile name
	Profile string `msgpack:"profile,omitempty"`
}

type Response struct {
	CommandId uint32 `msgpack:"command_id"`
	// empty on success
	Error string `msgpack:"error,omitempty"`
}

type Telemetry struct {
	DeviceId     int32           `msgpack:"device_id"`
	Time         int64           `msgpack:"time"`
	BuildVersion string          `msgpack:"build_version,omitempty"`
	Error        *TelemetryError `msgpack:"error,omitempty"`
	Report       *bsi.Snapshot   `msgpack:"report,omitempty"`
	Stat         Stat            `msgpack:"stat"`
}

type TelemetryError struct {
	Message string `msgpack:"message"`
}

// Stat is telemetry subsystem counters since previous telemetry message.
type Stat struct {
	CommandReceived uint32 `msgpack:"command_received"`
	CommandInvalid  uint32 `msgpack:"command_invalid"`
	CommandFailed   uint32 `msgpack:"command_failed"`
	SendRetry       uint32 `msgpack:"send_retry"`
}
