package bsi

import (
	"fmt"

	"go.uber.org/atomic"
)

type Stat struct {
	RxFrames         atomic.Uint32
	RxIgnored        atomic.Uint32
	SettingsWrites   atomic.Uint32
	TimeWrites       atomic.Uint32
	CalendarRejected atomic.Uint32
	TxOk             atomic.Uint32
	TxError          atomic.Uint32
	PersistError     atomic.Uint32
	BusRestarts      atomic.Uint32
}

type StatSnapshot struct {
	RxFrames         uint32 `json:"rx_frames" msgpack:"rx_frames"`
	RxIgnored        uint32 `json:"rx_ignored" msgpack:"rx_ignored"`
	SettingsWrites   uint32 `json:"settings_writes" msgpack:"settings_writes"`
	TimeWrites       uint32 `json:"time_writes" msgpack:"time_writes"`
	CalendarRejected uint32 `json:"calendar_rejected" msgpack:"calendar_rejected"`
	TxOk             uint32 `json:"tx_ok" msgpack:"tx_ok"`
	TxError          uint32 `json:"tx_error" msgpack:"tx_error"`
	PersistError     uint32 `json:"persist_error" msgpack:"persist_error"`
	BusRestarts      uint32 `json:"bus_restarts" msgpack:"bus_restarts"`
}

func (self *Stat) Snapshot() StatSnapshot {
	return StatSnapshot{
		RxFrames:         self.RxFrames.Load(),
		RxIgnored:        self.RxIgnored.Load(),
		SettingsWrites:   self.SettingsWrites.Load(),
		TimeWrites:       self.TimeWrites.Load(),
		CalendarRejected: self.CalendarRejected.Load(),
		TxOk:             self.TxOk.Load(),
		TxError:          self.TxError.Load(),
		PersistError:     self.PersistError.Load(),
		BusRestarts:      self.BusRestarts.Load(),
	}
}

func (s StatSnapshot) String() string {
	return fmt.Sprintf("rx=%d ignored=%d settings=%d time=%d rejected=%d tx=%d txerr=%d persisterr=%d restarts=%d",
		s.RxFrames, s.RxIgnored, s.SettingsWrites, s.TimeWrites, s.CalendarRejected,
		s.TxOk, s.TxError, s.PersistError, s.BusRestarts)
}
