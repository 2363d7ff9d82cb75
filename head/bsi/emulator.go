// Package bsi emulates body system interface node of the comfort bus:
// answers head unit settings and date/time writes, broadcasts their state periodically.
package bsi

import (
	"context"
	"encoding"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/helpers"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

const (
	KeySettings = "settings"
	KeyClock    = "clock"

	// Upper bound of frames handled by one Poll, keeps Tick responsive under flood.
	pollMaxFrames = 256
)

// Store is persistence capability. Load returns nil, nil for missing key.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
}

type IDs struct {
	SettingsWrite     uint32
	SettingsBroadcast uint32
	TimeWrite         uint32
	TimeBroadcast     uint32
}

type Config struct {
	IDs            IDs
	SettingsPeriod time.Duration
	TimePeriod     time.Duration
	SendTimeout    time.Duration
	Baseline       SettingsFrame
	// Used when nothing was persisted. Frame is ignored, Baseline applies.
	Defaults Settings
}

func DefaultConfig() Config {
	return Config{
		IDs: IDs{
			SettingsWrite:     0x15b,
			SettingsBroadcast: 0x260,
			TimeWrite:         0x39b,
			TimeBroadcast:     0x276,
		},
		SettingsPeriod: 500 * time.Millisecond,
		TimePeriod:     1000 * time.Millisecond,
		SendTimeout:    20 * time.Millisecond,
		Baseline:       SettingsFrame{bitMenuActive},
		Defaults:       Settings{Celsius: true, Hour24: true},
	}
}

type SettingsView struct {
	Language uint8  `json:"language" msgpack:"language"`
	Celsius  bool   `json:"celsius" msgpack:"celsius"`
	Hour24   bool   `json:"h24" msgpack:"h24"`
	Frame    string `json:"frame" msgpack:"frame"`
}

// Emulator is the single owner of emulated node state.
// All methods are safe for concurrent use.
type Emulator struct {
	mu     sync.Mutex
	config Config
	log    *log2.Log
	tr     can.Transport
	store  Store
	ticker Ticker
	wall   WallSetter

	settings Settings
	clock    AnchoredClock
	sched    Scheduler
	bus      *BusController
	sensors  SensorCache
	stat     Stat
}

func NewEmulator(config Config, tr can.Transport, store Store, ticker Ticker, log *log2.Log) *Emulator {
	self := &Emulator{
		config: config,
		log:    log,
		tr:     tr,
		store:  store,
		ticker: ticker,
		sched:  NewScheduler(config.SettingsPeriod, config.TimePeriod),
		bus:    NewBusController(tr, log),
	}
	self.settings = config.Defaults
	self.settings.Frame = SettingsFrame{}
	self.settings.EnsureBaseline(config.Baseline)
	self.settings.ApplyLanguageAndUnits()
	return self
}

// SetWallSetter enables propagation of accepted time writes to host clock.
func (self *Emulator) SetWallSetter(w WallSetter) {
	self.mu.Lock()
	self.wall = w
	self.mu.Unlock()
}

// Load restores persisted settings and clock. Errors are informational,
// emulator continues with defaults for whatever failed to load.
func (self *Emulator) Load() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	errs := make([]error, 0, 2)

	self.settings = self.config.Defaults
	self.settings.Frame = SettingsFrame{}
	var s Settings
	if ok, err := self.loadLocked(KeySettings, &s); err != nil {
		errs = append(errs, err)
	} else if ok {
		self.settings = s
	}
	self.settings.EnsureBaseline(self.config.Baseline)
	self.settings.ApplyLanguageAndUnits()

	self.clock = AnchoredClock{}
	var c AnchoredClock
	if ok, err := self.loadLocked(KeyClock, &c); err != nil {
		errs = append(errs, err)
	} else if ok {
		self.clock = c.Reconstruct(self.ticker.Ticks())
	}

	self.log.Infof("bsi loaded settings=%s lang=%d celsius=%t h24=%t clock=%s",
		self.settings.Frame.String(), self.settings.Language, self.settings.Celsius, self.settings.Hour24,
		self.currentTimeLocked())
	return helpers.FoldErrors(errs)
}

func (self *Emulator) loadLocked(key string, v encoding.BinaryUnmarshaler) (bool, error) {
	b, err := self.store.Load(key)
	if err != nil {
		return false, errors.Annotatef(err, "bsi load key=%s", key)
	}
	if b == nil {
		return false, nil
	}
	if err = v.UnmarshalBinary(b); err != nil {
		return false, errors.Annotatef(err, "bsi load key=%s", key)
	}
	return true, nil
}

func (self *Emulator) persistLocked(key string, v encoding.BinaryMarshaler) {
	b, err := v.MarshalBinary()
	if err == nil {
		err = self.store.Save(key, b)
	}
	if err != nil {
		self.stat.PersistError.Inc()
		self.log.Errorf("bsi persist key=%s err=%v", key, err)
	}
}

// StartBus moves bus to running(p). Both broadcasts become due immediately.
func (self *Emulator) StartBus(ctx context.Context, p can.Profile) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if err := self.bus.Start(ctx, p); err != nil {
		return err
	}
	self.sched.ResetDue()
	return nil
}

func (self *Emulator) StopBus(ctx context.Context) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.bus.Stop(ctx)
}

// ReconfigureBus is no-op when already running p, otherwise restarts transport
// with p and clears sensor cache.
func (self *Emulator) ReconfigureBus(ctx context.Context, p can.Profile) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	restarted, err := self.bus.Reconfigure(ctx, p, self.sensors.Clear)
	if restarted {
		self.stat.BusRestarts.Inc()
		self.sched.ResetDue()
	}
	return err
}

func (self *Emulator) Profile() (can.Profile, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.bus.Running()
}

// Poll drains pending inbound frames into decoders and sensor cache.
func (self *Emulator) Poll() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if _, ok := self.bus.Running(); !ok {
		return nil
	}
	for i := 0; i < pollMaxFrames; i++ {
		f, ok, err := self.tr.Receive()
		if err != nil {
			return errors.Annotate(err, "bsi poll")
		}
		if !ok {
			break
		}
		self.handleFrameLocked(f)
	}
	return nil
}

func (self *Emulator) handleFrameLocked(f can.Frame) {
	self.stat.RxFrames.Inc()
	switch f.ID {
	case self.config.IDs.SettingsWrite:
		self.applySettingsWriteLocked(f.Bytes())
	case self.config.IDs.TimeWrite:
		self.applyTimeWriteLocked(f.Bytes())
	default:
		self.sensors.Observe(f.ID, f.Bytes(), self.ticker.Ticks())
	}
}

// Tick sends every broadcast whose period elapsed. Failed sends stay due.
func (self *Emulator) Tick() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if _, ok := self.bus.Running(); !ok {
		return nil
	}
	now := self.ticker.Ticks()
	errs := make([]error, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		if self.sched.Due(k, now) {
			errs = append(errs, self.sendNowLocked(k, now))
		}
	}
	return helpers.FoldErrors(errs)
}

// ApplySettingsWrite returns false when input was ignored.
func (self *Emulator) ApplySettingsWrite(b []byte) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.applySettingsWriteLocked(b)
}

func (self *Emulator) applySettingsWriteLocked(b []byte) bool {
	if !ApplySettingsWrite(&self.settings, b) {
		self.stat.RxIgnored.Inc()
		self.log.Debugf("bsi settings write ignored len=%d", len(b))
		return false
	}
	self.stat.SettingsWrites.Inc()
	self.log.Debugf("bsi settings write input=%x frame=%s", b, self.settings.Frame.String())
	self.persistLocked(KeySettings, self.settings)
	_ = self.rebroadcastLocked(KindSettings)
	return true
}

// ApplyTimeWrite returns false when input was ignored or not a valid calendar time.
func (self *Emulator) ApplyTimeWrite(b []byte) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.applyTimeWriteLocked(b)
}

func (self *Emulator) applyTimeWriteLocked(b []byte) bool {
	dt, err := ParseTimeWrite(b)
	if err != nil {
		if len(b) < TimeWriteMinLen {
			self.stat.RxIgnored.Inc()
		} else {
			self.stat.CalendarRejected.Inc()
		}
		self.log.Debugf("bsi time write input=%x err=%v", b, err)
		return false
	}
	self.stat.TimeWrites.Inc()
	self.log.Debugf("bsi time write %s", dt.String())
	self.setClockLocked(dt.Epoch(), dt.Hour24)
	return true
}

// SetTime sets clock from control surface. Seconds are kept, broadcast drops them.
func (self *Emulator) SetTime(epoch int64, hour24 bool) error {
	if epoch <= 0 {
		return errors.NotValidf("epoch=%d", epoch)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	self.stat.TimeWrites.Inc()
	self.setClockLocked(epoch, hour24)
	return nil
}

// SetTimeKeepFormat sets clock and keeps current 12/24h flag, atomically.
func (self *Emulator) SetTimeKeepFormat(epoch int64) error {
	if epoch <= 0 {
		return errors.NotValidf("epoch=%d", epoch)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	self.stat.TimeWrites.Inc()
	self.setClockLocked(epoch, self.settings.Hour24)
	return nil
}

func (self *Emulator) setClockLocked(epoch int64, hour24 bool) {
	self.clock = AnchoredClock{Epoch: epoch, Ref: self.ticker.Ticks()}
	self.settings.Hour24 = hour24
	if self.wall != nil {
		if err := self.wall.SetWallClock(time.Unix(epoch, 0)); err != nil {
			self.log.Errorf("bsi set system clock err=%v", err)
		}
	}
	self.persistLocked(KeyClock, self.clock)
	self.persistLocked(KeySettings, self.settings)
	_ = self.rebroadcastLocked(KindTime)
}

// SetLanguage is settings write with language/units flag, Celsius unchanged.
func (self *Emulator) SetLanguage(code uint8) error {
	if code > LanguageMax {
		return errors.NotValidf("language=%d > %d", code, LanguageMax)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	self.applySettingsWriteLocked(langUnitsWrite(code, self.settings.Celsius))
	return nil
}

func (self *Emulator) SetUnits(celsius bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.applySettingsWriteLocked(langUnitsWrite(self.settings.Language, celsius))
}

// SetHour24 changes 12/24h display flag carried by date/time broadcast.
func (self *Emulator) SetHour24(hour24 bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.settings.Hour24 = hour24
	self.persistLocked(KeySettings, self.settings)
	_ = self.rebroadcastLocked(KindTime)
}

func langUnitsWrite(code uint8, celsius bool) []byte {
	b := []byte{bitLangUnits | (code&LanguageMax)<<2, 0}
	if celsius {
		b[1] |= bitCelsius
	}
	return b
}

// ForceRebroadcast sends kind now, see rebroadcastLocked.
func (self *Emulator) ForceRebroadcast(k Kind) error {
	if k >= kindCount {
		return errors.NotValidf("broadcast kind=%d", k)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.rebroadcastLocked(k)
}

func (self *Emulator) ForceRebroadcastSettings() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.rebroadcastLocked(KindSettings)
}

func (self *Emulator) ForceRebroadcastTime() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.rebroadcastLocked(KindTime)
}

// Sends immediately, or leaves kind due for next Tick when bus is down or send fails.
func (self *Emulator) rebroadcastLocked(k Kind) error {
	if _, ok := self.bus.Running(); !ok {
		self.sched.MarkDue(k)
		return errors.Annotatef(can.ErrNotRunning, "bsi rebroadcast %s", k.String())
	}
	return self.sendNowLocked(k, self.ticker.Ticks())
}

func (self *Emulator) sendNowLocked(k Kind, now uint64) error {
	f, err := self.frameLocked(k, now)
	if err == nil {
		err = self.tr.Send(f, self.config.SendTimeout)
	}
	if err != nil {
		self.stat.TxError.Inc()
		self.sched.MarkDue(k)
		self.log.Debugf("bsi send %s err=%v", k.String(), err)
		return errors.Annotatef(err, "bsi send %s", k.String())
	}
	self.stat.TxOk.Inc()
	self.sched.Sent(k, now)
	return nil
}

func (self *Emulator) frameLocked(k Kind, now uint64) (can.Frame, error) {
	switch k {
	case KindSettings:
		self.settings.ApplyLanguageAndUnits()
		return can.NewFrame(self.config.IDs.SettingsBroadcast, self.settings.Frame.Wire())
	case KindTime:
		dt := DateTimeFromEpoch(self.clock.Now(now), self.settings.Hour24)
		return can.NewFrame(self.config.IDs.TimeBroadcast, dt.Wire())
	}
	return can.Frame{}, errors.NotSupportedf("broadcast kind=%d", k)
}

func (self *Emulator) CurrentSettings() SettingsView {
	self.mu.Lock()
	defer self.mu.Unlock()
	return SettingsView{
		Language: self.settings.Language,
		Celsius:  self.settings.Celsius,
		Hour24:   self.settings.Hour24,
		Frame:    self.settings.Frame.String(),
	}
}

// CurrentTimeISO returns naive local calendar time, e.g. "2024-03-15T14:30:00".
func (self *Emulator) CurrentTimeISO() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.currentTimeLocked()
}

func (self *Emulator) currentTimeLocked() string {
	return time.Unix(self.clock.Now(self.ticker.Ticks()), 0).UTC().Format("2006-01-02T15:04:05")
}

func (self *Emulator) ClockSet() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.clock.IsSet()
}

func (self *Emulator) Sensors() []SensorReading {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.sensors.Snapshot(self.ticker.Ticks())
}

func (self *Emulator) Stat() StatSnapshot { return self.stat.Snapshot() }

// Snapshot is consistent view of emulator state for control surfaces.
type Snapshot struct {
	Settings SettingsView    `json:"settings" msgpack:"settings"`
	Time     string          `json:"time" msgpack:"time"`
	ClockSet bool            `json:"clock_set" msgpack:"clock_set"`
	Profile  string          `json:"profile" msgpack:"profile"`
	Running  bool            `json:"running" msgpack:"running"`
	Stat     StatSnapshot    `json:"stat" msgpack:"stat"`
	Sensors  []SensorReading `json:"sensors" msgpack:"sensors"`
}

func (self *Emulator) Snapshot() Snapshot {
	self.mu.Lock()
	defer self.mu.Unlock()
	now := self.ticker.Ticks()
	profile, running := self.bus.Running()
	return Snapshot{
		Settings: SettingsView{
			Language: self.settings.Language,
			Celsius:  self.settings.Celsius,
			Hour24:   self.settings.Hour24,
			Frame:    self.settings.Frame.String(),
		},
		Time:     self.currentTimeLocked(),
		ClockSet: self.clock.IsSet(),
		Profile:  profile.Name,
		Running:  running,
		Stat:     self.stat.Snapshot(),
		Sensors:  self.sensors.Snapshot(now),
	}
}
