package bsi

import (
	"time"

	"github.com/juju/errors"
)

type Kind uint8

const (
	KindSettings Kind = iota
	KindTime
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindSettings:
		return "settings"
	case KindTime:
		return "time"
	}
	return "invalid"
}

func ParseKind(s string) (Kind, error) {
	for k := Kind(0); k < kindCount; k++ {
		if s == k.String() {
			return k, nil
		}
	}
	return 0, errors.NotValidf("broadcast kind=%q", s)
}

type timer struct {
	period uint64
	last   uint64
	due    bool
}

// Scheduler tracks per-kind broadcast periods in ticks.
// Last sent moves forward only on successful send, so failures retry next tick.
type Scheduler struct {
	timers [kindCount]timer
}

func NewScheduler(settingsPeriod, timePeriod time.Duration) Scheduler {
	var s Scheduler
	s.timers[KindSettings].period = durationTicks(settingsPeriod)
	s.timers[KindTime].period = durationTicks(timePeriod)
	return s
}

func (s *Scheduler) Due(k Kind, now uint64) bool {
	t := &s.timers[k]
	return t.due || now < t.last || now-t.last >= t.period
}

func (s *Scheduler) Sent(k Kind, now uint64) {
	t := &s.timers[k]
	t.last = now
	t.due = false
}

func (s *Scheduler) MarkDue(k Kind) { s.timers[k].due = true }

// ResetDue makes every kind due now.
func (s *Scheduler) ResetDue() {
	for i := range s.timers {
		s.timers[i].due = true
	}
}

func durationTicks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / (time.Second / TicksPerSecond))
}
