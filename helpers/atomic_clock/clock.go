// Package atomic_clock is convenient API around atomic int64 clock.
// Values are nanoseconds on process monotonic scale, not wall clock:
// this program may step system time (head unit sets date), which must not
// distort delays, backoff or staleness accounting.
// Use for time accounting. Do not use where calendar time matters.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

var origin = time.Now()

type Clock struct{ v int64 }

// +1 keeps Source() distinguishable from zero value right after process start.
func source() int64 { return int64(time.Since(origin)) + 1 }

func (c *Clock) get() int64         { return atomic.LoadInt64(&c.v) }
func (c *Clock) set(new int64)      { atomic.StoreInt64(&c.v, new) }
func (c *Clock) cas(old, new int64) { atomic.CompareAndSwapInt64(&c.v, old, new) }

func (c *Clock) IsZero() bool { return c.get() == 0 }

func (c *Clock) Set(new int64)       { c.set(new) }
func (c *Clock) SetIfZero(new int64) { c.cas(0, new) }
func (c *Clock) SetNow()             { c.set(source()) }
func (c *Clock) SetNowIfZero()       { c.cas(0, source()) }
func (c *Clock) Reset()              { c.set(0) }

func (c *Clock) Sub(begin *Clock) time.Duration { return time.Duration(c.get() - begin.get()) }

// Raw monotonic nanoseconds, only comparable with values from this package.
func (c *Clock) Nano() int64 { return c.get() }

func New(v int64) *Clock { return &Clock{v: v} }
func Now() *Clock        { return New(source()) }

// Since zero Clock returns time since process start.
func Since(begin *Clock) time.Duration { return time.Duration(source() - begin.get()) }
func Source() int64                    { return source() }
