package bsi

import (
	"encoding/hex"
	"sort"
)

// Inbound non-command frame as last seen on the bus.
type SensorReading struct {
	ID       uint32 `json:"id" msgpack:"id"`
	Data     string `json:"data" msgpack:"data"`
	Count    uint32 `json:"count" msgpack:"count"`
	LastSeen uint64 `json:"last_seen" msgpack:"last_seen"`
	AgeMs    uint64 `json:"age_ms" msgpack:"age_ms"`
}

// SensorCache is volatile, cleared on every bus reconfigure.
type SensorCache struct {
	m map[uint32]*SensorReading
}

func (self *SensorCache) Observe(id uint32, data []byte, ticks uint64) {
	if self.m == nil {
		self.m = make(map[uint32]*SensorReading)
	}
	r, ok := self.m[id]
	if !ok {
		r = &SensorReading{ID: id}
		self.m[id] = r
	}
	r.Data = hex.EncodeToString(data)
	r.Count++
	r.LastSeen = ticks
}

func (self *SensorCache) Clear()   { self.m = nil }
func (self *SensorCache) Len() int { return len(self.m) }

// Snapshot sorted by ID.
func (self *SensorCache) Snapshot(now uint64) []SensorReading {
	result := make([]SensorReading, 0, len(self.m))
	for _, r := range self.m {
		x := *r
		if now > x.LastSeen {
			x.AgeMs = (now - x.LastSeen) * 1000 / TicksPerSecond
		}
		result = append(result, x)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
