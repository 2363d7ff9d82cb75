package persist

import (
	"sync"
)

// Memory is volatile Store for disabled persistence and tests.
type Memory struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemory() *Memory { return &Memory{m: make(map[string][]byte)} }

func (self *Memory) Load(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	v, ok := self.m[key]
	if !ok {
		return nil, nil
	}
	b := make([]byte, len(v))
	copy(b, v)
	return b, nil
}

func (self *Memory) Save(key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	self.mu.Lock()
	b := make([]byte, len(value))
	copy(b, value)
	self.m[key] = b
	self.mu.Unlock()
	return nil
}

func (self *Memory) Close() error { return nil }
