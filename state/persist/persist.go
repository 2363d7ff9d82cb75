// Package persist stores small named records that must survive power loss.
package persist

import (
	"strings"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

const (
	BackendExtremofile = "extremofile"
	BackendBadger      = "badger"
	BackendMemory      = "memory"
)

// Store is key/value persistence. Load returns nil,nil for missing key.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
	Close() error
}

// Open selects backend by name, empty means extremofile.
func Open(backend, root string, log *log2.Log) (Store, error) {
	switch backend {
	case "", BackendExtremofile:
		return NewExtremofile(root, log)
	case BackendBadger:
		return NewBadger(BadgerOptions{Dir: root, Log: log})
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, errors.NotSupportedf("persist backend=%s", backend)
}

func IsBackend(s string) bool {
	switch s {
	case "", BackendExtremofile, BackendBadger, BackendMemory:
		return true
	}
	return false
}

// Keys become directory names for extremofile, so keep them plain.
func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return errors.NotValidf("persist key=%q", key)
	}
	return nil
}
