package persist

import (
	"hash/crc64"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/temoto/extremofile"
)

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

// Extremofile keeps every key in its own checksummed main+backup file pair at root/key.
type Extremofile struct {
	sync.Mutex
	log   *log2.Log
	root  string
	files map[string]storage
}

func NewExtremofile(root string, log *log2.Log) (*Extremofile, error) {
	if root == "" {
		return nil, errors.Errorf("persist extremofile root=empty")
	}
	return &Extremofile{
		log:   log,
		root:  root,
		files: make(map[string]storage),
	}, nil
}

func (self *Extremofile) file(key string) storage {
	st, ok := self.files[key]
	if !ok {
		st = extremofile.New(extremofile.Config{
			Dir:      filepath.Join(self.root, key),
			DirPerm:  0755,
			FilePerm: 0644,
		})
		self.files[key] = st
	}
	return st
}

func (self *Extremofile) Load(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	self.Lock()
	defer self.Unlock()
	tbegin := time.Now()
	b, err := self.file(key).Read()
	self.log.Debugf("persist %s storage.read duration=%v", key, time.Since(tbegin))
	if b != nil && err != nil {
		self.log.Errorf("persist %s ignore non-critical storage err=%v", key, err)
		err = nil
	}
	return b, errors.Annotatef(err, "persist %s load", key)
}

func (self *Extremofile) Save(key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	self.Lock()
	defer self.Unlock()
	// storage appends checksum to its argument
	b := make([]byte, len(value))
	copy(b, value)
	tbegin := time.Now()
	// extremofile writes in place without truncation, shorter record would leave
	// stale tail and fail checksum. Main is emptied first and backup trimmed after,
	// so one valid copy exists at any crash point.
	dir := filepath.Join(self.root, key)
	err := truncate(filepath.Join(dir, extremofile.DefaultFilePrefix+"v1.main"), 0)
	if err == nil {
		_, err = self.file(key).Write(b)
	}
	if err == nil {
		err = truncate(filepath.Join(dir, extremofile.DefaultFilePrefix+"v1.backup"), int64(len(value)+crc64.Size))
	}
	self.log.Debugf("persist %s storage.write duration=%v", key, time.Since(tbegin))
	return errors.Annotatef(err, "persist %s save", key)
}

func truncate(path string, size int64) error {
	if err := os.Truncate(path, size); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (self *Extremofile) Close() error { return nil }
