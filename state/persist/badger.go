package persist

import (
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

const badgerKeyPrefix = "bsi/"

type BadgerOptions struct {
	Dir string
	// InMemory runs without disk, for tests.
	InMemory bool
	Log      *log2.Log
}

type Badger struct {
	db  *badger.DB
	log *log2.Log
}

func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.Errorf("persist badger dir=empty")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).
		WithLogger(badgerLogger{opts.Log}).
		WithSyncWrites(true)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, errors.Annotatef(err, "persist badger open dir=%s", opts.Dir)
	}
	return &Badger{db: db, log: opts.Log}, nil
}

func (self *Badger) Load(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	tbegin := time.Now()
	var value []byte
	err := self.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	self.log.Debugf("persist %s badger.read duration=%v", key, time.Since(tbegin))
	if errors.Cause(err) == badger.ErrKeyNotFound {
		return nil, nil
	}
	return value, errors.Annotatef(err, "persist %s load", key)
}

func (self *Badger) Save(key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	tbegin := time.Now()
	err := self.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+key), value)
	})
	self.log.Debugf("persist %s badger.write duration=%v", key, time.Since(tbegin))
	return errors.Annotatef(err, "persist %s save", key)
}

func (self *Badger) Close() error {
	return errors.Annotate(self.db.Close(), "persist badger close")
}

// badger chatters at info level on every open, route it to debug
type badgerLogger struct{ log *log2.Log }

func (self badgerLogger) Errorf(f string, v ...interface{})   { self.log.Errorf("badger: "+f, v...) }
func (self badgerLogger) Warningf(f string, v ...interface{}) { self.log.Infof("badger: "+f, v...) }
func (self badgerLogger) Infof(f string, v ...interface{})    { self.log.Debugf("badger: "+f, v...) }
func (self badgerLogger) Debugf(f string, v ...interface{})   { self.log.Debugf("badger: "+f, v...) }
