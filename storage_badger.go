package pbdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Badger has a single flat keyspace, so partitions are key prefixes:
//
//	0x00 name                       partition marker
//	0x01 uvarint(len(name)) name key  record
const (
	badgerMarkerTag = 0x00
	badgerRecordTag = 0x01
)

type badgerStorage struct {
	bdb *badger.DB
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func openBadgerStorage(path string, opt Options, logger *slog.Logger) (storage, error) {
	var bopt badger.Options
	if path == InMemory {
		bopt = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(path)
		if os.IsNotExist(err) && opt.CreateIfMissing {
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, err
			}
			info, err = os.Stat(path)
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", path)
		}
		bopt = badger.DefaultOptions(path).WithSyncWrites(!opt.IsTesting)
	}
	bopt.Logger = &badgerLoggerAdapter{logger: logger}
	bopt.Compression = options.None

	bdb, err := badger.Open(bopt)
	if err != nil {
		return nil, err
	}
	return &badgerStorage{bdb: bdb}, nil
}

func (s *badgerStorage) BeginTx(writable bool) (storageTx, error) {
	if s.bdb.IsClosed() {
		return nil, errors.New("storage closed")
	}
	return &badgerTx{s: s, txn: s.bdb.NewTransaction(writable), writable: writable}, nil
}

func (s *badgerStorage) Close() error {
	return s.bdb.Close()
}

type badgerTx struct {
	s        *badgerStorage
	txn      *badger.Txn
	writable bool
}

func (tx *badgerTx) Writable() bool { return tx.writable }

func badgerMarkerKey(name string) []byte {
	return append([]byte{badgerMarkerTag}, name...)
}

func badgerRecordPrefix(name string) []byte {
	prefix := make([]byte, 0, 1+binary.MaxVarintLen64+len(name))
	prefix = append(prefix, badgerRecordTag)
	prefix = binary.AppendUvarint(prefix, uint64(len(name)))
	return append(prefix, name...)
}

func (tx *badgerTx) Bucket(name string) storageBucket {
	if _, err := tx.txn.Get(badgerMarkerKey(name)); err != nil {
		return nil
	}
	return &badgerBucket{tx: tx, prefix: badgerRecordPrefix(name)}
}

func (tx *badgerTx) CreateBucket(name string) (storageBucket, error) {
	if b := tx.Bucket(name); b != nil {
		return b, nil
	}
	if err := tx.txn.Set(badgerMarkerKey(name), nil); err != nil {
		return nil, err
	}
	return &badgerBucket{tx: tx, prefix: badgerRecordPrefix(name)}, nil
}

func (tx *badgerTx) Commit() error {
	if !tx.writable {
		tx.txn.Discard()
		return nil
	}
	return tx.txn.Commit()
}

func (tx *badgerTx) Rollback() error {
	tx.txn.Discard()
	return nil
}

func (tx *badgerTx) Size() int64 {
	lsm, vlog := tx.s.bdb.Size()
	return lsm + vlog
}

type badgerBucket struct {
	tx     *badgerTx
	prefix []byte
}

func (b *badgerBucket) key(k []byte) []byte {
	full := make([]byte, 0, len(b.prefix)+len(k))
	return append(append(full, b.prefix...), k...)
}

func (b *badgerBucket) Get(key []byte) ([]byte, error) {
	item, err := b.tx.txn.Get(b.key(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (b *badgerBucket) Put(key, value []byte) error {
	return b.tx.txn.Set(b.key(key), value)
}

func (b *badgerBucket) Delete(key []byte) error {
	return b.tx.txn.Delete(b.key(key))
}

func (b *badgerBucket) Cursor() storageCursor {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = b.prefix
	return &badgerCursor{b: b, iter: b.tx.txn.NewIterator(opts)}
}

func (b *badgerBucket) Stats() bucketStats {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = b.prefix
	opts.PrefetchValues = false
	iter := b.tx.txn.NewIterator(opts)
	defer iter.Close()

	var s bucketStats
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		s.KeyN++
		s.LeafInuse += int64(len(item.Key())-len(b.prefix)) + item.ValueSize()
		s.LeafAlloc += item.EstimatedSize()
	}
	return s
}

type badgerCursor struct {
	b    *badgerBucket
	iter *badger.Iterator
	err  error
}

func (c *badgerCursor) current() ([]byte, []byte) {
	if !c.iter.Valid() {
		return nil, nil
	}
	item := c.iter.Item()
	v, err := item.ValueCopy(nil)
	if err != nil {
		c.err = err
		return nil, nil
	}
	if v == nil {
		v = []byte{}
	}
	return item.KeyCopy(nil)[len(c.b.prefix):], v
}

func (c *badgerCursor) First() ([]byte, []byte) {
	c.iter.Rewind()
	return c.current()
}

func (c *badgerCursor) Next() ([]byte, []byte) {
	c.iter.Next()
	return c.current()
}

func (c *badgerCursor) Err() error { return c.err }

func (c *badgerCursor) Close() {
	c.iter.Close()
}
