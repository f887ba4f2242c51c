package pbdb

import (
	"fmt"
	"runtime/debug"
)

// view runs f in a read-only transaction.
func (db *DB) view(op, partition string, f func(tx storageTx) error) error {
	stx, err := db.stor.BeginTx(false)
	if err != nil {
		return engineErr(op, partition, err)
	}
	defer stx.Rollback()
	db.ReadCount.Add(1)
	return safelyCall(f, stx)
}

// update runs f in a write transaction and commits it unless f fails.
func (db *DB) update(op, partition string, f func(tx storageTx) error) error {
	stx, err := db.stor.BeginTx(true)
	if err != nil {
		return engineErr(op, partition, err)
	}
	defer stx.Rollback()

	err = safelyCall(f, stx)
	if err != nil {
		return err
	}
	db.lastSize.Store(stx.Size())
	err = stx.Commit()
	if err != nil {
		return engineErr(op, partition, fmt.Errorf("commit: %w", err))
	}
	db.WriteCount.Add(1)
	return nil
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(storageTx) error, tx storageTx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

// bucket returns the partition named name, failing with ErrPartitionMissing
// when it doesn't exist.
func bucket(tx storageTx, op, name string) (storageBucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, engineErr(op, name, ErrPartitionMissing)
	}
	return b, nil
}
