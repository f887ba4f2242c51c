package pbdb

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Break can be returned from a ForEach callback to stop iteration without
// failing.
var Break = errors.New("break")

// ForEach calls f for every record of c in identifier byte order, inside a
// single read transaction. f must not perform operations on the same
// database. If f returns Break, iteration stops and ForEach returns nil;
// other errors are returned as is.
func ForEach[M proto.Message](h Handle, c *Collection[M], f func(id Id[M], m M) error) error {
	db, release, err := acquireFor(h, "scan", c)
	if err != nil {
		return err
	}
	defer release()

	var n int
	err = db.view("scan", c.name, func(tx storageTx) error {
		return scanRaw(tx, "scan", c.name, func(k, v []byte) error {
			m, err := c.decode(k, v)
			if err != nil {
				return err
			}
			n++
			return f(Id[M]{coll: c.name, key: string(k)}, m)
		})
	})
	if errors.Is(err, Break) {
		err = nil
	}
	if db.verbose {
		db.logger.Info("pbdb: SCAN", "partition", c.name, "records", n, "err", err)
	}
	return err
}

// All returns every record of c in identifier byte order.
func All[M proto.Message](h Handle, c *Collection[M]) ([]M, error) {
	var result []M
	err := ForEach(h, c, func(_ Id[M], m M) error {
		result = append(result, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of records in c.
func Count[M proto.Message](h Handle, c *Collection[M]) (int, error) {
	db, release, err := acquireFor(h, "count", c)
	if err != nil {
		return 0, err
	}
	defer release()

	var n int
	err = db.view("count", c.name, func(tx storageTx) error {
		return scanRaw(tx, "count", c.name, func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// scanRaw calls f for every key-value pair of a partition. The slices are
// only valid during the call.
func scanRaw(tx storageTx, op, partition string, f func(k, v []byte) error) error {
	b, err := bucket(tx, op, partition)
	if err != nil {
		return err
	}
	cur := b.Cursor()
	defer cur.Close()
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		err := f(k, v)
		if err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return engineErr(op, partition, err)
	}
	return nil
}
