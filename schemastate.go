package pbdb

import (
	"fmt"
	"time"
)

// partitionState is stored in metaPartition under the collection name.
type partitionState struct {
	KeyField        string    `msgpack:"k"`
	CaseInsensitive bool      `msgpack:"ci"`
	Created         time.Time `msgpack:"c"`
	LastSeen        time.Time `msgpack:"t"`
}

// provision creates the reserved partitions and checks or creates the
// partition of every collection, all in one transaction.
func (db *DB) provision(createMissing bool, now time.Time) error {
	return db.update("open", "", func(tx storageTx) error {
		meta, err := tx.CreateBucket(metaPartition)
		if err != nil {
			return engineErr("open", metaPartition, err)
		}
		if _, err := tx.CreateBucket(SingletonPartition); err != nil {
			return engineErr("open", SingletonPartition, err)
		}
		for _, c := range db.schema.collections {
			err := provisionCollection(tx, meta, c, createMissing, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func provisionCollection(tx storageTx, meta storageBucket, c CollectionDef, createMissing bool, now time.Time) error {
	name := c.Name()
	b := tx.Bucket(name)
	if b == nil {
		if !createMissing {
			return engineErr("open", name, ErrPartitionMissing)
		}
		var err error
		b, err = tx.CreateBucket(name)
		if err != nil {
			return engineErr("open", name, err)
		}
	}

	ps, err := loadPartitionState(meta, name)
	if err != nil {
		return engineErr("open", name, err)
	}
	if ps == nil {
		ps = &partitionState{Created: now}
	} else if ps.CaseInsensitive != c.IsCaseInsensitive() {
		empty, err := isEmptyBucket(b)
		if err != nil {
			return engineErr("open", name, err)
		}
		if !empty {
			return engineErr("open", name, fmt.Errorf("%w (stored case-insensitive=%v, declared %v)", ErrSchemaChanged, ps.CaseInsensitive, c.IsCaseInsensitive()))
		}
	}
	ps.KeyField = c.KeyField()
	ps.CaseInsensitive = c.IsCaseInsensitive()
	ps.LastSeen = now

	err = meta.Put([]byte(name), encodeState(ps))
	if err != nil {
		return engineErr("open", metaPartition, err)
	}
	return nil
}

func loadPartitionState(meta storageBucket, name string) (*partitionState, error) {
	raw, err := meta.Get([]byte(name))
	if err != nil || raw == nil {
		return nil, err
	}
	ps := new(partitionState)
	err = decodeState(raw, ps)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func isEmptyBucket(b storageBucket) (bool, error) {
	c := b.Cursor()
	defer c.Close()
	k, _ := c.First()
	return k == nil, c.Err()
}
