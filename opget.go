package pbdb

import (
	"google.golang.org/protobuf/proto"
)

// Get returns the record of c with the given id, or a nil M if there is none.
func Get[M proto.Message](h Handle, c *Collection[M], id Id[M]) (M, error) {
	var result M
	err := c.checkID(id)
	if err != nil {
		return result, err
	}
	db, release, err := acquireFor(h, "get", c)
	if err != nil {
		return result, err
	}
	defer release()
	if id.key == "" {
		return result, nil
	}

	err = db.view("get", c.name, func(tx storageTx) error {
		b, err := bucket(tx, "get", c.name)
		if err != nil {
			return err
		}
		raw, err := b.Get(id.Bytes())
		if err != nil {
			return engineErr("get", c.name, err)
		}
		if raw == nil {
			return nil
		}
		result, err = c.decode(id.Bytes(), raw)
		return err
	})
	if db.verbose {
		db.logger.Info("pbdb: GET", "partition", c.name, "key", id.key, "found", isFound(result), "err", err)
	}
	return result, err
}

// Exists reports whether c has a record with the given id, without decoding
// it.
func Exists[M proto.Message](h Handle, c *Collection[M], id Id[M]) (bool, error) {
	err := c.checkID(id)
	if err != nil {
		return false, err
	}
	db, release, err := acquireFor(h, "exists", c)
	if err != nil {
		return false, err
	}
	defer release()
	if id.key == "" {
		return false, nil
	}

	var found bool
	err = db.view("exists", c.name, func(tx storageTx) error {
		b, err := bucket(tx, "exists", c.name)
		if err != nil {
			return err
		}
		raw, err := b.Get(id.Bytes())
		if err != nil {
			return engineErr("exists", c.name, err)
		}
		found = (raw != nil)
		return nil
	})
	if db.verbose {
		db.logger.Info("pbdb: EXISTS", "partition", c.name, "key", id.key, "found", found, "err", err)
	}
	return found, err
}

// acquireFor acquires h and checks that its database was opened with c.
func acquireFor(h Handle, op string, c CollectionDef) (*DB, func(), error) {
	db, release, err := h.acquire()
	if err != nil {
		return nil, nil, err
	}
	if !db.schema.hasCollection(c) {
		release()
		return nil, nil, engineErr(op, c.Name(), ErrPartitionMissing)
	}
	return db, release, nil
}

func isFound(m proto.Message) bool {
	return m != nil && m.ProtoReflect().IsValid()
}
