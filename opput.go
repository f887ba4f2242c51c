package pbdb

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Put stores m in c under c.IDOf(m), replacing any existing record. The
// write is durable when Put returns.
func Put[M proto.Message](h Handle, c *Collection[M], m M) error {
	err := c.checkRecord(m)
	if err != nil {
		return err
	}
	id := c.IDOf(m)
	if id.key == "" {
		return fmt.Errorf("%w: %s.%s", ErrEmptyID, c.name, c.KeyField())
	}
	db, release, err := acquireFor(h, "put", c)
	if err != nil {
		return err
	}
	defer release()

	buf := takeValueBuf()
	defer func() { releaseValueBuf(buf) }()
	buf, err = marshalRecord(buf, m)
	if err != nil {
		return engineErr("put", c.name, err)
	}

	err = db.update("put", c.name, func(tx storageTx) error {
		b, err := bucket(tx, "put", c.name)
		if err != nil {
			return err
		}
		err = b.Put(id.Bytes(), buf)
		if err != nil {
			return engineErr("put", c.name, err)
		}
		return nil
	})
	if db.verbose {
		db.logger.Info("pbdb: PUT", "partition", c.name, "key", id.key, "size", len(buf), "err", err)
	}
	return err
}
