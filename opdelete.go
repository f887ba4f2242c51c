package pbdb

import (
	"google.golang.org/protobuf/proto"
)

// Delete removes the record of c with the given id. Deleting a missing record
// is not an error.
func Delete[M proto.Message](h Handle, c *Collection[M], id Id[M]) error {
	err := c.checkID(id)
	if err != nil {
		return err
	}
	db, release, err := acquireFor(h, "delete", c)
	if err != nil {
		return err
	}
	defer release()
	if id.key == "" {
		return nil
	}

	err = db.update("delete", c.name, func(tx storageTx) error {
		b, err := bucket(tx, "delete", c.name)
		if err != nil {
			return err
		}
		err = b.Delete(id.Bytes())
		if err != nil {
			return engineErr("delete", c.name, err)
		}
		return nil
	})
	if db.verbose {
		db.logger.Info("pbdb: DELETE", "partition", c.name, "key", id.key, "err", err)
	}
	return err
}
