package pbdb

import (
	"google.golang.org/protobuf/proto"
)

// GetSingle returns the stored record of singleton s, or a new empty M if
// none has been stored.
func GetSingle[M proto.Message](h Handle, s *Singleton[M]) (M, error) {
	var result M
	db, release, err := acquireSingle(h, "get", s)
	if err != nil {
		return result, err
	}
	defer release()

	var found bool
	key := []byte(s.RecordID())
	err = db.view("get", SingletonPartition, func(tx storageTx) error {
		b, err := bucket(tx, "get", SingletonPartition)
		if err != nil {
			return err
		}
		raw, err := b.Get(key)
		if err != nil {
			return engineErr("get", SingletonPartition, err)
		}
		if raw == nil {
			return nil
		}
		found = true
		result, err = s.decode(raw)
		return err
	})
	if db.verbose {
		db.logger.Info("pbdb: GET", "partition", SingletonPartition, "key", s.RecordID(), "found", found, "err", err)
	}
	if err != nil {
		var zero M
		return zero, err
	}
	if !found {
		result = s.newRecord()
	}
	return result, nil
}

// PutSingle replaces the stored record of singleton s with m.
func PutSingle[M proto.Message](h Handle, s *Singleton[M], m M) error {
	err := s.checkRecord(m)
	if err != nil {
		return err
	}
	db, release, err := acquireSingle(h, "put", s)
	if err != nil {
		return err
	}
	defer release()

	buf := takeValueBuf()
	defer func() { releaseValueBuf(buf) }()
	buf, err = marshalRecord(buf, m)
	if err != nil {
		return engineErr("put", SingletonPartition, err)
	}

	key := []byte(s.RecordID())
	err = db.update("put", SingletonPartition, func(tx storageTx) error {
		b, err := bucket(tx, "put", SingletonPartition)
		if err != nil {
			return err
		}
		err = b.Put(key, buf)
		if err != nil {
			return engineErr("put", SingletonPartition, err)
		}
		return nil
	})
	if db.verbose {
		db.logger.Info("pbdb: PUT", "partition", SingletonPartition, "key", s.RecordID(), "size", len(buf), "err", err)
	}
	return err
}

// DeleteSingle removes the stored record of singleton s, so that GetSingle
// returns the default again.
func DeleteSingle[M proto.Message](h Handle, s *Singleton[M]) error {
	db, release, err := acquireSingle(h, "delete", s)
	if err != nil {
		return err
	}
	defer release()

	key := []byte(s.RecordID())
	err = db.update("delete", SingletonPartition, func(tx storageTx) error {
		b, err := bucket(tx, "delete", SingletonPartition)
		if err != nil {
			return err
		}
		err = b.Delete(key)
		if err != nil {
			return engineErr("delete", SingletonPartition, err)
		}
		return nil
	})
	if db.verbose {
		db.logger.Info("pbdb: DELETE", "partition", SingletonPartition, "key", s.RecordID(), "err", err)
	}
	return err
}

func acquireSingle(h Handle, op string, s SingletonDef) (*DB, func(), error) {
	db, release, err := h.acquire()
	if err != nil {
		return nil, nil, err
	}
	if !db.schema.hasSingleton(s) {
		release()
		return nil, nil, engineErr(op, s.Name(), ErrPartitionMissing)
	}
	return db, release, nil
}
