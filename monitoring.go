package pbdb

import (
	"time"

	"google.golang.org/protobuf/proto"
)

type PartitionStats struct {
	Partition string
	Records   int

	DataSize  int64
	DataAlloc int64

	// Created and LastSeen come from the partition state; zero for
	// SingletonPartition.
	Created  time.Time
	LastSeen time.Time
}

// Stats returns storage statistics of collection c.
func Stats[M proto.Message](h Handle, c *Collection[M]) (PartitionStats, error) {
	db, release, err := acquireFor(h, "stats", c)
	if err != nil {
		return PartitionStats{}, err
	}
	defer release()
	return db.partitionStats(c.name)
}

// AllStats returns statistics of every collection partition followed by
// SingletonPartition.
func (db *DB) AllStats() ([]PartitionStats, error) {
	_, release, err := db.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	var result []PartitionStats
	for _, c := range db.schema.collections {
		ps, err := db.partitionStats(c.Name())
		if err != nil {
			return nil, err
		}
		result = append(result, ps)
	}
	ps, err := db.partitionStats(SingletonPartition)
	if err != nil {
		return nil, err
	}
	return append(result, ps), nil
}

func (db *DB) partitionStats(name string) (PartitionStats, error) {
	result := PartitionStats{Partition: name}
	err := db.view("stats", name, func(tx storageTx) error {
		b, err := bucket(tx, "stats", name)
		if err != nil {
			return err
		}
		bs := b.Stats()
		result.Records = bs.KeyN
		result.DataSize = bs.LeafInuse
		result.DataAlloc = bs.TotalAlloc()

		if meta := tx.Bucket(metaPartition); meta != nil {
			st, err := loadPartitionState(meta, name)
			if err != nil {
				return engineErr("stats", metaPartition, err)
			}
			if st != nil {
				result.Created = st.Created
				result.LastSeen = st.LastSeen
			}
		}
		return nil
	})
	return result, err
}
