package pbdb

import (
	"fmt"
	"io"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpRecords
	DumpStats
	DumpSingletons

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)

	dumpJSON = protojson.MarshalOptions{UseProtoNames: true}
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump writes a human-readable listing of the database contents to w, one
// record per line in protojson.
func (db *DB) Dump(w io.Writer, f DumpFlags) error {
	_, release, err := db.acquire()
	if err != nil {
		return err
	}
	defer release()

	for _, c := range db.schema.collections {
		err := db.dumpCollection(w, f, c)
		if err != nil {
			return err
		}
	}
	if f.Contains(DumpSingletons) && len(db.schema.singletons) > 0 {
		return db.dumpSingletons(w, f)
	}
	return nil
}

func (db *DB) dumpCollection(w io.Writer, f DumpFlags, c CollectionDef) error {
	name := c.Name()
	if f.Contains(DumpHeaders) || f.Contains(DumpStats) {
		s, err := db.partitionStats(name)
		if err != nil {
			return err
		}
		if f.Contains(DumpHeaders) {
			fmt.Fprintln(w, dumpSep1)
			fmt.Fprintf(w, "%s (%d records, key %s%s)\n", name, s.Records, c.KeyField(), map[bool]string{false: "", true: ", case-insensitive"}[c.IsCaseInsensitive()])
		}
		if f.Contains(DumpStats) {
			fmt.Fprintf(w, "%s.stats: data_size = %d, data_alloc = %d, created = %s\n", name, s.DataSize, s.DataAlloc, s.Created.Format("2006-01-02 15:04:05"))
		}
	}
	if !f.Contains(DumpRecords) {
		return nil
	}
	if f.Contains(DumpStats) {
		fmt.Fprintln(w, dumpSep2)
	}
	return db.view("dump", name, func(tx storageTx) error {
		return scanRaw(tx, "dump", name, func(k, v []byte) error {
			m, err := c.decodeAny(k, v)
			if err != nil {
				fmt.Fprintf(w, "%s[%s] = ** ERROR: %v\n", name, displayKey(k), err)
				return nil
			}
			fmt.Fprintf(w, "%s[%s] = %s\n", name, displayKey(k), dumpJSON.Format(m))
			return nil
		})
	})
}

func (db *DB) dumpSingletons(w io.Writer, f DumpFlags) error {
	if f.Contains(DumpHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d singletons)\n", SingletonPartition, len(db.schema.singletons))
	}
	return db.view("dump", SingletonPartition, func(tx storageTx) error {
		b, err := bucket(tx, "dump", SingletonPartition)
		if err != nil {
			return err
		}
		for _, s := range db.schema.singletons {
			raw, err := b.Get([]byte(s.RecordID()))
			if err != nil {
				return engineErr("dump", SingletonPartition, err)
			}
			if raw == nil {
				fmt.Fprintf(w, "%s = <default>\n", s.Name())
				continue
			}
			m, err := s.decodeAny(raw)
			if err != nil {
				fmt.Fprintf(w, "%s = ** ERROR: %v\n", s.Name(), err)
				continue
			}
			fmt.Fprintf(w, "%s = %s\n", s.Name(), dumpJSON.Format(m))
		}
		return nil
	})
}
