package pbdb

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/andreyvit/pbdb/internal/pbdbtest"
)

var (
	testSchema    = must(NewDynamicSchema(pbdbtest.FileSet()))
	basicMessages = testSchema.Collection("BasicMessage")
	accounts      = testSchema.Collection("Account")
	settings      = testSchema.Singleton("Settings")
	themes        = testSchema.Singleton("Theme")
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func basic(id string, value uint32) *dynamicpb.Message {
	return pbdbtest.New(basicMessages.MessageType(), "id", id, "value", value)
}

func account(email, name string) *dynamicpb.Message {
	return pbdbtest.New(accounts.MessageType(), "email", email, "name", name)
}

func TestCollectionLifecycle(t *testing.T) {
	db := setup(t, testSchema.Schema)

	isnil(t, must(Get(db, basicMessages, basicMessages.ID("x"))))

	ensure(t, Put(db, basicMessages, basic("x", 2)))
	protoEqual(t, must(Get(db, basicMessages, basicMessages.ID("x"))), basic("x", 2))

	ensure(t, Delete(db, basicMessages, basicMessages.ID("x")))
	isnil(t, must(Get(db, basicMessages, basicMessages.ID("x"))))
}

func TestSingletonSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db := must(Open(path, testSchema.Schema, testOptions()))
	s := must(GetSingle(db, settings))
	deepEqual(t, pbdbtest.Get(s, "value"), any(uint32(0)))

	ensure(t, PutSingle(db, settings, pbdbtest.New(settings.MessageType(), "value", uint32(2))))
	ensure(t, db.Close())

	db = must(Open(path, testSchema.Schema, testOptions()))
	defer db.Close()
	s = must(GetSingle(db, settings))
	deepEqual(t, pbdbtest.Get(s, "value"), any(uint32(2)))
}

func TestCollectionSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db := must(Open(path, testSchema.Schema, testOptions()))
	ensure(t, Put(db, basicMessages, basic("a", 1)))
	ensure(t, Put(db, accounts, account("Foo@example.com", "Foo")))
	ensure(t, db.Close())

	db = must(Open(path, testSchema.Schema, testOptions()))
	defer db.Close()
	protoEqual(t, must(Get(db, basicMessages, basicMessages.ID("a"))), basic("a", 1))
	protoEqual(t, must(Get(db, accounts, accounts.ID("foo@EXAMPLE.com"))), account("Foo@example.com", "Foo"))
}

func TestGetNeverPut(t *testing.T) {
	db := setup(t, testSchema.Schema)
	ensure(t, Put(db, basicMessages, basic("a", 1)))

	for _, id := range []string{"", "b", "A", "a ", "aa"} {
		isnil(t, must(Get(db, basicMessages, basicMessages.ID(id))))
		deepEqual(t, must(Exists(db, basicMessages, basicMessages.ID(id))), false)
	}
	deepEqual(t, must(Exists(db, basicMessages, basicMessages.ID("a"))), true)
}

func TestPutOverwrites(t *testing.T) {
	db := setup(t, testSchema.Schema)

	ensure(t, Put(db, basicMessages, basic("x", 1)))
	ensure(t, Put(db, basicMessages, basic("x", 1)))
	protoEqual(t, must(Get(db, basicMessages, basicMessages.ID("x"))), basic("x", 1))

	ensure(t, Put(db, basicMessages, basic("x", 7)))
	protoEqual(t, must(Get(db, basicMessages, basicMessages.ID("x"))), basic("x", 7))
	deepEqual(t, must(Count(db, basicMessages)), 1)
}

func TestDeleteIdempotent(t *testing.T) {
	db := setup(t, testSchema.Schema)

	ensure(t, Delete(db, basicMessages, basicMessages.ID("never")))
	ensure(t, Put(db, basicMessages, basic("x", 1)))
	ensure(t, Delete(db, basicMessages, basicMessages.ID("x")))
	ensure(t, Delete(db, basicMessages, basicMessages.ID("x")))
	isnil(t, must(Get(db, basicMessages, basicMessages.ID("x"))))
	ensure(t, Delete(db, basicMessages, basicMessages.ID("")))
}

func TestCaseInsensitiveCollection(t *testing.T) {
	db := setup(t, testSchema.Schema)

	ensure(t, Put(db, accounts, account("Test", "first")))
	for _, id := range []string{"test", "Test", "TEST", "tEsT"} {
		protoEqual(t, must(Get(db, accounts, accounts.ID(id))), account("Test", "first"))
	}

	ensure(t, Put(db, accounts, account("TEST", "second")))
	deepEqual(t, must(Count(db, accounts)), 1)
	protoEqual(t, must(Get(db, accounts, accounts.ID("test"))), account("TEST", "second"))

	ensure(t, Delete(db, accounts, accounts.ID("tEST")))
	for _, id := range []string{"test", "Test", "TEST"} {
		isnil(t, must(Get(db, accounts, accounts.ID(id))))
	}
}

func TestCaseInsensitiveUnicode(t *testing.T) {
	db := setup(t, testSchema.Schema)

	ensure(t, Put(db, accounts, account("STRASSE", "x")))
	protoEqual(t, must(Get(db, accounts, accounts.ID("straße"))), account("STRASSE", "x"))
	deepEqual(t, accounts.ID("Ωmega").String(), accounts.ID("ωMEGA").String())
}

func TestCaseSensitiveByDefault(t *testing.T) {
	db := setup(t, testSchema.Schema)

	ensure(t, Put(db, basicMessages, basic("Test", 1)))
	ensure(t, Put(db, basicMessages, basic("test", 2)))
	protoEqual(t, must(Get(db, basicMessages, basicMessages.ID("Test"))), basic("Test", 1))
	protoEqual(t, must(Get(db, basicMessages, basicMessages.ID("test"))), basic("test", 2))
	isnil(t, must(Get(db, basicMessages, basicMessages.ID("TEST"))))
}

func TestSingletonDefaults(t *testing.T) {
	db := setup(t, testSchema.Schema)

	s := must(GetSingle(db, settings))
	isnonnil(t, s)
	protoEqual(t, s, settings.MessageType().New().Interface())

	ensure(t, PutSingle(db, themes, pbdbtest.New(themes.MessageType(), "name", "dark")))
	deepEqual(t, pbdbtest.Get(must(GetSingle(db, themes)), "name"), any("dark"))
	deepEqual(t, pbdbtest.Get(must(GetSingle(db, settings)), "value"), any(uint32(0)))

	ensure(t, DeleteSingle(db, themes))
	deepEqual(t, pbdbtest.Get(must(GetSingle(db, themes)), "name"), any(""))
}

func TestSingletonRecordKey(t *testing.T) {
	db := setup(t, testSchema.Schema)
	ensure(t, PutSingle(db, settings, pbdbtest.New(settings.MessageType(), "value", uint32(5))))

	deepEqual(t, settings.RecordID(), "Settings")
	var keys []string
	ensure(t, db.view("test", SingletonPartition, func(tx storageTx) error {
		return scanRaw(tx, "test", SingletonPartition, func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	}))
	deepEqual(t, keys, []string{"Settings"})
}

func TestPutRejectsBadRecords(t *testing.T) {
	db := setup(t, testSchema.Schema)

	err := Put(db, basicMessages, basic("", 1))
	if !errors.Is(err, ErrEmptyID) {
		t.Errorf("** got %v, wanted ErrEmptyID", err)
	}

	err = Put(db, basicMessages, account("a@b", "wrong type"))
	if !errors.Is(err, ErrWrongType) {
		t.Errorf("** got %v, wanted ErrWrongType", err)
	}

	err = PutSingle(db, settings, pbdbtest.New(themes.MessageType()))
	if !errors.Is(err, ErrWrongType) {
		t.Errorf("** got %v, wanted ErrWrongType", err)
	}
	deepEqual(t, must(Count(db, basicMessages)), 0)
}

func TestForeignID(t *testing.T) {
	db := setup(t, testSchema.Schema)
	ensure(t, Put(db, accounts, account("x", "x")))

	_, err := Get(db, basicMessages, accounts.ID("x"))
	if !errors.Is(err, ErrForeignID) {
		t.Errorf("** got %v, wanted ErrForeignID", err)
	}
	err = Delete(db, basicMessages, Id[*dynamicpb.Message]{})
	if !errors.Is(err, ErrForeignID) {
		t.Errorf("** got %v, wanted ErrForeignID", err)
	}
}

func TestUndeclaredCollection(t *testing.T) {
	other := must(NewDynamicSchema(pbdbtest.FileSet()))
	db := setup(t, testSchema.Schema)

	_, err := Get(db, other.Collection("BasicMessage"), other.Collection("BasicMessage").ID("x"))
	if !errors.Is(err, ErrPartitionMissing) {
		t.Errorf("** got %v, wanted ErrPartitionMissing", err)
	}
	_, err = GetSingle(db, other.Singleton("Settings"))
	if !errors.Is(err, ErrPartitionMissing) {
		t.Errorf("** got %v, wanted ErrPartitionMissing", err)
	}
}

func TestDecodeError(t *testing.T) {
	db := setup(t, testSchema.Schema)
	ensure(t, db.update("test", "BasicMessage", func(tx storageTx) error {
		return tx.Bucket("BasicMessage").Put([]byte("bad"), []byte{0xff, 0xff, 0xff})
	}))

	_, err := Get(db, basicMessages, basicMessages.ID("bad"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("** got %v, wanted DecodeError", err)
	}
	deepEqual(t, de.Partition, "BasicMessage")
	deepEqual(t, string(de.Key), "bad")
	deepEqual(t, de.Data, []byte{0xff, 0xff, 0xff})
	if !strings.Contains(err.Error(), `BasicMessage["bad"]: cannot decode`) {
		t.Errorf("** unexpected message: %v", err)
	}
}

func TestClosedDB(t *testing.T) {
	db := must(Open(InMemory, testSchema.Schema, testOptions()))
	ensure(t, db.Close())
	ensure(t, db.Close())

	_, err := Get(db, basicMessages, basicMessages.ID("x"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("** got %v, wanted ErrClosed", err)
	}
	err = PutSingle(db, settings, pbdbtest.New(settings.MessageType()))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("** got %v, wanted ErrClosed", err)
	}
}

func TestConcurrentReads(t *testing.T) {
	db := setup(t, testSchema.Schema)
	const n = 50
	for i := range n {
		ensure(t, Put(db, basicMessages, basic(fmt.Sprintf("k%02d", i), uint32(i))))
	}

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 100 {
				i := (g*7 + round) % n
				m, err := Get(db, basicMessages, basicMessages.ID(fmt.Sprintf("k%02d", i)))
				if err != nil {
					t.Errorf("** Get: %v", err)
					return
				}
				if v := pbdbtest.Get(m, "value"); v != uint32(i) {
					t.Errorf("** k%02d: got %v", i, v)
				}
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	db := setup(t, testSchema.Schema)

	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				id := fmt.Sprintf("g%d-%d", g, i)
				if err := Put(db, basicMessages, basic(id, uint32(i))); err != nil {
					t.Errorf("** Put: %v", err)
					return
				}
				m, err := Get(db, basicMessages, basicMessages.ID(id))
				if err != nil || m == nil {
					t.Errorf("** Get %s: %v, %v", id, m, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	deepEqual(t, must(Count(db, basicMessages)), 100)
}

func TestScan(t *testing.T) {
	db := setup(t, testSchema.Schema)
	ensure(t, Put(db, basicMessages, basic("b", 2)))
	ensure(t, Put(db, basicMessages, basic("a", 1)))
	ensure(t, Put(db, basicMessages, basic("c", 3)))

	var ids []string
	ensure(t, ForEach(db, basicMessages, func(id Id[*dynamicpb.Message], m *dynamicpb.Message) error {
		ids = append(ids, id.String())
		if id.String() == "b" {
			return Break
		}
		return nil
	}))
	deepEqual(t, ids, []string{"a", "b"})

	all := must(All(db, basicMessages))
	deepEqual(t, len(all), 3)
	protoEqual(t, all[2], basic("c", 3))

	failure := errors.New("stop")
	err := ForEach(db, basicMessages, func(Id[*dynamicpb.Message], *dynamicpb.Message) error {
		return failure
	})
	deepEqual(t, err, failure)
}

func TestStats(t *testing.T) {
	db := setup(t, testSchema.Schema)
	ensure(t, Put(db, basicMessages, basic("a", 1)))
	ensure(t, Put(db, basicMessages, basic("b", 2)))

	s := must(Stats(db, basicMessages))
	deepEqual(t, s.Partition, "BasicMessage")
	deepEqual(t, s.Records, 2)
	if s.Created.IsZero() {
		t.Errorf("** Created not set")
	}

	all := must(db.AllStats())
	deepEqual(t, len(all), 3)
	deepEqual(t, all[2].Partition, SingletonPartition)
	if db.WriteCount.Load() < 2 {
		t.Errorf("** WriteCount = %d", db.WriteCount.Load())
	}
}

func TestDump(t *testing.T) {
	db := setup(t, testSchema.Schema)
	ensure(t, Put(db, basicMessages, basic("a", 1)))
	ensure(t, PutSingle(db, themes, pbdbtest.New(themes.MessageType(), "name", "dark")))

	var buf bytes.Buffer
	ensure(t, db.Dump(&buf, DumpAll))
	out := buf.String()
	for _, s := range []string{"BasicMessage (1 records, key id)", `BasicMessage["a"] = {`, "Account (0 records, key email, case-insensitive)", "Settings = <default>", "Theme = {", "dark"} {
		if !strings.Contains(out, s) {
			t.Errorf("** dump lacks %q:\n%s", s, out)
		}
	}
}

func TestVerboseLogging(t *testing.T) {
	var buf bytes.Buffer
	opt := testOptions()
	opt.Verbose = true
	opt.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	db := must(Open(InMemory, testSchema.Schema, opt))
	defer db.Close()

	ensure(t, Put(db, basicMessages, basic("a", 1)))
	_ = must(Get(db, basicMessages, basicMessages.ID("a")))
	out := buf.String()
	for _, s := range []string{"pbdb: OPEN", "pbdb: PUT", "pbdb: GET", "partition=BasicMessage", "key=a"} {
		if !strings.Contains(out, s) {
			t.Errorf("** log lacks %q:\n%s", s, out)
		}
	}
}

func testOptions() Options {
	opt := DefaultOptions()
	opt.IsTesting = true
	return opt
}

func setup(t testing.TB, scm *Schema) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	t.Logf("DB: %s", path)
	db := must(Open(path, scm, testOptions()))
	t.Cleanup(func() { db.Close() })
	return db
}

func ensure(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** %v", err)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func protoEqual(t testing.TB, a, e proto.Message) {
	if !proto.Equal(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got %v, wanted nil", a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Errorf("** got nil %T, wanted non-nil", a)
	}
}
