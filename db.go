package pbdb

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Engine selects the storage engine behind a DB.
type Engine int

const (
	// EngineBolt stores the database in a single bbolt file.
	EngineBolt Engine = iota
	// EngineBadger stores the database in a badger directory.
	EngineBadger
	// EngineMemory keeps the database in memory until it is closed.
	EngineMemory
)

func (e Engine) String() string {
	switch e {
	case EngineBolt:
		return "bolt"
	case EngineBadger:
		return "badger"
	case EngineMemory:
		return "memory"
	default:
		return fmt.Sprintf("Engine(%d)", int(e))
	}
}

// ParseEngine is the inverse of Engine.String.
func ParseEngine(s string) (Engine, error) {
	switch s {
	case "", "bolt":
		return EngineBolt, nil
	case "badger":
		return EngineBadger, nil
	case "memory":
		return EngineMemory, nil
	default:
		return 0, fmt.Errorf("unknown engine %q", s)
	}
}

// InMemory is a path that opens a transient database. With EngineBadger it
// selects badger's in-memory mode, otherwise EngineMemory.
const InMemory = ":memory:"

type Options struct {
	// CreateIfMissing creates the database file or directory when it does not
	// exist.
	CreateIfMissing bool

	// CreateMissingPartitions creates partitions of newly declared
	// collections. Without it, Open fails with ErrPartitionMissing.
	CreateMissingPartitions bool

	Engine Engine

	// LockTimeout is how long Open waits for another process to release a
	// bbolt file. Zero means 10 seconds.
	LockTimeout time.Duration

	// Logger receives verbose operation logs and engine messages. Defaults
	// to slog.Default().
	Logger *slog.Logger

	// Verbose logs every operation at Info level.
	Verbose bool

	// IsTesting trades durability for speed.
	IsTesting bool

	// MmapSize overrides the initial bbolt mmap size.
	MmapSize int
}

// DefaultOptions returns options that create the database and its
// partitions as needed.
func DefaultOptions() Options {
	return Options{
		CreateIfMissing:         true,
		CreateMissingPartitions: true,
	}
}

// DB is an open database. All methods and operations are safe for
// concurrent use; each operation runs in its own engine transaction.
type DB struct {
	stor    storage
	schema  *Schema
	path    string
	engine  Engine
	logger  *slog.Logger
	verbose bool

	mu     sync.RWMutex
	closed bool

	lastSize   atomic.Int64
	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

// Open opens or creates the database at path with the partitions declared by
// scm. SingletonPartition is always created.
func Open(path string, scm *Schema, opt Options) (*DB, error) {
	if err := scm.Validate(); err != nil {
		return nil, err
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := opt.Engine
	if path == InMemory && engine == EngineBolt {
		engine = EngineMemory
	}

	var stor storage
	var err error
	switch engine {
	case EngineBolt:
		stor, err = openBoltStorage(path, opt)
	case EngineBadger:
		stor, err = openBadgerStorage(path, opt, logger)
	case EngineMemory:
		stor = newMemStorage()
	default:
		err = fmt.Errorf("unknown engine %v", engine)
	}
	if err != nil {
		return nil, engineErr("open", "", fmt.Errorf("%s: %w", path, err))
	}

	db := &DB{
		stor:    stor,
		schema:  scm,
		path:    path,
		engine:  engine,
		logger:  logger,
		verbose: opt.Verbose,
	}
	err = db.provision(opt.CreateMissingPartitions, time.Now())
	if err != nil {
		stor.Close()
		return nil, err
	}
	if db.verbose {
		db.logger.Info("pbdb: OPEN", "path", path, "engine", engine.String(), "collections", len(scm.collections), "singletons", len(scm.singletons))
	}
	return db, nil
}

func (db *DB) Schema() *Schema {
	return db.schema
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) Engine() Engine {
	return db.engine
}

// Size returns the database size as of the last write transaction.
func (db *DB) Size() int64 {
	return db.lastSize.Load()
}

// Close waits for in-flight operations and closes the engine. Later
// operations fail with ErrClosed. Closing a closed DB is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if db.verbose {
		db.logger.Info("pbdb: CLOSE", "path", db.path)
	}
	if err := db.stor.Close(); err != nil {
		return engineErr("close", "", err)
	}
	return nil
}

// Handle is what operations accept: a *DB, or Ambient.
type Handle interface {
	// acquire returns the database with its read lock held; release must be
	// called when the operation ends.
	acquire() (db *DB, release func(), err error)
}

func (db *DB) acquire() (*DB, func(), error) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, nil, ErrClosed
	}
	return db, db.mu.RUnlock, nil
}
