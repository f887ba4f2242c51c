package pbdb

import (
	"sync"
)

// Ambient is the process-wide database handle. Install a database with
// OpenAmbient, then pass Ambient to operations instead of a *DB.
var Ambient Handle = ambientHandle{}

var ambient struct {
	mu sync.RWMutex
	db *DB
}

type ambientHandle struct{}

func (ambientHandle) acquire() (*DB, func(), error) {
	ambient.mu.RLock()
	db := ambient.db
	if db == nil {
		ambient.mu.RUnlock()
		return nil, nil, ErrNotInitialized
	}
	_, release, err := db.acquire()
	if err != nil {
		ambient.mu.RUnlock()
		return nil, nil, err
	}
	return db, func() {
		release()
		ambient.mu.RUnlock()
	}, nil
}

// Guard owns the ambient database installed by OpenAmbient.
type Guard struct {
	db   *DB
	once sync.Once
	err  error
}

// OpenAmbient opens the database like Open and installs it as Ambient. It
// fails with ErrAlreadyOpen while another guard is unreleased.
func OpenAmbient(path string, scm *Schema, opt Options) (*Guard, error) {
	ambient.mu.Lock()
	defer ambient.mu.Unlock()
	if ambient.db != nil {
		return nil, ErrAlreadyOpen
	}
	db, err := Open(path, scm, opt)
	if err != nil {
		return nil, err
	}
	ambient.db = db
	return &Guard{db: db}, nil
}

// DB returns the installed database, for use as an explicit handle.
func (g *Guard) DB() *DB {
	return g.db
}

// Release uninstalls the ambient database and closes it, waiting for
// in-flight operations. Only the first call has an effect.
func (g *Guard) Release() error {
	g.once.Do(func() {
		ambient.mu.Lock()
		defer ambient.mu.Unlock()
		if ambient.db == g.db {
			ambient.db = nil
		}
		g.err = g.db.Close()
	})
	return g.err
}
