package pbdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInitialized is returned by operations on Ambient when no database
	// is installed.
	ErrNotInitialized = errors.New("pbdb: database not initialized")

	// ErrAlreadyOpen is returned by OpenAmbient when a database is already
	// installed. Release its Guard first.
	ErrAlreadyOpen = errors.New("pbdb: ambient database already open")

	// ErrLocked is returned by Open when another instance holds the database
	// open for longer than Options.LockTimeout.
	ErrLocked = errors.New("database is locked by another process")

	// ErrClosed is returned by operations on a closed DB.
	ErrClosed = errors.New("pbdb: database closed")

	// ErrPartitionMissing means that a collection or singleton is not part of
	// the schema the database was opened with, or that its partition does not
	// exist and creating it was not allowed.
	ErrPartitionMissing = errors.New("partition missing")

	// ErrSchemaChanged means that a collection switched between case-sensitive
	// and case-insensitive identifiers while it already holds records.
	ErrSchemaChanged = errors.New("identifier case folding changed")

	// ErrForeignID is returned when an Id of one collection is used with another.
	ErrForeignID = errors.New("pbdb: id belongs to another collection")

	// ErrWrongType is returned when a record's message type does not match
	// the collection or singleton.
	ErrWrongType = errors.New("pbdb: wrong record type")

	// ErrEmptyID is returned by Put for records with an empty identifier.
	ErrEmptyID = errors.New("pbdb: empty record identifier")
)

// EngineError wraps a failure reported by the storage engine.
type EngineError struct {
	Op        string
	Partition string
	Err       error
}

func engineErr(op, partition string, err error) error {
	return &EngineError{op, partition, err}
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Error() string {
	var buf strings.Builder
	buf.WriteString("pbdb: ")
	buf.WriteString(e.Op)
	if e.Partition != "" {
		buf.WriteByte(' ')
		buf.WriteString(e.Partition)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// DecodeError reports stored bytes that do not parse as the expected record
// type.
type DecodeError struct {
	Partition string
	Key       []byte
	Data      []byte
	Err       error
}

func decodeErr(partition string, key, data []byte, err error) error {
	return &DecodeError{partition, key, data, err}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var data string
	if n <= prefixLen+suffixLen {
		data = fmt.Sprintf("(%d) %x", n, e.Data)
	} else {
		data = fmt.Sprintf("(%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	return fmt.Sprintf("pbdb: %s[%s]: cannot decode: %v: %s", e.Partition, displayKey(e.Key), e.Err, data)
}
