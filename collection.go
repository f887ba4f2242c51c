package pbdb

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"golang.org/x/text/cases"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

type CollectionOpt int

const (
	// CaseInsensitive folds identifier case, so that "Test", "test" and
	// "TEST" address the same record.
	CaseInsensitive = CollectionOpt(1)
)

// Collection is a partition of records of type M keyed by a string field.
type Collection[M proto.Message] struct {
	name            string
	keyField        string
	caseInsensitive bool

	resolveOnce sync.Once
	mt          protoreflect.MessageType
	keyFD       protoreflect.FieldDescriptor
	err         error
}

// DefineCollection adds a collection of generated message type M to scm,
// keyed by the proto field named keyField. name must be the simple message
// name.
//
// The message type is resolved lazily, so that collections can be defined
// in package-level vars before generated descriptors are initialized; Open
// reports a mismatch between M, name and keyField.
func DefineCollection[M proto.Message](scm *Schema, name, keyField string, opts ...CollectionOpt) *Collection[M] {
	c := &Collection[M]{
		name:     name,
		keyField: keyField,
	}
	c.applyOpts(opts)
	scm.addCollection(c)
	return c
}

// DefineCollectionOf is DefineCollection for an explicit message type, which
// is how dynamic messages are registered. It panics if mt does not fit.
func DefineCollectionOf[M proto.Message](scm *Schema, mt protoreflect.MessageType, keyField string, opts ...CollectionOpt) *Collection[M] {
	c := &Collection[M]{
		name:     string(mt.Descriptor().Name()),
		keyField: keyField,
		mt:       mt,
	}
	c.applyOpts(opts)
	if err := c.resolve(); err != nil {
		panic(err)
	}
	scm.addCollection(c)
	return c
}

func (c *Collection[M]) applyOpts(opts []CollectionOpt) {
	for _, opt := range opts {
		switch opt {
		case CaseInsensitive:
			c.caseInsensitive = true
		default:
			panic(fmt.Errorf("DefineCollection(%s): invalid option %d", c.name, int(opt)))
		}
	}
}

func (c *Collection[M]) resolve() error {
	c.resolveOnce.Do(func() {
		mt := c.mt
		if mt == nil {
			mt, c.err = zeroMessageType[M]()
			if c.err != nil {
				return
			}
		}
		md := mt.Descriptor()
		if err := checkMessageType[M](c.name, mt); err != nil {
			c.err = err
			return
		}
		fd := md.Fields().ByName(protoreflect.Name(c.keyField))
		if fd == nil {
			c.err = fmt.Errorf("pbdb: %s: no field named %q", c.name, c.keyField)
			return
		}
		if fd.Kind() != protoreflect.StringKind || fd.Cardinality() == protoreflect.Repeated {
			c.err = fmt.Errorf("pbdb: %s: key field %s must be a singular string", c.name, c.keyField)
			return
		}
		c.mt, c.keyFD = mt, fd
	})
	return c.err
}

func (c *Collection[M]) mustResolve() {
	if err := c.resolve(); err != nil {
		panic(err)
	}
}

// zeroMessageType returns the message type of a generated M via its nil
// value. Dynamic message types can't be found this way.
func zeroMessageType[M proto.Message]() (mt protoreflect.MessageType, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pbdb: cannot determine message type of %v: %v", reflect.TypeFor[M](), p)
		}
	}()
	var zero M
	return zero.ProtoReflect().Type(), nil
}

func checkMessageType[M proto.Message](name string, mt protoreflect.MessageType) error {
	if n := string(mt.Descriptor().Name()); n != name {
		return fmt.Errorf("pbdb: %s: message type is named %s", name, n)
	}
	if _, ok := mt.New().Interface().(M); !ok {
		return fmt.Errorf("pbdb: %s: message type creates %T, wanted %v", name, mt.New().Interface(), reflect.TypeFor[M]())
	}
	return nil
}

func (c *Collection[M]) Name() string {
	return c.name
}

func (c *Collection[M]) KeyField() string {
	return c.keyField
}

func (c *Collection[M]) IsCaseInsensitive() bool {
	return c.caseInsensitive
}

func (c *Collection[M]) MessageType() protoreflect.MessageType {
	c.mustResolve()
	return c.mt
}

// ID returns the key of the record with identifier s.
func (c *Collection[M]) ID(s string) Id[M] {
	if c.caseInsensitive {
		s = cases.Fold().String(s)
	}
	return Id[M]{coll: c.name, key: s}
}

// IDOf returns the key of m.
func (c *Collection[M]) IDOf(m M) Id[M] {
	return c.ID(c.identifier(m))
}

func (c *Collection[M]) identifier(m M) string {
	c.mustResolve()
	return m.ProtoReflect().Get(c.keyFD).String()
}

func (c *Collection[M]) checkRecord(m M) error {
	if err := c.resolve(); err != nil {
		return err
	}
	r := m.ProtoReflect()
	if !r.IsValid() || r.Descriptor().FullName() != c.mt.Descriptor().FullName() {
		return fmt.Errorf("%w: %s expects %s", ErrWrongType, c.name, c.mt.Descriptor().FullName())
	}
	return nil
}

func (c *Collection[M]) checkID(id Id[M]) error {
	if id.coll != c.name {
		return fmt.Errorf("%w: %s id used with %s", ErrForeignID, id.coll, c.name)
	}
	return nil
}

func (c *Collection[M]) newRecord() M {
	c.mustResolve()
	return c.mt.New().Interface().(M)
}

func (c *Collection[M]) decode(key, raw []byte) (M, error) {
	m := c.newRecord()
	if err := unmarshalRecord(raw, m); err != nil {
		var zero M
		return zero, decodeErr(c.name, slices.Clone(key), slices.Clone(raw), err)
	}
	return m, nil
}

func (c *Collection[M]) decodeAny(key, raw []byte) (proto.Message, error) {
	return c.decode(key, raw)
}

// Id is the storage key of a record in a collection of M. Ids are created by
// Collection.ID and Collection.IDOf, which apply the collection's case
// folding, and are only valid for that collection.
type Id[M proto.Message] struct {
	coll string
	key  string
}

func (id Id[M]) Collection() string {
	return id.coll
}

// String returns the encoded identifier (case-folded for case-insensitive
// collections).
func (id Id[M]) String() string {
	return id.key
}

func (id Id[M]) Bytes() []byte {
	return []byte(id.key)
}

func (id Id[M]) IsZero() bool {
	return id.coll == ""
}

// Singleton is a record type with exactly one stored instance.
type Singleton[M proto.Message] struct {
	name string

	resolveOnce sync.Once
	mt          protoreflect.MessageType
	err         error
}

// DefineSingleton adds singleton record type M, named name, to scm. Like
// DefineCollection, the message type is resolved lazily.
func DefineSingleton[M proto.Message](scm *Schema, name string) *Singleton[M] {
	s := &Singleton[M]{name: name}
	scm.addSingleton(s)
	return s
}

// DefineSingletonOf is DefineSingleton for an explicit message type.
func DefineSingletonOf[M proto.Message](scm *Schema, mt protoreflect.MessageType) *Singleton[M] {
	s := &Singleton[M]{
		name: string(mt.Descriptor().Name()),
		mt:   mt,
	}
	if err := s.resolve(); err != nil {
		panic(err)
	}
	scm.addSingleton(s)
	return s
}

func (s *Singleton[M]) resolve() error {
	s.resolveOnce.Do(func() {
		mt := s.mt
		if mt == nil {
			mt, s.err = zeroMessageType[M]()
			if s.err != nil {
				return
			}
		}
		s.err = checkMessageType[M](s.name, mt)
		s.mt = mt
	})
	return s.err
}

func (s *Singleton[M]) mustResolve() {
	if err := s.resolve(); err != nil {
		panic(err)
	}
}

func (s *Singleton[M]) Name() string {
	return s.name
}

// RecordID is the key of the record in SingletonPartition: the simple
// message name, case preserved.
func (s *Singleton[M]) RecordID() string {
	return s.name
}

func (s *Singleton[M]) MessageType() protoreflect.MessageType {
	s.mustResolve()
	return s.mt
}

func (s *Singleton[M]) newRecord() M {
	s.mustResolve()
	return s.mt.New().Interface().(M)
}

func (s *Singleton[M]) checkRecord(m M) error {
	if err := s.resolve(); err != nil {
		return err
	}
	r := m.ProtoReflect()
	if !r.IsValid() || r.Descriptor().FullName() != s.mt.Descriptor().FullName() {
		return fmt.Errorf("%w: %s expects %s", ErrWrongType, s.name, s.mt.Descriptor().FullName())
	}
	return nil
}

func (s *Singleton[M]) decode(raw []byte) (M, error) {
	m := s.newRecord()
	if err := unmarshalRecord(raw, m); err != nil {
		var zero M
		return zero, decodeErr(SingletonPartition, []byte(s.name), slices.Clone(raw), err)
	}
	return m, nil
}

func (s *Singleton[M]) decodeAny(raw []byte) (proto.Message, error) {
	return s.decode(raw)
}
