package pbdb

import (
	"fmt"
	"slices"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	// SingletonPartition holds every singleton record, keyed by
	// Singleton.RecordID.
	SingletonPartition = "__SingleRecord"

	// metaPartition holds a partitionState document per collection.
	metaPartition = "__pbdb"
)

// Schema is the set of collections and singletons a database is opened with.
// Define collections and singletons at package initialization; a Schema must
// not be modified after it is passed to Open.
type Schema struct {
	collections   []CollectionDef
	collsByName   map[string]CollectionDef
	singletons    []SingletonDef
	singlesByName map[string]SingletonDef
}

func NewSchema() *Schema {
	return &Schema{
		collsByName:   make(map[string]CollectionDef),
		singlesByName: make(map[string]SingletonDef),
	}
}

// CollectionDef is the untyped view of a Collection.
type CollectionDef interface {
	Name() string
	KeyField() string
	IsCaseInsensitive() bool
	MessageType() protoreflect.MessageType

	resolve() error
	decodeAny(key, raw []byte) (proto.Message, error)
}

// SingletonDef is the untyped view of a Singleton.
type SingletonDef interface {
	Name() string
	RecordID() string
	MessageType() protoreflect.MessageType

	resolve() error
	decodeAny(raw []byte) (proto.Message, error)
}

func (scm *Schema) Collections() []CollectionDef {
	return slices.Clone(scm.collections)
}

func (scm *Schema) Singletons() []SingletonDef {
	return slices.Clone(scm.singletons)
}

func (scm *Schema) CollectionNamed(name string) CollectionDef {
	return scm.collsByName[name]
}

func (scm *Schema) SingletonNamed(name string) SingletonDef {
	return scm.singlesByName[name]
}

// Partitions lists every partition a database opened with this schema has:
// one per collection, followed by the reserved partitions.
func (scm *Schema) Partitions() []string {
	names := make([]string, 0, len(scm.collections)+2)
	for _, c := range scm.collections {
		names = append(names, c.Name())
	}
	return append(names, SingletonPartition, metaPartition)
}

// Validate resolves the message type of every collection and singleton,
// reporting the first one that does not match its definition.
func (scm *Schema) Validate() error {
	for _, c := range scm.collections {
		if err := c.resolve(); err != nil {
			return err
		}
	}
	for _, s := range scm.singletons {
		if err := s.resolve(); err != nil {
			return err
		}
	}
	return nil
}

func (scm *Schema) addCollection(c CollectionDef) {
	name := c.Name()
	if isReservedName(name) {
		panic(fmt.Errorf("pbdb: collection name %q is reserved", name))
	}
	if scm.collsByName[name] != nil || scm.singlesByName[name] != nil {
		panic(fmt.Errorf("pbdb: schema already has a record type named %q", name))
	}
	scm.collections = append(scm.collections, c)
	scm.collsByName[name] = c
}

func (scm *Schema) addSingleton(s SingletonDef) {
	name := s.Name()
	if scm.collsByName[name] != nil || scm.singlesByName[name] != nil {
		panic(fmt.Errorf("pbdb: schema already has a record type named %q", name))
	}
	scm.singletons = append(scm.singletons, s)
	scm.singlesByName[name] = s
}

func (scm *Schema) hasCollection(c CollectionDef) bool {
	return scm.collsByName[c.Name()] == c
}

func (scm *Schema) hasSingleton(s SingletonDef) bool {
	return scm.singlesByName[s.Name()] == s
}

func isReservedName(name string) bool {
	return name == SingletonPartition || name == metaPartition
}
