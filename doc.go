/*
Package pbdb persists protocol buffer messages in an embedded key-value
store (bbolt by default, or badger).

We implement:

1. Collections, keyed sets of records of one message type. The key is a string
field marked with the (pbdb.pbdb_id) field option.

2. Singletons, message types with exactly one stored record, marked with the
(pbdb.pbdb_singleton) message option. An absent singleton reads as the empty
message.

3. Case-insensitive collections, marked with (pbdb.pbdb_case_insensitive),
whose identifiers are Unicode case-folded before use.

Schemas are either generated Go code (see the codegen package and the pbdb
command) or built at run time from a descriptor set with NewDynamicSchema.

# Handles

Every operation takes a Handle: either a *DB returned by Open, or Ambient,
the process-wide handle installed by OpenAmbient. Operations through Ambient
fail with ErrNotInitialized until a database is installed; releasing the
returned Guard closes it.

# Technical Details

**Partitions.**
Each collection has its own partition named after the simple message name.
All singletons share SingletonPartition, keyed by the simple message name.
In bbolt partitions are buckets; badger has a flat keyspace and uses key
prefixes.

**Partition states.**
We store a meta document per collection in a reserved partition, holding the
key field, case folding flag and creation time. Open refuses to flip case
folding of a non-empty collection.

**Values.**
Records are stored as deterministic protobuf wire encoding, with no header.
Partition states are msgpack.
*/
package pbdb
