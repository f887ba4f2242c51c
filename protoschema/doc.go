/*
Package protoschema derives pbdb storage metadata from compiled protobuf
descriptors.

A message becomes a collection when exactly one of its fields carries the
pbdb_id option. The identifier field must be a singular string. A message
without an identifier field becomes a singleton record when it carries the
pbdb_singleton message option; every other message is ignored.

	syntax = "proto3";
	import "pbdb.proto";

	message BasicMessage {
	  string id = 1 [(pbdb.pbdb_id) = true];
	  uint32 value = 2;
	}

	message Settings {
	  option (pbdb.pbdb_singleton) = true;
	  uint32 value = 1;
	}

Collections may also set pbdb_case_insensitive, making identifiers that
differ only in case address the same record.

The options are read from FieldOptions and MessageOptions whether or not the
extension was resolved when the descriptor set was decoded, so a descriptor
set produced by protoc can be fed to Analyze as is.
*/
package protoschema
