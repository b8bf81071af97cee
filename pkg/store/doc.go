// Package store persists Objects, Facts and their types in BadgerDB.
//
// Records are JSON encoded and s2 compressed. Two secondary indexes are kept
// in the same keyspace: Object -> Fact bindings, and referenced Fact ->
// meta-fact. See package keys for the layout.
package store
