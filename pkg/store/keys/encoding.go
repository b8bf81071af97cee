package keys

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Prefix constants for the record types and indexes.
const (
	ObjectPrefix     byte = 0x01 // Object records
	FactPrefix       byte = 0x02 // Fact records
	BindingPrefix    byte = 0x03 // Object -> Fact binding index
	MetaFactPrefix   byte = 0x04 // Referenced Fact -> meta-fact index
	ObjectTypePrefix byte = 0x05 // Object type records
	FactTypePrefix   byte = 0x06 // Fact type records
	TypeNamePrefix   byte = 0x07 // Type name hash -> type id
)

// Key size constants
const (
	PrefixSize = 1
	IDSize     = 16
	HashSize   = 8

	// prefix(1) + id(16) = 17 bytes
	RecordKeySize = PrefixSize + IDSize
	// prefix(1) + id(16) + id(16) = 33 bytes
	PairKeySize = PrefixSize + 2*IDSize
	// prefix(1) + kind(1) + hash(8) = 10 bytes
	TypeNameKeySize = PrefixSize + 1 + HashSize
)

// Record keys: [prefix(1) | id(16)]

func encodeRecordKey(prefix byte, id uuid.UUID) []byte {
	key := make([]byte, RecordKeySize)
	key[0] = prefix
	copy(key[1:], id[:])
	return key
}

// EncodeObjectKey returns the key of an Object record.
func EncodeObjectKey(id uuid.UUID) []byte { return encodeRecordKey(ObjectPrefix, id) }

// EncodeFactKey returns the key of a Fact record.
func EncodeFactKey(id uuid.UUID) []byte { return encodeRecordKey(FactPrefix, id) }

// EncodeObjectTypeKey returns the key of an ObjectType record.
func EncodeObjectTypeKey(id uuid.UUID) []byte { return encodeRecordKey(ObjectTypePrefix, id) }

// EncodeFactTypeKey returns the key of a FactType record.
func EncodeFactTypeKey(id uuid.UUID) []byte { return encodeRecordKey(FactTypePrefix, id) }

// Pair keys: [prefix(1) | lead(16) | fact(16)]
// BindingPrefix leads with the Object, MetaFactPrefix with the referenced Fact.
// Both sort by lead id so a prefix scan returns every row for one lead.

func encodePairKey(prefix byte, lead, fact uuid.UUID) []byte {
	key := make([]byte, PairKeySize)
	key[0] = prefix
	copy(key[1:17], lead[:])
	copy(key[17:33], fact[:])
	return key
}

func encodePairPrefix(prefix byte, lead uuid.UUID) []byte {
	key := make([]byte, PrefixSize+IDSize)
	key[0] = prefix
	copy(key[1:], lead[:])
	return key
}

func decodePairKey(prefix byte, key []byte) (lead, fact uuid.UUID, err error) {
	if len(key) != PairKeySize || key[0] != prefix {
		return uuid.Nil, uuid.Nil, fmt.Errorf("malformed key %x for prefix 0x%02x", key, prefix)
	}
	copy(lead[:], key[1:17])
	copy(fact[:], key[17:33])
	return lead, fact, nil
}

// EncodeBindingKey returns the binding index key of (object, fact).
func EncodeBindingKey(objectID, factID uuid.UUID) []byte {
	return encodePairKey(BindingPrefix, objectID, factID)
}

// EncodeBindingPrefix returns the scan prefix for all bindings of objectID.
func EncodeBindingPrefix(objectID uuid.UUID) []byte {
	return encodePairPrefix(BindingPrefix, objectID)
}

// DecodeBindingKey splits a binding index key.
func DecodeBindingKey(key []byte) (objectID, factID uuid.UUID, err error) {
	return decodePairKey(BindingPrefix, key)
}

// EncodeMetaFactKey returns the meta-fact index key of (referenced, fact).
func EncodeMetaFactKey(referencedID, factID uuid.UUID) []byte {
	return encodePairKey(MetaFactPrefix, referencedID, factID)
}

// EncodeMetaFactPrefix returns the scan prefix for all meta-facts of referencedID.
func EncodeMetaFactPrefix(referencedID uuid.UUID) []byte {
	return encodePairPrefix(MetaFactPrefix, referencedID)
}

// DecodeMetaFactKey splits a meta-fact index key.
func DecodeMetaFactKey(key []byte) (referencedID, factID uuid.UUID, err error) {
	return decodePairKey(MetaFactPrefix, key)
}

// EncodeTypeNameKey returns the lookup key of a type name. kind is
// ObjectTypePrefix or FactTypePrefix.
// Format: [TypeNamePrefix(1) | kind(1) | xxhash64(name)(8)]
func EncodeTypeNameKey(kind byte, name string) []byte {
	key := make([]byte, TypeNameKeySize)
	key[0] = TypeNamePrefix
	key[1] = kind
	binary.BigEndian.PutUint64(key[2:], xxhash.Sum64String(name))
	return key
}
