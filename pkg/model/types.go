package model

import (
	"time"

	"github.com/google/uuid"
)

// Object is an entity in the knowledge store, e.g. an IP address or a domain.
// Objects are immutable once created.
type Object struct {
	ID     uuid.UUID `json:"id"`
	TypeID uuid.UUID `json:"typeId"`
	Value  string    `json:"value"`
}

// Binding associates one Object with a Fact. Direction is relative to the Object.
type Binding struct {
	ObjectID  uuid.UUID `json:"objectId"`
	Direction Direction `json:"direction"`
}

// ObjectFactBinding is a Binding seen from the Object side, as stored in the
// object->fact index.
type ObjectFactBinding struct {
	ObjectID  uuid.UUID `json:"objectId"`
	FactID    uuid.UUID `json:"factId"`
	Direction Direction `json:"direction"`
}

// AclEntry grants one subject explicit access to a Fact.
type AclEntry struct {
	SubjectID uuid.UUID `json:"subjectId"`
	OriginID  uuid.UUID `json:"originId"`
	Timestamp time.Time `json:"timestamp"`
}

// Fact is a typed relationship or observation. Its Bindings connect it to
// zero or more Objects; a Fact with InReferenceTo set is a meta-fact about
// another Fact.
type Fact struct {
	ID                uuid.UUID  `json:"id"`
	TypeID            uuid.UUID  `json:"typeId"`
	Value             string     `json:"value,omitempty"`
	InReferenceTo     *uuid.UUID `json:"inReferenceTo,omitempty"`
	OrganizationID    uuid.UUID  `json:"organizationId"`
	OriginID          uuid.UUID  `json:"originId"`
	AddedByID         uuid.UUID  `json:"addedById"`
	AccessMode        AccessMode `json:"accessMode"`
	Flags             Flag       `json:"flags"`
	Bindings          []Binding  `json:"bindings,omitempty"`
	ACL               []AclEntry `json:"acl,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
	LastSeenTimestamp time.Time  `json:"lastSeenTimestamp"`
}

// HasFlag reports whether the Fact carries the given flag.
func (f *Fact) HasFlag(flag Flag) bool {
	return f != nil && f.Flags.Has(flag)
}

// InACL reports whether subject is listed in the Fact's ACL.
func (f *Fact) InACL(subject uuid.UUID) bool {
	if f == nil {
		return false
	}
	for _, e := range f.ACL {
		if e.SubjectID == subject {
			return true
		}
	}
	return false
}

// ObjectType names a class of Objects. Its name is used as the vertex label.
type ObjectType struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// FactType names a class of Facts. Its name is used as the edge label.
type FactType struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
