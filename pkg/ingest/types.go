package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Dataset is the import file format. Types are referenced by name; ids are
// optional for types and required for Objects and Facts.
type Dataset struct {
	ObjectTypes []TypeRecord   `json:"objectTypes"`
	FactTypes   []TypeRecord   `json:"factTypes"`
	Objects     []ObjectRecord `json:"objects"`
	Facts       []FactRecord   `json:"facts"`
}

type TypeRecord struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type ObjectRecord struct {
	ID    uuid.UUID `json:"id"`
	Type  string    `json:"type"`
	Value string    `json:"value"`
}

type BindingRecord struct {
	Object    uuid.UUID `json:"object"`
	Direction string    `json:"direction"`
}

type FactRecord struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	Value         string          `json:"value"`
	InReferenceTo *uuid.UUID      `json:"inReferenceTo,omitempty"`
	Organization  uuid.UUID       `json:"organization"`
	Origin        uuid.UUID       `json:"origin"`
	AddedBy       uuid.UUID       `json:"addedBy"`
	AccessMode    string          `json:"accessMode"`
	Bindings      []BindingRecord `json:"bindings"`
	ACL           []uuid.UUID     `json:"acl"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Stats counts the imported records.
type Stats struct {
	ObjectTypes int `json:"objectTypes"`
	FactTypes   int `json:"factTypes"`
	Objects     int `json:"objects"`
	Facts       int `json:"facts"`
	Retracted   int `json:"retracted"`
}
