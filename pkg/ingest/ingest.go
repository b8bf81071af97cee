package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const MaxWorkers = 8

// typeNamespace derives stable ids for types declared by name only.
var typeNamespace = uuid.MustParse("6f1c2f4e-9d0b-4c8e-8a55-2f0d7c1b9e31")

// Store is the write side of the primary store.
type Store interface {
	SaveObjectType(ctx context.Context, t *model.ObjectType) error
	SaveFactType(ctx context.Context, t *model.FactType) error
	SaveObject(ctx context.Context, obj *model.Object) error
	SaveFact(ctx context.Context, fact *model.Fact) error
	SetFlags(ctx context.Context, factID uuid.UUID, flags model.Flag) error
}

// Options control an import.
type Options struct {
	// RetractionType names the FactType whose Facts retract their
	// InReferenceTo target. Targets get the RetractedHint flag.
	RetractionType string
}

// Run imports path, a dataset file or a directory of *.json datasets.
func Run(ctx context.Context, s Store, path string, opts Options) (Stats, error) {
	var files []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && (p == path || strings.HasSuffix(p, ".json")) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list %s: %w", path, err)
	}

	var total Stats
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return total, err
		}
		var ds Dataset
		if err := json.Unmarshal(data, &ds); err != nil {
			return total, fmt.Errorf("failed to parse %s: %w", f, err)
		}
		st, err := Import(ctx, s, &ds, opts)
		if err != nil {
			return total, fmt.Errorf("failed to import %s: %w", f, err)
		}
		total.ObjectTypes += st.ObjectTypes
		total.FactTypes += st.FactTypes
		total.Objects += st.Objects
		total.Facts += st.Facts
		total.Retracted += st.Retracted
		slog.Info("dataset imported", "file", f, "objects", st.Objects, "facts", st.Facts)
	}
	return total, nil
}

// Import writes one dataset. Types are written first, then Objects in
// parallel, then Facts, then retraction hints.
func Import(ctx context.Context, s Store, ds *Dataset, opts Options) (Stats, error) {
	var st Stats
	objectTypes := make(map[string]uuid.UUID)
	factTypes := make(map[string]uuid.UUID)

	objectType := func(rec TypeRecord) (uuid.UUID, error) {
		if id, ok := objectTypes[rec.Name]; ok {
			return id, nil
		}
		id := typeID(rec, "object")
		if err := s.SaveObjectType(ctx, &model.ObjectType{ID: id, Name: rec.Name}); err != nil {
			return uuid.Nil, err
		}
		objectTypes[rec.Name] = id
		st.ObjectTypes++
		return id, nil
	}
	factType := func(rec TypeRecord) (uuid.UUID, error) {
		if id, ok := factTypes[rec.Name]; ok {
			return id, nil
		}
		id := typeID(rec, "fact")
		if err := s.SaveFactType(ctx, &model.FactType{ID: id, Name: rec.Name}); err != nil {
			return uuid.Nil, err
		}
		factTypes[rec.Name] = id
		st.FactTypes++
		return id, nil
	}

	for _, rec := range ds.ObjectTypes {
		if _, err := objectType(rec); err != nil {
			return st, fmt.Errorf("object type %q: %w", rec.Name, err)
		}
	}
	for _, rec := range ds.FactTypes {
		if _, err := factType(rec); err != nil {
			return st, fmt.Errorf("fact type %q: %w", rec.Name, err)
		}
	}

	objects := make([]*model.Object, 0, len(ds.Objects))
	for _, rec := range ds.Objects {
		tid, err := objectType(TypeRecord{Name: rec.Type})
		if err != nil {
			return st, fmt.Errorf("object %s: %w", rec.ID, err)
		}
		objects = append(objects, &model.Object{ID: rec.ID, TypeID: tid, Value: rec.Value})
	}

	var saved atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(MaxWorkers)
	for _, obj := range objects {
		obj := obj
		eg.Go(func() error {
			if err := s.SaveObject(egCtx, obj); err != nil {
				return fmt.Errorf("object %s: %w", obj.ID, err)
			}
			saved.Add(1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return st, err
	}
	st.Objects = int(saved.Load())

	var retracted []uuid.UUID
	for _, rec := range ds.Facts {
		fact, err := buildFact(rec, factType)
		if err != nil {
			return st, fmt.Errorf("fact %s: %w", rec.ID, err)
		}
		if err := s.SaveFact(ctx, fact); err != nil {
			return st, fmt.Errorf("fact %s: %w", rec.ID, err)
		}
		st.Facts++
		if opts.RetractionType != "" && rec.Type == opts.RetractionType && rec.InReferenceTo != nil {
			retracted = append(retracted, *rec.InReferenceTo)
		}
	}

	for _, id := range retracted {
		if err := s.SetFlags(ctx, id, model.FlagRetractedHint); err != nil {
			return st, fmt.Errorf("flag retracted fact %s: %w", id, err)
		}
		st.Retracted++
	}
	return st, nil
}

// ObjectTypeID is the id given to an ObjectType declared by name only.
func ObjectTypeID(name string) uuid.UUID {
	return uuid.NewSHA1(typeNamespace, []byte("object:"+name))
}

// FactTypeID is the id given to a FactType declared by name only.
func FactTypeID(name string) uuid.UUID {
	return uuid.NewSHA1(typeNamespace, []byte("fact:"+name))
}

func typeID(rec TypeRecord, kind string) uuid.UUID {
	if rec.ID != uuid.Nil {
		return rec.ID
	}
	if kind == "object" {
		return ObjectTypeID(rec.Name)
	}
	return FactTypeID(rec.Name)
}

func buildFact(rec FactRecord, factType func(TypeRecord) (uuid.UUID, error)) (*model.Fact, error) {
	tid, err := factType(TypeRecord{Name: rec.Type})
	if err != nil {
		return nil, err
	}

	mode := model.AccessModeRoleBased
	if rec.AccessMode != "" {
		if mode, err = model.ParseAccessMode(rec.AccessMode); err != nil {
			return nil, err
		}
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	fact := &model.Fact{
		ID:                rec.ID,
		TypeID:            tid,
		Value:             rec.Value,
		InReferenceTo:     rec.InReferenceTo,
		OrganizationID:    rec.Organization,
		OriginID:          rec.Origin,
		AddedByID:         rec.AddedBy,
		AccessMode:        mode,
		Timestamp:         ts,
		LastSeenTimestamp: ts,
	}
	for _, b := range rec.Bindings {
		dir := model.DirectionNone
		if b.Direction != "" {
			if dir, err = model.ParseDirection(b.Direction); err != nil {
				return nil, err
			}
		}
		fact.Bindings = append(fact.Bindings, model.Binding{ObjectID: b.Object, Direction: dir})
	}
	for _, subject := range rec.ACL {
		fact.ACL = append(fact.ACL, model.AclEntry{SubjectID: subject, Timestamp: ts})
	}
	return fact, nil
}
