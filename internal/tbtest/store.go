package tbtest

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"
)

const (
	entityTable    = "entity"
	attributeTable = "attribute"
	sampleTable    = "sample"

	indexID     = "id"
	indexKind   = "kind"
	indexOwner  = "owner"
	indexEntity = "entity"
)

// record is one stored platform entity. Doc is its wire form; the other
// fields are copies of the values the handlers filter on.
type record struct {
	ID      string
	Kind    string
	Name    string
	Owner   string
	Token   string
	Active  bool
	Created int64
	Seq     uint64
	Doc     map[string]any
}

type attribute struct {
	ID           string
	EntityID     string
	Scope        string
	Key          string
	Value        any
	LastUpdateTs int64
}

type sample struct {
	ID       string
	EntityID string
	Key      string
	TS       int64
	Value    any
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			entityTable: {
				Name: entityTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID", Lowercase: true},
					},
					indexKind: {
						Name:    indexKind,
						Indexer: &memdb.StringFieldIndex{Field: "Kind"},
					},
					indexOwner: {
						Name:         indexOwner,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Owner", Lowercase: true},
					},
					"token": {
						Name:         "token",
						Unique:       true,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Token"},
					},
				},
			},
			attributeTable: {
				Name: attributeTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexEntity: {
						Name:    indexEntity,
						Indexer: &memdb.StringFieldIndex{Field: "EntityID", Lowercase: true},
					},
				},
			},
			sampleTable: {
				Name: sampleTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexEntity: {
						Name:    indexEntity,
						Indexer: &memdb.StringFieldIndex{Field: "EntityID", Lowercase: true},
					},
				},
			},
		},
	}
}

// store wraps the in-memory database. Stored objects are never mutated;
// updates insert a fresh copy.
type store struct {
	db  *memdb.MemDB
	seq atomic.Uint64
}

func newStore() (*store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("tbtest: create store: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) put(rec *record) error {
	if rec.Seq == 0 {
		rec.Seq = s.seq.Add(1)
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(entityTable, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// get returns a copy of the record with id, or nil.
func (s *store) get(id string) *record {
	txn := s.db.Txn(false)
	raw, err := txn.First(entityTable, indexID, id)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*record).clone()
}

func (s *store) byToken(token string) *record {
	txn := s.db.Txn(false)
	raw, err := txn.First(entityTable, "token", token)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*record).clone()
}

// remove deletes the record with id together with its attributes and
// samples. It reports whether the record existed.
func (s *store) remove(id string) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(entityTable, indexID, id)
	if err != nil || raw == nil {
		return false, err
	}
	if err := txn.Delete(entityTable, raw); err != nil {
		return false, err
	}
	if _, err := txn.DeleteAll(attributeTable, indexEntity, id); err != nil {
		return false, err
	}
	if _, err := txn.DeleteAll(sampleTable, indexEntity, id); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}

// list returns copies of every record of kind that keep accepts, oldest first.
func (s *store) list(kind string, keep func(*record) bool) []*record {
	return s.collect(indexKind, kind, keep)
}

// owned returns copies of the records owned by a customer.
func (s *store) owned(owner string, keep func(*record) bool) []*record {
	return s.collect(indexOwner, owner, keep)
}

func (s *store) collect(index, value string, keep func(*record) bool) []*record {
	txn := s.db.Txn(false)
	it, err := txn.Get(entityTable, index, value)
	if err != nil {
		return nil
	}
	var out []*record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rec := raw.(*record)
		if keep == nil || keep(rec) {
			out = append(out, rec.clone())
		}
	}
	slices.SortFunc(out, func(a, b *record) int {
		return cmp.Or(cmp.Compare(a.Created, b.Created), cmp.Compare(a.Seq, b.Seq))
	})
	return out
}

func (r *record) clone() *record {
	c := *r
	c.Doc = maps.Clone(r.Doc)
	return &c
}

func attributeID(entityID, scope, key string) string {
	return strings.ToLower(entityID) + "/" + scope + "/" + key
}

func (s *store) setAttributes(entityID, scope string, values map[string]any, ts int64) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for key, v := range values {
		a := &attribute{
			ID:           attributeID(entityID, scope, key),
			EntityID:     entityID,
			Scope:        scope,
			Key:          key,
			Value:        v,
			LastUpdateTs: ts,
		}
		if err := txn.Insert(attributeTable, a); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

// attributes returns the entity's attributes in scope, sorted by key.
func (s *store) attributes(entityID, scope string) []attribute {
	txn := s.db.Txn(false)
	it, err := txn.Get(attributeTable, indexEntity, entityID)
	if err != nil {
		return nil
	}
	out := []attribute{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if a := raw.(*attribute); a.Scope == scope {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b attribute) int { return strings.Compare(a.Key, b.Key) })
	return out
}

func (s *store) deleteAttributes(entityID, scope string, keys []string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, key := range keys {
		raw, err := txn.First(attributeTable, indexID, attributeID(entityID, scope, key))
		if err != nil {
			return err
		}
		if raw == nil {
			continue
		}
		if err := txn.Delete(attributeTable, raw); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

func (s *store) addSamples(entityID string, ts int64, values map[string]any) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for key, v := range values {
		smp := &sample{
			ID:       fmt.Sprintf("%s/%s/%d", strings.ToLower(entityID), key, ts),
			EntityID: entityID,
			Key:      key,
			TS:       ts,
			Value:    v,
		}
		if err := txn.Insert(sampleTable, smp); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

// samples returns the entity's samples of key, newest first.
func (s *store) samples(entityID, key string) []sample {
	txn := s.db.Txn(false)
	it, err := txn.Get(sampleTable, indexEntity, entityID)
	if err != nil {
		return nil
	}
	var out []sample
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if smp := raw.(*sample); smp.Key == key {
			out = append(out, *smp)
		}
	}
	slices.SortFunc(out, func(a, b sample) int { return cmp.Compare(b.TS, a.TS) })
	return out
}

// sampleKeys returns the distinct keys the entity has samples for.
func (s *store) sampleKeys(entityID string) []string {
	txn := s.db.Txn(false)
	it, err := txn.Get(sampleTable, indexEntity, entityID)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		seen[raw.(*sample).Key] = true
	}
	return slices.Sorted(maps.Keys(seen))
}

// deleteSamples removes samples of keys with start <= ts <= end.
func (s *store) deleteSamples(entityID string, keys []string, start, end int64) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	it, err := txn.Get(sampleTable, indexEntity, entityID)
	if err != nil {
		return err
	}
	var doomed []*sample
	for raw := it.Next(); raw != nil; raw = it.Next() {
		smp := raw.(*sample)
		if slices.Contains(keys, smp.Key) && smp.TS >= start && smp.TS <= end {
			doomed = append(doomed, smp)
		}
	}
	for _, smp := range doomed {
		if err := txn.Delete(sampleTable, smp); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}
