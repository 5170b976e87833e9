package store

import (
	"context"
	"sort"
	"sync"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/google/uuid"
)

// Memory is a schema-aware in-process implementation of Client. It backs the
// test suites and the local development driver; the hosted service is the
// production target.
type Memory struct {
	mu     sync.RWMutex
	schema *Schema

	records map[string]map[string]Record
	seq     map[string][]string
	// edges[edgeName][forwardID] holds the set of reverse-side ids.
	edges map[string]map[string]map[string]bool
}

// NewMemory builds an empty in-memory store over the given schema.
func NewMemory(schema *Schema) *Memory {
	if schema == nil {
		schema = DefaultSchema()
	}
	return &Memory{
		schema:  schema,
		records: map[string]map[string]Record{},
		seq:     map[string][]string{},
		edges:   map[string]map[string]map[string]bool{},
	}
}

// NewID returns a fresh unique identifier.
func (m *Memory) NewID() string {
	return uuid.NewString()
}

// Query implements Client.
func (m *Memory) Query(ctx context.Context, q Query) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query canceled")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := Result{}
	for kind, sel := range q {
		if !m.schema.HasKind(kind) {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown entity kind %q", kind)
		}
		records, err := m.selectKind(kind, sel)
		if err != nil {
			return nil, err
		}
		result[kind] = records
	}
	return result, nil
}

func (m *Memory) selectKind(kind string, sel Selection) ([]Record, error) {
	out := []Record{}
	for _, id := range m.seq[kind] {
		rec, ok := m.records[kind][id]
		if !ok {
			continue
		}
		if !matchesWhere(rec, sel.Where) {
			continue
		}
		clone := rec.Clone()
		if err := m.attachRelated(kind, clone, sel.With); err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	return out, nil
}

func (m *Memory) attachRelated(kind string, rec Record, with map[string]Selection) error {
	if len(with) == 0 {
		return nil
	}
	labels := make([]string, 0, len(with))
	for label := range with {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		edge, forward, err := m.schema.ResolveLabel(kind, label)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid selection")
		}
		relatedKind := edge.Reverse.Kind
		if !forward {
			relatedKind = edge.Forward.Kind
		}
		ids := m.relatedIDs(edge, forward, rec.ID())
		related := make([]Record, 0, len(ids))
		for _, rid := range ids {
			relRec, ok := m.records[relatedKind][rid]
			if !ok {
				continue
			}
			clone := relRec.Clone()
			if err := m.attachRelated(relatedKind, clone, with[label].With); err != nil {
				return err
			}
			related = append(related, clone)
		}
		rec[label] = related
	}
	return nil
}

func (m *Memory) relatedIDs(edge Edge, forward bool, id string) []string {
	byForward := m.edges[edge.Name]
	var ids []string
	if forward {
		for rid := range byForward[id] {
			ids = append(ids, rid)
		}
	} else {
		for fid, set := range byForward {
			if set[id] {
				ids = append(ids, fid)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func matchesWhere(rec Record, where map[string]any) bool {
	for field, want := range where {
		switch cond := want.(type) {
		case Cond:
			if cond.Gt != nil && !(rec.Num(field) > *cond.Gt) {
				return false
			}
		default:
			if rec[field] != want {
				return false
			}
		}
	}
	return true
}

// Transact implements Client. The mutation list is validated up front and
// either applied in full or not at all.
func (m *Memory) Transact(ctx context.Context, muts []Mutation) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transact canceled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validate(muts); err != nil {
		return err
	}
	for _, mut := range muts {
		m.apply(mut)
	}
	return nil
}

func (m *Memory) validate(muts []Mutation) error {
	// Track ids created earlier in the same batch so later steps can
	// reference them.
	created := map[string]map[string]bool{}
	exists := func(kind, id string) bool {
		if _, ok := m.records[kind][id]; ok {
			return true
		}
		return created[kind][id]
	}
	markCreated := func(kind, id string) {
		if created[kind] == nil {
			created[kind] = map[string]bool{}
		}
		created[kind][id] = true
	}

	for _, mut := range muts {
		if !m.schema.HasKind(mut.Kind) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown entity kind %q", mut.Kind)
		}
		if mut.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "mutation requires a record id")
		}
		switch mut.Op {
		case OpCreate:
			if exists(mut.Kind, mut.ID) {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "%s %q already exists", mut.Kind, mut.ID)
			}
			markCreated(mut.Kind, mut.ID)
		case OpUpdate:
			if !exists(mut.Kind, mut.ID) {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %q not found", mut.Kind, mut.ID)
			}
		case OpUpsert:
			markCreated(mut.Kind, mut.ID)
		case OpDelete:
			if !exists(mut.Kind, mut.ID) {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %q not found", mut.Kind, mut.ID)
			}
		case OpLink, OpUnlink:
			edge, forward, err := m.schema.ResolveLabel(mut.Kind, mut.Label)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid link")
			}
			if !exists(mut.Kind, mut.ID) {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %q not found", mut.Kind, mut.ID)
			}
			targetKind := edge.Reverse.Kind
			if !forward {
				targetKind = edge.Forward.Kind
			}
			if mut.Op == OpLink {
				for _, target := range mut.Targets {
					if !exists(targetKind, target) {
						return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %q not found", targetKind, target)
					}
				}
			}
		default:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown mutation op %q", mut.Op)
		}
	}
	return nil
}

func (m *Memory) apply(mut Mutation) {
	switch mut.Op {
	case OpCreate:
		m.put(mut.Kind, mut.ID, mut.Fields, false)
	case OpUpdate, OpUpsert:
		m.put(mut.Kind, mut.ID, mut.Fields, true)
	case OpDelete:
		m.deleteRecord(mut.Kind, mut.ID)
	case OpLink:
		for _, target := range mut.Targets {
			m.link(mut.Kind, mut.ID, mut.Label, target)
		}
	case OpUnlink:
		for _, target := range mut.Targets {
			m.unlink(mut.Kind, mut.ID, mut.Label, target)
		}
	}
}

func (m *Memory) put(kind, id string, fields map[string]any, merge bool) {
	if m.records[kind] == nil {
		m.records[kind] = map[string]Record{}
	}
	rec, ok := m.records[kind][id]
	if !ok {
		rec = Record{"id": id}
		m.records[kind][id] = rec
		m.seq[kind] = append(m.seq[kind], id)
	} else if !merge {
		rec = Record{"id": id}
		m.records[kind][id] = rec
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
}

func (m *Memory) deleteRecord(kind, id string) {
	delete(m.records[kind], id)
	for i, existing := range m.seq[kind] {
		if existing == id {
			m.seq[kind] = append(m.seq[kind][:i], m.seq[kind][i+1:]...)
			break
		}
	}
	// Drop every edge touching the record, on either side.
	for _, edge := range m.schema.Edges() {
		byForward := m.edges[edge.Name]
		if byForward == nil {
			continue
		}
		if edge.Forward.Kind == kind {
			delete(byForward, id)
		}
		if edge.Reverse.Kind == kind {
			for _, set := range byForward {
				delete(set, id)
			}
		}
	}
}

func (m *Memory) link(kind, id, label, target string) {
	edge, forward, err := m.schema.ResolveLabel(kind, label)
	if err != nil {
		return
	}
	forwardID, reverseID := id, target
	if !forward {
		forwardID, reverseID = target, id
	}
	if m.edges[edge.Name] == nil {
		m.edges[edge.Name] = map[string]map[string]bool{}
	}
	byForward := m.edges[edge.Name]

	// Cardinality: a has-one forward side holds a single reverse id; a
	// has-one reverse side may belong to a single forward record.
	if edge.Forward.Has == HasOne {
		byForward[forwardID] = map[string]bool{}
	}
	if edge.Reverse.Has == HasOne {
		for fid, set := range byForward {
			if fid != forwardID {
				delete(set, reverseID)
			}
		}
	}
	if byForward[forwardID] == nil {
		byForward[forwardID] = map[string]bool{}
	}
	byForward[forwardID][reverseID] = true
}

func (m *Memory) unlink(kind, id, label, target string) {
	edge, forward, err := m.schema.ResolveLabel(kind, label)
	if err != nil {
		return
	}
	forwardID, reverseID := id, target
	if !forward {
		forwardID, reverseID = target, id
	}
	if set := m.edges[edge.Name][forwardID]; set != nil {
		delete(set, reverseID)
	}
}

// EdgeCount reports how many concrete edges of the named kind exist. Test
// helper surface.
func (m *Memory) EdgeCount(edgeName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, set := range m.edges[edgeName] {
		total += len(set)
	}
	return total
}
