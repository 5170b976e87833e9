// Package store is the client surface for the hosted document-graph store
// that holds every business entity. Records are schemaless field maps with an
// opaque id; relationships are labeled graph links declared in the Schema.
package store

import "context"

// Client is the query/transact interface every service depends on. It is
// always passed in at construction, never held as a package-level singleton.
type Client interface {
	// Query fetches records for every kind named in q, optionally filtered
	// and with related records attached under their labels.
	Query(ctx context.Context, q Query) (Result, error)
	// Transact applies the ordered mutation list as one unit.
	Transact(ctx context.Context, muts []Mutation) error
	// NewID produces a globally unique record identifier.
	NewID() string
}

// Query maps entity kind to the selection to fetch for it.
type Query map[string]Selection

// Selection filters one kind and names the related labels to attach.
type Selection struct {
	Where map[string]any       `json:"where,omitempty"`
	With  map[string]Selection `json:"with,omitempty"`
}

// Result maps entity kind to the fetched records.
type Result map[string][]Record

// Record is a single entity: scalar/JSON fields keyed by name, plus an "id",
// plus (when requested) related records stored under their relation label.
type Record map[string]any

// ID returns the record identifier.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Str returns a string field, or "" when absent or differently typed.
func (r Record) Str(key string) string {
	v, _ := r[key].(string)
	return v
}

// Num returns a numeric field. JSON decoding yields float64; int values that
// were set in-process are widened.
func (r Record) Num(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean field, false when absent.
func (r Record) Bool(key string) bool {
	v, _ := r[key].(bool)
	return v
}

// Related returns the records attached under a relation label, normalized to
// a slice: a has-one label yields zero or one records. Values that came off
// the wire as raw JSON shapes are converted.
func (r Record) Related(label string) []Record {
	switch v := r[label].(type) {
	case nil:
		return nil
	case []Record:
		return v
	case Record:
		return []Record{v}
	case map[string]any:
		return []Record{Record(v)}
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, Record(m))
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy of the record's fields.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Op names a mutation kind.
type Op string

const (
	// OpCreate inserts a new record and fails when the id already exists.
	OpCreate Op = "create"
	// OpUpdate merges the given fields into an existing record. It is a
	// strict partial merge: untouched fields are preserved, and a missing
	// record is an error.
	OpUpdate Op = "update"
	// OpUpsert merges fields into the record at the given id, creating it
	// when absent. This is the explicit read-modify-write used by restore;
	// regular service updates never use it.
	OpUpsert Op = "upsert"
	// OpDelete removes a record and every edge touching it.
	OpDelete Op = "delete"
	// OpLink adds edges from the record to each target under the label.
	// Re-linking an existing edge is a no-op; linking a has-one side
	// replaces the previous edge.
	OpLink Op = "link"
	// OpUnlink removes the edges to the given targets.
	OpUnlink Op = "unlink"
)

// Mutation is one step of a Transact call.
type Mutation struct {
	Op      Op             `json:"op"`
	Kind    string         `json:"kind"`
	ID      string         `json:"id"`
	Fields  map[string]any `json:"fields,omitempty"`
	Label   string         `json:"label,omitempty"`
	Targets []string       `json:"targets,omitempty"`
}

// Create builds a create mutation.
func Create(kind, id string, fields map[string]any) Mutation {
	return Mutation{Op: OpCreate, Kind: kind, ID: id, Fields: fields}
}

// Update builds a partial-merge update mutation.
func Update(kind, id string, fields map[string]any) Mutation {
	return Mutation{Op: OpUpdate, Kind: kind, ID: id, Fields: fields}
}

// Upsert builds a merge-or-create mutation at a caller-chosen id.
func Upsert(kind, id string, fields map[string]any) Mutation {
	return Mutation{Op: OpUpsert, Kind: kind, ID: id, Fields: fields}
}

// Delete builds a delete mutation.
func Delete(kind, id string) Mutation {
	return Mutation{Op: OpDelete, Kind: kind, ID: id}
}

// Link builds a link mutation for one or more targets.
func Link(kind, id, label string, targets ...string) Mutation {
	return Mutation{Op: OpLink, Kind: kind, ID: id, Label: label, Targets: targets}
}

// Unlink builds an unlink mutation.
func Unlink(kind, id, label string, targets ...string) Mutation {
	return Mutation{Op: OpUnlink, Kind: kind, ID: id, Label: label, Targets: targets}
}

// Cond is a field predicate beyond plain equality. A Where value that is not
// a Cond is compared for equality.
type Cond struct {
	Gt *float64 `json:"$gt,omitempty"`
}

// GreaterThan filters numeric fields strictly above v.
func GreaterThan(v float64) Cond {
	return Cond{Gt: &v}
}
