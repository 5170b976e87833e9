// Package backup implements the snapshot engine: point-in-time capture of
// the full entity graph, encrypted persistence, and dependency-ordered
// restore.
package backup

import (
	"github.com/davidalonso/posstack-backend/pkg/store"
)

// LinkPair is one serialized edge: the two record ids keyed by the edge's
// field names, e.g. {"orderId": "...", "customerId": "..."}.
type LinkPair map[string]string

// Snapshot is an immutable point-in-time export of every entity kind and
// edge kind. Entity records carry no relation labels; edges live in Links.
type Snapshot struct {
	Timestamp int64                     `json:"timestamp"`
	Entities  map[string][]store.Record `json:"entities"`
	Links     map[string][]LinkPair     `json:"links"`
}

// Statistics maps entity kind to the number of records captured.
type Statistics map[string]int

// Result identifies a persisted snapshot.
type Result struct {
	Filename   string
	FilePath   string
	Statistics Statistics
}

// Wave 1 kinds exist without referencing anything; wave 2 kinds may
// reference wave 1 records. Restore writes them in this order.
var (
	wave1Kinds = []string{
		store.KindAppSettings,
		store.KindUsers,
		store.KindAttributeCategory,
		store.KindSuppliers,
		store.KindCustomers,
	}
	wave2Kinds = []string{
		store.KindAttributeItem,
		store.KindInventoryItems,
		store.KindCustomerAddress,
		store.KindOrders,
	}
)
