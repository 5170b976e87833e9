package store

import "fmt"

// Entity kinds.
const (
	KindAppSettings       = "AppSettings"
	KindUsers             = "Users"
	KindAttributeCategory = "AttributeCategory"
	KindAttributeItem     = "AttributeItem"
	KindOrders            = "Orders"
	KindCustomers         = "Customers"
	KindSuppliers         = "Suppliers"
	KindInventoryItems    = "InventoryItems"
	KindCustomerAddress   = "CustomerAddress"

	// KindInventoryAudits holds the best-effort inventory audit trail. It is
	// not part of snapshots.
	KindInventoryAudits = "InventoryAudits"
)

// Edge kinds.
const (
	EdgeAttributeCategoryItem     = "AttributeCategoryItem"
	EdgeCustomerOrder             = "CustomerOrder"
	EdgeUserOrder                 = "UserOrder"
	EdgeInventoryItemSupplier     = "InventoryItemSupplier"
	EdgeInventoryItemAttribute    = "InventoryItemAttribute"
	EdgeCustomerCustomerAddresses = "CustomerCustomerAddresses"
)

// Relation labels, grouped by the kind they live on.
const (
	LabelCategory       = "category"       // AttributeItem -> AttributeCategory
	LabelItems          = "items"          // AttributeCategory -> AttributeItem
	LabelCustomer       = "customer"       // Orders/CustomerAddress -> Customers
	LabelOrders         = "orders"         // Customers -> Orders
	LabelPosOperator    = "posOperator"    // Orders -> Users
	LabelCreatedOrders  = "createdOrders"  // Users -> Orders
	LabelSupplier       = "supplier"       // InventoryItems -> Suppliers
	LabelInventoryItems = "inventoryItems" // Suppliers/AttributeItem -> InventoryItems
	LabelAttributes     = "attributes"     // InventoryItems -> AttributeItem
	LabelAddresses      = "addresses"      // Customers -> CustomerAddress
	LabelInventoryItem  = "inventoryItem"  // InventoryAudits -> InventoryItems
)

// Cardinality declares how many records one side of an edge may point at.
type Cardinality string

const (
	HasOne  Cardinality = "one"
	HasMany Cardinality = "many"
)

// EdgeSide is one end of an edge: the kind it lives on, the label the other
// side is reachable under, and the cardinality of that label.
type EdgeSide struct {
	Kind  string
	Label string
	Has   Cardinality
}

// Edge is a directed, labeled association between two entity kinds. In
// snapshots each concrete edge serializes as a pair keyed by ForwardField
// (the forward-side record id) and ReverseField (the reverse-side record id).
type Edge struct {
	Name         string
	Forward      EdgeSide
	Reverse      EdgeSide
	ForwardField string
	ReverseField string
}

// Schema is the fixed entity-and-edge catalog of the system.
type Schema struct {
	kinds []string
	edges []Edge

	labelIndex map[string]map[string]labelRef // kind -> label -> edge ref
}

type labelRef struct {
	edge    int
	forward bool
}

// EntityKinds returns the snapshot entity kinds in their canonical order.
func (s *Schema) EntityKinds() []string {
	out := make([]string, len(s.kinds))
	copy(out, s.kinds)
	return out
}

// Edges returns the edge catalog in its canonical order.
func (s *Schema) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// EdgeByName looks up an edge definition.
func (s *Schema) EdgeByName(name string) (Edge, error) {
	for _, e := range s.edges {
		if e.Name == name {
			return e, nil
		}
	}
	return Edge{}, fmt.Errorf("unknown edge kind %q", name)
}

// HasKind reports whether the kind is part of the catalog (including
// non-snapshot kinds such as InventoryAudits).
func (s *Schema) HasKind(kind string) bool {
	if kind == KindInventoryAudits {
		return true
	}
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// LabelsFor returns every relation label defined on the kind, in edge order.
func (s *Schema) LabelsFor(kind string) []string {
	var out []string
	for _, e := range s.edges {
		if e.Forward.Kind == kind {
			out = append(out, e.Forward.Label)
		}
		if e.Reverse.Kind == kind {
			out = append(out, e.Reverse.Label)
		}
	}
	return out
}

// ResolveLabel maps (kind, label) to its edge and direction. forward is true
// when the label lives on the edge's forward side.
func (s *Schema) ResolveLabel(kind, label string) (edge Edge, forward bool, err error) {
	ref, ok := s.labelIndex[kind][label]
	if !ok {
		return Edge{}, false, fmt.Errorf("kind %q has no relation label %q", kind, label)
	}
	return s.edges[ref.edge], ref.forward, nil
}

// DefaultSchema returns the catalog of the nine entity kinds and six edge
// kinds, in the order capture and restore enumerate them.
func DefaultSchema() *Schema {
	s := &Schema{
		kinds: []string{
			KindAppSettings,
			KindUsers,
			KindAttributeCategory,
			KindAttributeItem,
			KindOrders,
			KindCustomers,
			KindSuppliers,
			KindInventoryItems,
			KindCustomerAddress,
		},
		edges: []Edge{
			{
				Name:         EdgeAttributeCategoryItem,
				Forward:      EdgeSide{Kind: KindAttributeItem, Label: LabelCategory, Has: HasOne},
				Reverse:      EdgeSide{Kind: KindAttributeCategory, Label: LabelItems, Has: HasMany},
				ForwardField: "itemId",
				ReverseField: "categoryId",
			},
			{
				Name:         EdgeCustomerOrder,
				Forward:      EdgeSide{Kind: KindOrders, Label: LabelCustomer, Has: HasOne},
				Reverse:      EdgeSide{Kind: KindCustomers, Label: LabelOrders, Has: HasMany},
				ForwardField: "orderId",
				ReverseField: "customerId",
			},
			{
				Name:         EdgeUserOrder,
				Forward:      EdgeSide{Kind: KindOrders, Label: LabelPosOperator, Has: HasOne},
				Reverse:      EdgeSide{Kind: KindUsers, Label: LabelCreatedOrders, Has: HasMany},
				ForwardField: "orderId",
				ReverseField: "userId",
			},
			{
				Name:         EdgeInventoryItemSupplier,
				Forward:      EdgeSide{Kind: KindInventoryItems, Label: LabelSupplier, Has: HasOne},
				Reverse:      EdgeSide{Kind: KindSuppliers, Label: LabelInventoryItems, Has: HasMany},
				ForwardField: "inventoryItemId",
				ReverseField: "supplierId",
			},
			{
				Name:         EdgeInventoryItemAttribute,
				Forward:      EdgeSide{Kind: KindInventoryItems, Label: LabelAttributes, Has: HasMany},
				Reverse:      EdgeSide{Kind: KindAttributeItem, Label: LabelInventoryItems, Has: HasMany},
				ForwardField: "inventoryItemId",
				ReverseField: "attributeItemId",
			},
			{
				Name:         EdgeCustomerCustomerAddresses,
				Forward:      EdgeSide{Kind: KindCustomers, Label: LabelAddresses, Has: HasMany},
				Reverse:      EdgeSide{Kind: KindCustomerAddress, Label: LabelCustomer, Has: HasOne},
				ForwardField: "customerId",
				ReverseField: "addressId",
			},
		},
	}

	s.labelIndex = map[string]map[string]labelRef{}
	addLabel := func(kind, label string, edge int, forward bool) {
		if s.labelIndex[kind] == nil {
			s.labelIndex[kind] = map[string]labelRef{}
		}
		s.labelIndex[kind][label] = labelRef{edge: edge, forward: forward}
	}
	for i, e := range s.edges {
		addLabel(e.Forward.Kind, e.Forward.Label, i, true)
		addLabel(e.Reverse.Kind, e.Reverse.Label, i, false)
	}
	// InventoryAudits reference their item through a plain field, not an
	// edge, so no labels are registered for them.
	return s
}
