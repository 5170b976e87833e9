package orders

// Status is an order lifecycle state.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusDispatched Status = "DISPATCHED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusReturned   Status = "RETURNED"
)

// earlyStatuses are the states an order occupies before fulfillment;
// advancedStatuses are everything from fulfillment onward. The guard blocks
// crossing from early to advanced without passing through COMPLETED, and
// blocks moving back.
var (
	earlyStatuses = map[Status]bool{
		StatusCreated:    true,
		StatusInProgress: true,
	}
	advancedStatuses = map[Status]bool{
		StatusCompleted:  true,
		StatusDispatched: true,
		StatusDelivered:  true,
		StatusCancelled:  true,
		StatusReturned:   true,
	}
	postCompletionStatuses = map[Status]bool{
		StatusDispatched: true,
		StatusDelivered:  true,
		StatusCancelled:  true,
		StatusReturned:   true,
	}
)

// Valid reports whether s names a known lifecycle state.
func (s Status) Valid() bool {
	return earlyStatuses[s] || advancedStatuses[s]
}

// HistoryEntry is one append-only element of an order's status history.
type HistoryEntry struct {
	User      string `json:"user"`
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// LineItem is one ordered inventory position.
type LineItem struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
	Price    float64 `json:"price"`
}

// CreateInput carries the fields needed to open a new order.
type CreateInput struct {
	OrderNumber    string     `json:"orderNumber" validate:"required"`
	Items          []LineItem `json:"items" validate:"required,min=1,dive"`
	TotalAmount    float64    `json:"totalAmount" validate:"gte=0"`
	VAT            float64    `json:"vat" validate:"gte=0"`
	VATRate        float64    `json:"vatRate" validate:"gte=0"`
	Discount       float64    `json:"discount" validate:"gte=0"`
	DeliveryCharge float64    `json:"deliveryCharge" validate:"gte=0"`
	Status         Status     `json:"status"`
	OrderType      string     `json:"orderType"`
	Notes          string     `json:"notes"`
	CustomerID     string     `json:"customerId"`
	POSOperatorID  string     `json:"posOperatorId"`
}

// UpdateInput carries a partial order update. Status empty means no status
// change; Fields holds any other scalar updates. CustomerID is only honored
// as a relink when CustomerChanged is set.
type UpdateInput struct {
	UserID          string         `json:"userId" validate:"required"`
	Status          Status         `json:"status"`
	CustomerChanged bool           `json:"customerChanged"`
	CustomerID      string         `json:"customerId"`
	Fields          map[string]any `json:"fields"`
}
