// Package dashboard aggregates read-only store metrics for the frontend
// landing page.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/store"
)

const (
	day   = 24 * time.Hour
	month = 30 * day
)

// Stats is the aggregated dashboard payload.
type Stats struct {
	TotalSales            float64        `json:"totalSales"`
	SalesPercentageChange float64        `json:"salesPercentageChange"`
	NewOrders             int            `json:"newOrders"`
	NewOrdersChange       int            `json:"newOrdersChange"`
	PendingPayments       int            `json:"pendingPayments"`
	InventoryItems        int            `json:"inventoryItems"`
	RecentActivity        []store.Record `json:"recentActivity"`
}

// ServiceParams configure the dashboard service.
type ServiceParams struct {
	Store  store.Client
	Logger *logger.Logger
	Now    func() time.Time
}

// Service computes dashboard statistics.
type Service struct {
	store store.Client
	logg  *logger.Logger
	now   func() time.Time
}

// NewService validates dependencies and builds the dashboard service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: params.Store, logg: params.Logger, now: now}, nil
}

// Stats aggregates sales and order figures over the two months leading up to
// now, plus the current inventory count and the five most recent orders.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	now := s.now().UnixMilli()
	oneDay := day.Milliseconds()
	oneMonth := month.Milliseconds()

	result, err := s.store.Query(ctx, store.Query{
		store.KindOrders: {
			Where: map[string]any{"createdAt": store.GreaterThan(float64(now - 2*oneMonth))},
			With:  map[string]store.Selection{store.LabelCustomer: {}},
		},
		store.KindInventoryItems: {},
	})
	if err != nil {
		return Stats{}, err
	}
	orders := result[store.KindOrders]

	var salesThisMonth, salesLastMonth float64
	var ordersToday, ordersYesterday, pending int
	for _, order := range orders {
		createdAt := int64(order.Num("createdAt"))
		amount := order.Num("totalAmount")
		if createdAt >= now-oneMonth {
			salesThisMonth += amount
		} else {
			salesLastMonth += amount
		}
		if createdAt >= now-oneDay {
			ordersToday++
		} else if createdAt >= now-2*oneDay {
			ordersYesterday++
		}
		if order.Str("paymentStatus") == "PENDING" {
			pending++
		}
	}

	var percentChange float64
	if salesLastMonth > 0 {
		percentChange = (salesThisMonth - salesLastMonth) / salesLastMonth * 100
	}

	recent := make([]store.Record, len(orders))
	copy(recent, orders)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Num("createdAt") > recent[j].Num("createdAt")
	})
	if len(recent) > 5 {
		recent = recent[:5]
	}

	return Stats{
		TotalSales:            salesThisMonth,
		SalesPercentageChange: percentChange,
		NewOrders:             ordersToday,
		NewOrdersChange:       ordersToday - ordersYesterday,
		PendingPayments:       pending,
		InventoryItems:        len(result[store.KindInventoryItems]),
		RecentActivity:        recent,
	}, nil
}
