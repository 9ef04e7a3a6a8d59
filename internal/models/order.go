package models

import (
	"fmt"
	"strings"
	"time"
)

type Order struct {
	ID        int         `json:"id"`
	ProductID int         `json:"product_id"`
	BuyerID   int         `json:"-"`
	OrderDate time.Time   `json:"order_date"`
	Status    OrderStatus `json:"status"`
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// orderTransitions is the full lifecycle: DELIVERED and CANCELLED are
// terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var orderStatusNames = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus is the only place wire input becomes an OrderStatus.
func ParseOrderStatus(name string) (OrderStatus, error) {
	candidate := OrderStatus(strings.ToUpper(name))
	for _, s := range orderStatusNames {
		if s == candidate {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid status value %q", name)
}

func OrderStatusValues() string {
	names := make([]string, len(orderStatusNames))
	for i, s := range orderStatusNames {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

type CreateOrderRequest struct {
	ProductID int `json:"product_id"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

type OrderDTO struct {
	ID         int    `json:"id"`
	ProductID  int    `json:"product_id"`
	BuyerEmail string `json:"buyer_email"`
	OrderDate  string `json:"order_date"`
	Status     string `json:"status"`
}
