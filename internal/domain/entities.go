package domain

import (
	"time"

	"github.com/google/uuid"
)

type RuleType string

const (
	RuleTypeDefault     RuleType = "default"
	RuleTypeCategory    RuleType = "category"
	RuleTypeEvent       RuleType = "event"
	RuleTypeSeller      RuleType = "seller"
	RuleTypeProductType RuleType = "product_type"
)

// CommissionRule maps a scope (platform default, category, event, seller,
// product type) to a percentage rate. ReferenceID is nil only for the
// default rule type.
type CommissionRule struct {
	ID          uuid.UUID
	RuleType    RuleType
	ReferenceID *uuid.UUID
	Rate        float64
	Active      bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

type Tracking struct {
	Number  string
	URL     string
	Carrier string
}

type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	Status          OrderStatus
	CustomerName    string
	CustomerEmail   string
	TotalAmount     float64
	PaymentIntentID *string
	PaymentMethod   *string
	Tracking        *Tracking
	AdminNotes      *string
	CreatedAt       time.Time
	PaidAt          *time.Time
	Items           []OrderItem
}

// OrderItem carries the commission snapshot taken at creation time.
// CommissionRate, CommissionAmount and NetAmount are write-once: they are
// never recomputed, even when the originating rule later changes.
type OrderItem struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	SellerID         uuid.UUID
	EventID          *uuid.UUID
	CategoryID       *uuid.UUID
	ItemTitle        string
	Quantity         int64
	UnitPrice        float64
	TotalPrice       float64
	CommissionRate   float64
	CommissionAmount float64
	NetAmount        float64
}

type TicketOrderStatus string

const (
	TicketPending   TicketOrderStatus = "pending"
	TicketConfirmed TicketOrderStatus = "confirmed"
	TicketCancelled TicketOrderStatus = "cancelled"
)

type TicketOrder struct {
	ID           uuid.UUID
	TicketTypeID uuid.UUID
	BuyerID      uuid.UUID
	Quantity     int64
	Status       TicketOrderStatus
	CreatedAt    time.Time
}

// TransitionResult distinguishes "this call caused the change" from
// "someone already did": Applied is false when the conditional update
// found a different current status.
type TransitionResult struct {
	Applied       bool
	CurrentStatus string
}
