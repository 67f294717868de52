package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TopicOrderCreate is the only webhook topic that results in a CRM write.
const TopicOrderCreate = "orders/create"

// Collection groups similar products that share one custom-field mapping table.
type Collection string

const (
	CollectionGraphicsKit        Collection = "Graphics Kit"
	CollectionBackground         Collection = "Background"
	CollectionIndividualGraphics Collection = "Individual Graphics"
	CollectionUncategorized      Collection = "Uncategorized"
)

func (c Collection) String() string { return string(c) }

// Property is a raw custom option attached to a line item.
type Property struct {
	Name  string
	Value string
}

type LineItem struct {
	Name         string
	Title        string
	VariantTitle string
	Quantity     int
	Properties   []Property
}

type ShippingAddress struct {
	Address1   string
	Address2   string
	City       string
	Country    string
	PostalCode string
}

// OrderEvent is the parsed order-creation payload.
type OrderEvent struct {
	ID         string
	Title      string
	Email      string
	FirstName  string
	LastName   string
	Shipping   ShippingAddress
	TotalPrice decimal.Decimal
	Currency   string
	LineItems  []LineItem
}

// LeadFields maps CRM field identifiers to values.
type LeadFields map[string]any

// LeadPayload is the outbound record for one order.
type LeadPayload struct {
	OrderID         string
	ExternalIDField string
	Fields          LeadFields
	Collections     []Collection
}

// LeadRef is a lead returned by a CRM lookup.
type LeadRef struct {
	ID string
}

type UpsertAction string

const (
	UpsertActionCreated UpsertAction = "created"
	UpsertActionUpdated UpsertAction = "updated"
)

type UpsertResult struct {
	LeadID string
	Action UpsertAction
}

// Delivery is the inbound webhook as seen by the ingestion pipeline.
type Delivery struct {
	Topic      string
	WebhookID  string
	ShopDomain string
	Body       []byte
}

type Result struct {
	Ignored bool
	OrderID string
	LeadID  string
	Action  UpsertAction
}

type DeliveryStatus string

const (
	DeliveryStatusSucceeded DeliveryStatus = "succeeded"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// DeliveryRecord is a row of the webhook delivery log.
type DeliveryRecord struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	WebhookID   *string        `json:"webhook_id" gorm:"size:191;uniqueIndex"`
	Topic       string         `json:"topic" gorm:"size:64;not null"`
	ShopDomain  string         `json:"shop_domain" gorm:"size:255"`
	OrderID     string         `json:"order_id" gorm:"size:191;not null;index"`
	LeadID      string         `json:"lead_id" gorm:"size:64"`
	Action      string         `json:"action" gorm:"size:16"`
	Status      DeliveryStatus `json:"status" gorm:"size:16;not null"`
	Error       string         `json:"error" gorm:"type:text"`
	Payload     datatypes.JSON `json:"-"`
	Attempts    int            `json:"attempts" gorm:"not null;default:1"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt time.Time      `json:"processed_at" gorm:"not null"`
}

// DeliveryFilter narrows a delivery log listing. BeforeID is an exclusive
// cursor; results are ordered newest first.
type DeliveryFilter struct {
	OrderID  string
	Status   DeliveryStatus
	BeforeID snowflake.ID
	Limit    int
}

func (DeliveryRecord) TableName() string { return "webhook_deliveries" }
