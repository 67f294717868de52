package payload

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/internal/leadsync/mapping"
	"go.uber.org/zap"
)

// Fixed CRM lead fields.
const (
	FieldTitle             = "TITLE"
	FieldName              = "NAME"
	FieldLastName          = "LAST_NAME"
	FieldEmail             = "EMAIL"
	FieldSourceID          = "SOURCE_ID"
	FieldOpportunity       = "OPPORTUNITY"
	FieldCurrencyID        = "CURRENCY_ID"
	FieldAddress           = "ADDRESS"
	FieldAddress2          = "ADDRESS_2"
	FieldAddressCity       = "ADDRESS_CITY"
	FieldAddressCountry    = "ADDRESS_COUNTRY"
	FieldAddressPostalCode = "ADDRESS_POSTAL_CODE"
	FieldComments          = "COMMENTS"
)

const (
	titlePrefix        = "Custom Solution-"
	sourceStore        = "STORE"
	emailTypeWork      = "WORK"
	defaultVariant     = "default title"
	noProductsFound    = "No products found"
	collectionsPreface = "Collections in this order: "
)

// EmailValue is the multi-field shape the CRM expects for e-mail addresses.
type EmailValue struct {
	Value     string `json:"VALUE"`
	ValueType string `json:"VALUE_TYPE"`
}

// Builder assembles the CRM lead record for an order.
type Builder struct {
	log *zap.Logger
}

func NewBuilder(log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{log: log.Named("leadsync.builder")}
}

// Build projects the order onto CRM fields using the given mapping set.
func (b *Builder) Build(order *domain.OrderEvent, set mapping.Set) domain.LeadPayload {
	fields := domain.LeadFields{
		FieldTitle:             titlePrefix + order.Title,
		FieldName:              order.FirstName,
		FieldLastName:          order.LastName,
		FieldEmail:             []EmailValue{{Value: order.Email, ValueType: emailTypeWork}},
		FieldSourceID:          sourceStore,
		FieldOpportunity:       order.TotalPrice.StringFixed(2),
		FieldCurrencyID:        order.Currency,
		FieldAddress:           FullAddress(order.Shipping),
		FieldAddress2:          order.Shipping.Address2,
		FieldAddressCity:       order.Shipping.City,
		FieldAddressCountry:    order.Shipping.Country,
		FieldAddressPostalCode: order.Shipping.PostalCode,
		set.ExternalIDField:    order.ID,
	}

	details := make([]string, 0, len(order.LineItems))
	collections := make([]domain.Collection, 0, 3)
	seen := make(map[domain.Collection]struct{}, 3)

	for _, item := range order.LineItems {
		details = append(details, Describe(item))

		collection := mapping.Classify(item.Name)
		if collection == domain.CollectionUncategorized {
			continue
		}
		if _, ok := seen[collection]; !ok {
			seen[collection] = struct{}{}
			collections = append(collections, collection)
		}

		table := set.Table(collection)
		for _, prop := range mapping.NormalizeProperties(item.Properties) {
			field, ok := table.Lookup(prop.Name)
			if !ok {
				b.log.Warn("property not mapped for collection, skipping",
					zap.String("order_id", order.ID),
					zap.String("collection", collection.String()),
					zap.String("property", prop.Name),
				)
				continue
			}
			fields[field] = prop.Value
		}
	}

	if len(details) == 0 {
		details = append(details, noProductsFound)
	}
	fields[set.ProductDetailsField] = details
	fields[FieldComments] = CollectionsSummary(collections)

	return domain.LeadPayload{
		OrderID:         order.ID,
		ExternalIDField: set.ExternalIDField,
		Fields:          fields,
		Collections:     collections,
	}
}

// Describe renders the human-readable product line for a line item.
func Describe(item domain.LineItem) string {
	var sb strings.Builder
	sb.WriteString("Product: ")
	sb.WriteString(item.Title)
	if item.VariantTitle != "" && !strings.EqualFold(item.VariantTitle, defaultVariant) {
		sb.WriteString(" (")
		sb.WriteString(item.VariantTitle)
		sb.WriteString(")")
	}
	sb.WriteString(fmt.Sprintf(", Quantity: %d", item.Quantity))
	return sb.String()
}

// FullAddress joins the non-empty address parts with ", ".
func FullAddress(addr domain.ShippingAddress) string {
	parts := make([]string, 0, 5)
	for _, part := range []string{addr.Address1, addr.Address2, addr.City, addr.Country, addr.PostalCode} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

func CollectionsSummary(collections []domain.Collection) string {
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.String())
	}
	return collectionsPreface + strings.Join(names, ", ")
}
