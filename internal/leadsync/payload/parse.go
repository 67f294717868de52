package payload

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"go.uber.org/zap"
)

const (
	DefaultCurrency = "USD"

	defaultOrderTitle   = "Unknown Order Title"
	defaultEmail        = "No email provided"
	defaultCustomerName = "Unknown"
	defaultAddress1     = "No address provided"
	defaultProductTitle = "Unknown Product"
)

// text accepts a JSON string, number or boolean and keeps its textual form.
// Other shapes are ignored rather than rejected.
type text struct {
	Value string
	Set   bool
}

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t.Value = s
	case '{', '[':
		return nil
	default:
		t.Value = string(b)
	}
	t.Set = true
	return nil
}

func (t text) or(def string) string {
	if !t.Set {
		return def
	}
	return t.Value
}

type rawOrder struct {
	ID              text         `json:"id"`
	Name            text         `json:"name"`
	Email           text         `json:"email"`
	Customer        *rawCustomer `json:"customer"`
	ShippingAddress *rawAddress  `json:"shipping_address"`
	TotalPrice      text         `json:"total_price"`
	Currency        text         `json:"currency"`
	LineItems       []rawItem    `json:"line_items"`
}

type rawCustomer struct {
	FirstName text `json:"first_name"`
	LastName  text `json:"last_name"`
}

type rawAddress struct {
	Address1 text `json:"address1"`
	Address2 text `json:"address2"`
	City     text `json:"city"`
	Country  text `json:"country"`
	Zip      text `json:"zip"`
}

type rawItem struct {
	Name         text          `json:"name"`
	Title        text          `json:"title"`
	VariantTitle text          `json:"variant_title"`
	Quantity     text          `json:"quantity"`
	Properties   []rawProperty `json:"properties"`
}

type rawProperty struct {
	Name  text `json:"name"`
	Value text `json:"value"`
}

// Parser turns an order webhook body into an OrderEvent.
type Parser struct {
	log             *zap.Logger
	accepted        map[string]struct{}
	defaultCurrency string
}

func NewParser(log *zap.Logger, acceptedCurrencies []string) *Parser {
	accepted := make(map[string]struct{}, len(acceptedCurrencies))
	for _, c := range acceptedCurrencies {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			accepted[c] = struct{}{}
		}
	}
	if len(accepted) == 0 {
		accepted[DefaultCurrency] = struct{}{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{
		log:             log.Named("leadsync.parser"),
		accepted:        accepted,
		defaultCurrency: DefaultCurrency,
	}
}

// Parse validates the body and applies defaults to missing optional fields.
// Only a malformed body or a missing order id are errors.
func (p *Parser) Parse(body []byte) (*domain.OrderEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, domain.NewValidationError("invalid JSON payload", domain.ErrInvalidPayload)
	}

	var raw rawOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewValidationError("failed to parse JSON payload", domain.ErrInvalidPayload)
	}

	orderID := strings.TrimSpace(raw.ID.Value)
	if !raw.ID.Set || orderID == "" {
		return nil, domain.NewValidationError("invalid order payload: 'id' missing", domain.ErrMissingOrderID)
	}

	event := &domain.OrderEvent{
		ID:         orderID,
		Title:      raw.Name.or(defaultOrderTitle),
		Email:      raw.Email.or(defaultEmail),
		FirstName:  defaultCustomerName,
		LastName:   defaultCustomerName,
		Shipping:   domain.ShippingAddress{Address1: defaultAddress1},
		TotalPrice: p.parsePrice(orderID, raw.TotalPrice),
		Currency:   p.parseCurrency(orderID, raw.Currency),
	}
	if raw.Customer != nil {
		event.FirstName = raw.Customer.FirstName.or(defaultCustomerName)
		event.LastName = raw.Customer.LastName.or(defaultCustomerName)
	}
	if addr := raw.ShippingAddress; addr != nil {
		event.Shipping = domain.ShippingAddress{
			Address1:   addr.Address1.or(defaultAddress1),
			Address2:   addr.Address2.Value,
			City:       addr.City.Value,
			Country:    addr.Country.Value,
			PostalCode: addr.Zip.Value,
		}
	}

	event.LineItems = make([]domain.LineItem, 0, len(raw.LineItems))
	for _, item := range raw.LineItems {
		event.LineItems = append(event.LineItems, parseItem(item))
	}
	return event, nil
}

func (p *Parser) parsePrice(orderID string, raw text) decimal.Decimal {
	if !raw.Set {
		return decimal.Zero
	}
	price, err := decimal.NewFromString(strings.TrimSpace(raw.Value))
	if err != nil {
		p.log.Warn("invalid total_price, defaulting to 0.00",
			zap.String("order_id", orderID),
			zap.String("total_price", raw.Value),
		)
		return decimal.Zero
	}
	return price
}

func (p *Parser) parseCurrency(orderID string, raw text) string {
	currency := strings.ToUpper(strings.TrimSpace(raw.Value))
	if currency == "" {
		p.log.Warn("currency missing, using default",
			zap.String("order_id", orderID),
			zap.String("currency", p.defaultCurrency),
		)
		return p.defaultCurrency
	}
	if _, ok := p.accepted[currency]; !ok {
		p.log.Warn("unsupported currency, using default",
			zap.String("order_id", orderID),
			zap.String("currency", currency),
			zap.String("default_currency", p.defaultCurrency),
		)
		return p.defaultCurrency
	}
	return currency
}

func parseItem(raw rawItem) domain.LineItem {
	item := domain.LineItem{
		Name:         raw.Name.Value,
		Title:        raw.Title.or(defaultProductTitle),
		VariantTitle: raw.VariantTitle.Value,
		Quantity:     1,
	}
	if raw.Quantity.Set {
		if qty, err := strconv.Atoi(strings.TrimSpace(raw.Quantity.Value)); err == nil {
			item.Quantity = qty
		}
	}
	item.Properties = make([]domain.Property, 0, len(raw.Properties))
	for _, prop := range raw.Properties {
		item.Properties = append(item.Properties, domain.Property{
			Name:  prop.Name.Value,
			Value: prop.Value.Value,
		})
	}
	return item
}
