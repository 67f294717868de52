package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	obscontext "github.com/smallbiznis/orderlead/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	MethodLeadList   = "crm.lead.list"
	MethodLeadAdd    = "crm.lead.add"
	MethodLeadUpdate = "crm.lead.update"

	maxResponseBytes = 1 << 20
)

var ErrNotConfigured = errors.New("bitrix webhook url is not configured")

// RequestObserver receives the outcome of every CRM call.
type RequestObserver interface {
	ObserveCRMRequest(method string, statusCode int, duration time.Duration)
}

type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

// Client talks to the Bitrix24 REST API through an inbound webhook URL. The
// credential is part of the URL, so no auth header is sent.
type Client struct {
	baseURL  string
	http     *http.Client
	log      *zap.Logger
	observer RequestObserver
	tracer   trace.Tracer
}

func NewClient(cfg Config, log *zap.Logger, observer RequestObserver) (*Client, error) {
	base := strings.TrimSpace(cfg.WebhookURL)
	if base == "" {
		return nil, ErrNotConfigured
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  base,
		http:     &http.Client{Timeout: timeout},
		log:      log.Named("bitrix"),
		observer: observer,
		tracer:   otel.Tracer("orderlead/bitrix"),
	}, nil
}

type listRequest struct {
	Filter map[string]string `json:"filter"`
	Select []string          `json:"select"`
}

type addRequest struct {
	Fields domain.LeadFields `json:"fields"`
}

type updateRequest struct {
	ID     string            `json:"id"`
	Fields domain.LeadFields `json:"fields"`
}

type envelope struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

type leadRow struct {
	ID flexID `json:"ID"`
}

// flexID accepts identifiers encoded either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (c *Client) ListLeads(ctx context.Context, req domain.ListLeadsRequest) ([]domain.LeadRef, error) {
	var rows []leadRow
	if err := c.call(ctx, MethodLeadList, listRequest{Filter: req.Filter, Select: req.Select}, &rows); err != nil {
		return nil, err
	}
	leads := make([]domain.LeadRef, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		leads = append(leads, domain.LeadRef{ID: string(row.ID)})
	}
	return leads, nil
}

func (c *Client) AddLead(ctx context.Context, fields domain.LeadFields) (string, error) {
	var id flexID
	if err := c.call(ctx, MethodLeadAdd, addRequest{Fields: fields}, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", &APIError{Method: MethodLeadAdd, StatusCode: http.StatusOK, Body: "empty lead id in response"}
	}
	return string(id), nil
}

func (c *Client) UpdateLead(ctx context.Context, id string, fields domain.LeadFields) error {
	var ok bool
	if err := c.call(ctx, MethodLeadUpdate, updateRequest{ID: id, Fields: fields}, &ok); err != nil {
		return err
	}
	if !ok {
		return &APIError{Method: MethodLeadUpdate, StatusCode: http.StatusOK, Body: "lead update was not applied"}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, in any, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "bitrix "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(correlationAttributes(ctx, method)...),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "crm request failed")
		}
		span.End()
	}()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, 0, time.Since(start))
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.observe(method, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	c.log.Debug("crm response",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", raw),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if env.Error != "" {
		return &APIError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			Code:        env.Error,
			Description: env.ErrorDescription,
			Body:        string(raw),
		}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}

func correlationAttributes(ctx context.Context, method string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("crm.method", method)}
	if orderID := obscontext.OrderIDFromContext(ctx); orderID != "" {
		attrs = append(attrs, attribute.String("order_id", orderID))
	}
	if webhookID := obscontext.WebhookIDFromContext(ctx); webhookID != "" {
		attrs = append(attrs, attribute.String("webhook_id", webhookID))
	}
	return attrs
}

func (c *Client) observe(method string, status int, d time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveCRMRequest(method, status, d)
}
