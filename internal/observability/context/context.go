package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	orderIDKey
	webhookIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithOrderID tags the context with the order being processed.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	if orderID == "" {
		return ctx
	}
	return context.WithValue(ctx, orderIDKey, orderID)
}

func OrderIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(orderIDKey).(string)
	return v
}

func WithWebhookID(ctx context.Context, webhookID string) context.Context {
	if webhookID == "" {
		return ctx
	}
	return context.WithValue(ctx, webhookIDKey, webhookID)
}

func WebhookIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(webhookIDKey).(string)
	return v
}
