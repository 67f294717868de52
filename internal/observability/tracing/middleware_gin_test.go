package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestGinMiddlewareTagsDeliverySpan(t *testing.T) {
	sr := withSpanRecorder(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/webhook", func(c *gin.Context) {
		c.Set("webhook_topic", "orders/create")
		c.Set("webhook_id", "wh-1001")
		c.Set("order_id", "1001")
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /webhook", spans[0].Name())
	attrs := spanAttributes(spans[0])
	assert.Equal(t, "orders/create", attrs["webhook.topic"].AsString())
	assert.Equal(t, "wh-1001", attrs["webhook_id"].AsString())
	assert.Equal(t, "1001", attrs["order_id"].AsString())
	assert.Equal(t, int64(http.StatusOK), attrs["http.status_code"].AsInt64())
}

func TestGinMiddlewareOmitsMissingDeliveryIDs(t *testing.T) {
	sr := withSpanRecorder(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttributes(spans[0])
	assert.NotContains(t, attrs, attribute.Key("order_id"))
	assert.NotContains(t, attrs, attribute.Key("webhook_id"))
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	sr := withSpanRecorder(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/webhook", func(c *gin.Context) {
		c.Set("order_id", "1001")
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "1001", spanAttributes(spans[0])["order_id"].AsString())
}
