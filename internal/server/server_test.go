package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orderlead/internal/bitrix"
	"github.com/smallbiznis/orderlead/internal/config"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type leadServiceMock struct {
	mock.Mock
}

func (m *leadServiceMock) HandleDelivery(ctx context.Context, delivery domain.Delivery) (*domain.Result, error) {
	args := m.Called(ctx, delivery)
	result, _ := args.Get(0).(*domain.Result)
	return result, args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg config.Config, svc domain.Service, log domain.DeliveryLog) *Server {
	t.Helper()
	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	return NewServer(ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		LeadSvc:     svc,
		DeliveryLog: log,
	})
}

func postWebhook(s *Server, topic, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if topic != "" {
		req.Header.Set(headerShopifyTopic, topic)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestIndexReportsAvailability(t *testing.T) {
	s := newTestServer(t, config.Config{}, &leadServiceMock{}, nil)

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Shopify webhook is up and running.", w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.Config{}, &leadServiceMock{}, nil)

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestWebhookSuccessReturnsEmptyBody(t *testing.T) {
	svc := &leadServiceMock{}
	body := `{"id":1001,"total_price":"10.00","currency":"USD"}`
	svc.On("HandleDelivery", mock.Anything, mock.MatchedBy(func(d domain.Delivery) bool {
		return d.Topic == domain.TopicOrderCreate &&
			d.WebhookID == "wh-1" &&
			d.ShopDomain == "shop.myshopify.com" &&
			string(d.Body) == body
	})).Return(&domain.Result{OrderID: "1001", LeadID: "55", Action: domain.UpsertActionCreated}, nil).Once()

	s := newTestServer(t, config.Config{}, svc, nil)
	w := postWebhook(s, domain.TopicOrderCreate, body, map[string]string{
		headerShopifyWebhookID:  "wh-1",
		headerShopifyShopDomain: "shop.myshopify.com",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	svc.AssertExpectations(t)
}

func TestWebhookIgnoredTopicReturnsOK(t *testing.T) {
	svc := &leadServiceMock{}
	svc.On("HandleDelivery", mock.Anything, mock.MatchedBy(func(d domain.Delivery) bool {
		return d.Topic == "orders/updated"
	})).Return(&domain.Result{Ignored: true}, nil).Once()

	s := newTestServer(t, config.Config{}, svc, nil)
	w := postWebhook(s, "orders/updated", `{"id":1}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	svc.AssertExpectations(t)
}

func TestWebhookValidationErrorsReturn400(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{
			name:    "invalid json",
			err:     domain.NewValidationError("invalid JSON payload", domain.ErrInvalidPayload),
			code:    "invalid_payload",
			message: "invalid JSON payload",
		},
		{
			name:    "missing id",
			err:     domain.NewValidationError("invalid order payload: 'id' missing", domain.ErrMissingOrderID),
			code:    "missing_order_id",
			message: "invalid order payload: 'id' missing",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &leadServiceMock{}
			svc.On("HandleDelivery", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			s := newTestServer(t, config.Config{}, svc, nil)
			w := postWebhook(s, domain.TopicOrderCreate, `{}`, nil)

			require.Equal(t, http.StatusBadRequest, w.Code)
			payload := decodeError(t, w)
			assert.Equal(t, "validation_error", payload.Type)
			assert.Equal(t, tc.message, payload.Message)
			require.Len(t, payload.Errors, 1)
			assert.Equal(t, tc.code, payload.Errors[0].Code)
		})
	}
}

func TestWebhookUpstreamErrorReturns500WithCRMBody(t *testing.T) {
	apiErr := &bitrix.APIError{Method: bitrix.MethodLeadAdd, StatusCode: http.StatusServiceUnavailable, Body: "maintenance"}
	svc := &leadServiceMock{}
	svc.On("HandleDelivery", mock.Anything, mock.Anything).
		Return(nil, domain.NewUpstreamError("1001", "create lead", apiErr)).Once()

	s := newTestServer(t, config.Config{}, svc, nil)
	w := postWebhook(s, domain.TopicOrderCreate, `{"id":1001}`, nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, "upstream_error", payload.Type)
	assert.Contains(t, payload.Message, "503")
	assert.Contains(t, payload.Message, "maintenance")
	assert.Contains(t, payload.Message, "order 1001")
}

func TestWebhookUnexpectedErrorReturns500(t *testing.T) {
	svc := &leadServiceMock{}
	svc.On("HandleDelivery", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	s := newTestServer(t, config.Config{}, svc, nil)
	w := postWebhook(s, domain.TopicOrderCreate, `{"id":1001}`, nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decodeError(t, w).Type)
}

func TestWebhookSignature(t *testing.T) {
	const secret = "shpss_test"
	body := `{"id":1001}`

	t.Run("rejects missing signature", func(t *testing.T) {
		svc := &leadServiceMock{}
		s := newTestServer(t, config.Config{ShopifyWebhookSecret: secret}, svc, nil)

		w := postWebhook(s, domain.TopicOrderCreate, body, nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "unauthorized", decodeError(t, w).Type)
		svc.AssertNotCalled(t, "HandleDelivery", mock.Anything, mock.Anything)
	})

	t.Run("rejects wrong signature", func(t *testing.T) {
		svc := &leadServiceMock{}
		s := newTestServer(t, config.Config{ShopifyWebhookSecret: secret}, svc, nil)

		w := postWebhook(s, domain.TopicOrderCreate, body, map[string]string{
			headerShopifyHmac: sign("other", body),
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "HandleDelivery", mock.Anything, mock.Anything)
	})

	t.Run("accepts valid signature", func(t *testing.T) {
		svc := &leadServiceMock{}
		svc.On("HandleDelivery", mock.Anything, mock.Anything).
			Return(&domain.Result{OrderID: "1001"}, nil).Once()
		s := newTestServer(t, config.Config{ShopifyWebhookSecret: secret}, svc, nil)

		w := postWebhook(s, domain.TopicOrderCreate, body, map[string]string{
			headerShopifyHmac: sign(secret, body),
		})

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})
}

func TestUnknownRouteReturns404(t *testing.T) {
	s := newTestServer(t, config.Config{}, &leadServiceMock{}, nil)

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Type)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(domain.NewValidationError("x", domain.ErrMissingOrderID))
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "missing_order_id", code)

	typ, code = classifyErrorForLog(domain.NewUpstreamError("1", "create lead", errors.New("x")))
	assert.Equal(t, "upstream_error", typ)
	assert.Equal(t, "upstream_error", code)

	typ, _ = classifyErrorForLog(ErrNotFound)
	assert.Equal(t, "not_found", typ)

	typ, code = classifyErrorForLog(nil)
	assert.Empty(t, typ)
	assert.Empty(t, code)
}
