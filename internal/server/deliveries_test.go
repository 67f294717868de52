package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderlead/internal/config"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeliveryLog struct {
	records []*domain.DeliveryRecord
	filters []domain.DeliveryFilter
	err     error
}

func (f *fakeDeliveryLog) ListDeliveries(_ context.Context, filter domain.DeliveryFilter) ([]*domain.DeliveryRecord, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []*domain.DeliveryRecord
	for _, r := range f.records {
		if filter.BeforeID != 0 && r.ID >= filter.BeforeID {
			continue
		}
		if filter.OrderID != "" && r.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type deliveriesResponse struct {
	Data     []map[string]any    `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

const adminToken = "admin-secret"

func adminConfig() config.Config {
	return config.Config{AdminAPIToken: adminToken, DBType: "sqlite", DBName: "orderlead"}
}

func getDeliveries(s *Server, query, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/deliveries"+query, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func seededLog() *fakeDeliveryLog {
	return &fakeDeliveryLog{records: []*domain.DeliveryRecord{
		{ID: snowflake.ID(30), OrderID: "1003", Status: domain.DeliveryStatusFailed, Error: "crm down"},
		{ID: snowflake.ID(20), OrderID: "1002", Status: domain.DeliveryStatusSucceeded, LeadID: "7", Action: "created"},
		{ID: snowflake.ID(10), OrderID: "1001", Status: domain.DeliveryStatusSucceeded, LeadID: "5", Action: "updated"},
	}}
}

func TestDeliveriesRouteAbsentWithoutToken(t *testing.T) {
	s := newTestServer(t, config.Config{}, &leadServiceMock{}, seededLog())

	w := getDeliveries(s, "", "anything")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeliveriesRouteAbsentWithoutDatabase(t *testing.T) {
	s := newTestServer(t, config.Config{AdminAPIToken: adminToken}, &leadServiceMock{}, seededLog())

	w := getDeliveries(s, "", adminToken)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeliveriesRequiresBearerToken(t *testing.T) {
	s := newTestServer(t, adminConfig(), &leadServiceMock{}, seededLog())

	assert.Equal(t, http.StatusUnauthorized, getDeliveries(s, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, getDeliveries(s, "", "wrong").Code)
}

func TestDeliveriesPaginates(t *testing.T) {
	log := seededLog()
	s := newTestServer(t, adminConfig(), &leadServiceMock{}, log)

	w := getDeliveries(s, "?page_size=2", adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	var first deliveriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.Len(t, first.Data, 2)
	assert.Equal(t, "1003", first.Data[0]["order_id"])
	assert.Equal(t, "1002", first.Data[1]["order_id"])
	assert.True(t, first.PageInfo.HasMore)
	require.NotEmpty(t, first.PageInfo.NextPageToken)
	assert.Equal(t, 3, log.filters[0].Limit)

	w = getDeliveries(s, "?page_size=2&page_token="+first.PageInfo.NextPageToken, adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	var second deliveriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.Len(t, second.Data, 1)
	assert.Equal(t, "1001", second.Data[0]["order_id"])
	assert.False(t, second.PageInfo.HasMore)
	assert.Equal(t, snowflake.ID(20), log.filters[1].BeforeID)
}

func TestDeliveriesFilters(t *testing.T) {
	log := seededLog()
	s := newTestServer(t, adminConfig(), &leadServiceMock{}, log)

	w := getDeliveries(s, "?status=failed&order_id=1003", adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	var resp deliveriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "crm down", resp.Data[0]["error"])
	assert.Equal(t, domain.DeliveryStatusFailed, log.filters[0].Status)
	assert.Equal(t, "1003", log.filters[0].OrderID)
}

func TestDeliveriesRejectsBadQuery(t *testing.T) {
	s := newTestServer(t, adminConfig(), &leadServiceMock{}, seededLog())

	for _, query := range []string{"?status=pending", "?page_token=not-a-cursor", "?page_size=500"} {
		w := getDeliveries(s, query, adminToken)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestDeliveriesDisabledLog(t *testing.T) {
	s := newTestServer(t, adminConfig(), &leadServiceMock{}, &fakeDeliveryLog{err: domain.ErrDeliveryLogDisabled})

	w := getDeliveries(s, "", adminToken)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service_unavailable", decodeError(t, w).Type)
}
