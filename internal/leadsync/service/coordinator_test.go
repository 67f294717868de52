package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/internal/leadsync/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingLocker struct {
	err error
}

func (l failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, l.err
}

func TestUpsertLockFailureSkipsCRM(t *testing.T) {
	client := &leadClientMock{}
	c := NewCoordinator(client, failingLocker{err: domain.ErrLockTimeout}, zap.NewNop(), nil)

	_, err := c.Upsert(context.Background(), domain.LeadPayload{OrderID: "1001", ExternalIDField: "UF_X"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Equal(t, domain.KindUnexpected, domain.KindOf(err))
	client.AssertNotCalled(t, "ListLeads", mock.Anything, mock.Anything)
}

func TestUpsertRequiresOrderID(t *testing.T) {
	c := NewCoordinator(&leadClientMock{}, lock.NewKeyedLocker(), zap.NewNop(), nil)

	_, err := c.Upsert(context.Background(), domain.LeadPayload{})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestUpsertCreatesWhenNoMatch(t *testing.T) {
	client := &leadClientMock{}
	fields := domain.LeadFields{"UF_X": "1001"}
	client.On("ListLeads", mock.Anything, domain.ListLeadsRequest{
		Filter: map[string]string{"UF_X": "1001"},
		Select: []string{"ID"},
	}).Return([]domain.LeadRef{}, nil).Once()
	client.On("AddLead", mock.Anything, fields).Return("42", nil).Once()

	c := NewCoordinator(client, lock.NewKeyedLocker(), zap.NewNop(), nil)
	res, err := c.Upsert(context.Background(), domain.LeadPayload{OrderID: "1001", ExternalIDField: "UF_X", Fields: fields})
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertResult{LeadID: "42", Action: domain.UpsertActionCreated}, res)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "UpdateLead", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpsertCancelledRequestIsNotUpstream(t *testing.T) {
	client := &leadClientMock{}
	client.On("ListLeads", mock.Anything, mock.Anything).Return(nil, context.Canceled).Once()

	c := NewCoordinator(client, lock.NewKeyedLocker(), zap.NewNop(), nil)
	_, err := c.Upsert(context.Background(), domain.LeadPayload{OrderID: "1001", ExternalIDField: "UF_X"})
	assert.Equal(t, domain.KindUnexpected, domain.KindOf(err))
}
