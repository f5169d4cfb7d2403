package usecase

import (
	"context"
	"testing"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus(t *testing.T) {
	ledger := newFakeLedger()
	require.NoError(t, ledger.Append(context.Background(), &domain.Order{ID: "ORD-1", Status: domain.StatusPendingPayment}))
	cache := &fakeCache{}
	uc := NewOrderStatus(ledger, cache, 0)

	out, err := uc.Execute(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingPayment, out.Status)

	// cache wins once populated
	require.NoError(t, cache.SetStatus(context.Background(), "ORD-1", "paid"))
	out, err = uc.Execute(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, out.Status)

	_, err = uc.Execute(context.Background(), "ORD-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderStatus_LedgerDown(t *testing.T) {
	_, err := NewOrderStatus(&failingLedger{}, nil, 0).Execute(context.Background(), "ORD-1")
	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)
}

type failingLedger struct{ fakeLedger }

func (*failingLedger) Get(context.Context, string) (*OrderRecord, error) { return nil, ErrMockLedger }
