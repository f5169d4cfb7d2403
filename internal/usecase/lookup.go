package usecase

import (
	"context"
	"errors"
	"time"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/logging"
)

type OrderStatusOutput struct {
	OrderID string
	Status  domain.Status
}

// OrderStatus answers operator lookups: cache first, ledger second.
type OrderStatus struct {
	ledger  Ledger
	cache   OrderCache // optional
	timeout time.Duration
}

func NewOrderStatus(ledger Ledger, cache OrderCache, timeout time.Duration) *OrderStatus {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OrderStatus{ledger: ledger, cache: cache, timeout: timeout}
}

func (uc *OrderStatus) Execute(ctx context.Context, orderID string) (OrderStatusOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	if uc.cache != nil {
		if s, ok, err := uc.cache.GetStatus(ctx, orderID); err == nil && ok {
			return OrderStatusOutput{OrderID: orderID, Status: domain.ParseStatus(s)}, nil
		} else if err != nil {
			logging.FromCtx(ctx).Warn("status cache read failed", "order_id", orderID, "err", err)
		}
	}

	rec, err := uc.ledger.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OrderStatusOutput{}, ErrNotFound
		}
		return OrderStatusOutput{}, upstream("ledger get", err)
	}
	return OrderStatusOutput{OrderID: rec.ID, Status: domain.ParseStatus(rec.Status)}, nil
}
