package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/emunro22/root-fuel/internal/entity"
)

type PromoResult struct {
	PromotionCodeID string
	Discount        domain.Discount
}

// ValidatePromo looks a customer-entered code up in the provider's registry.
// It writes nothing.
type ValidatePromo struct {
	provider PaymentProvider
	timeout  time.Duration
}

func NewValidatePromo(provider PaymentProvider, timeout time.Duration) *ValidatePromo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ValidatePromo{provider: provider, timeout: timeout}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (uc *ValidatePromo) Execute(ctx context.Context, code string) (PromoResult, error) {
	norm := NormalizeCode(code)
	if norm == "" {
		return PromoResult{}, invalid(ErrEmptyCode)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	p, err := uc.provider.FindPromotion(ctx, norm)
	if errors.Is(err, ErrNotFound) {
		return PromoResult{}, ErrNotFound
	}
	if err != nil {
		return PromoResult{}, upstream("find promotion", err)
	}
	return PromoResult{PromotionCodeID: p.ID, Discount: p.Discount}, nil
}
