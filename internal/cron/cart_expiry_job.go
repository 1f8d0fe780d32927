package cron

import (
	"context"
	"fmt"

	"github.com/ruddro420/storefront-cart/pkg/logger"
)

const cartExpiryJobName = "cart_snapshot_expiry"

type expiredCartDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CartExpiryJob removes cart snapshots whose TTL has passed. Redis expires its own keys,
// so only the db backend needs this.
type CartExpiryJob struct {
	store expiredCartDeleter
	logg  *logger.Logger
}

func NewCartExpiryJob(store expiredCartDeleter, logg *logger.Logger) (*CartExpiryJob, error) {
	if store == nil {
		return nil, fmt.Errorf("cart snapshot store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &CartExpiryJob{store: store, logg: logg}, nil
}

func (j *CartExpiryJob) Name() string {
	return cartExpiryJobName
}

func (j *CartExpiryJob) Run(ctx context.Context) error {
	removed, err := j.store.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired cart snapshots: %w", err)
	}
	if removed > 0 {
		j.logg.Info(j.logg.WithField(ctx, "removed", removed), "janitor.cart_snapshots_expired")
	}
	return nil
}
