package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ruddro420/storefront-cart/internal/cart"
	"github.com/ruddro420/storefront-cart/pkg/db/models"
)

// DBPersister stores cart records in the cart_snapshots table.
type DBPersister struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewDBPersister(db *gorm.DB, ttl time.Duration) (*DBPersister, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &DBPersister{db: db, ttl: ttl, now: time.Now}, nil
}

func (p *DBPersister) Name() string {
	return BackendDB
}

// Load returns nil for missing or expired snapshots.
func (p *DBPersister) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var snapshot models.CartSnapshot
	err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}
	if snapshot.ExpiresAt != nil && !snapshot.ExpiresAt.After(p.now()) {
		return nil, nil
	}
	return []byte(snapshot.Payload), nil
}

// Save upserts the snapshot for the session. An existing row is only replaced when its
// version is lower or it has already expired; otherwise ErrStaleRecord is returned.
func (p *DBPersister) Save(ctx context.Context, sessionID string, version uint64, record []byte) error {
	state, _ := cart.DecodeState(record)
	now := p.now().UTC()
	snapshot := models.CartSnapshot{
		SessionID: sessionID,
		Payload:   string(record),
		Version:   int64(version),
		LineCount: len(state.Lines),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.ttl > 0 {
		expires := now.Add(p.ttl)
		snapshot.ExpiresAt = &expires
	}
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "version", "line_count", "expires_at", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{
					SQL:  "cart_snapshots.version < excluded.version OR (cart_snapshots.expires_at IS NOT NULL AND cart_snapshots.expires_at <= ?)",
					Vars: []any{now},
				},
			}},
		}).
		Create(&snapshot)
	if res.Error != nil {
		return fmt.Errorf("save cart snapshot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return cart.ErrStaleRecord
	}
	return nil
}

// DeleteExpired removes snapshots whose TTL has passed.
func (p *DBPersister) DeleteExpired(ctx context.Context) (int64, error) {
	res := p.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", p.now().UTC()).
		Delete(&models.CartSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired cart snapshots: %w", res.Error)
	}
	return res.RowsAffected, nil
}
