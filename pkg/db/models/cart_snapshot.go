package models

import "time"

// CartSnapshot holds the persisted cart record for one shopper session. Payload is the
// JSON layout {"version": n, "items": [...], "coupon": ...}; Version mirrors the
// payload's version so writes can be made conditional.
type CartSnapshot struct {
	SessionID string     `gorm:"column:session_id;primaryKey"`
	Payload   string     `gorm:"column:payload;not null"`
	Version   int64      `gorm:"column:version;not null;default:0"`
	LineCount int        `gorm:"column:line_count;not null;default:0"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartSnapshot) TableName() string {
	return "cart_snapshots"
}
