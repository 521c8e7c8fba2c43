package domain

import "time"

// Idempotency records the outcome of a previously processed request, keyed by
// (user_id, scope, key), where scope is the route template. Retrying a
// POST with the same Idempotency-Key replays the stored message pair instead of
// producing another AI reply.
type Idempotency struct {
	ID                string    `gorm:"type:char(36);primaryKey"`
	UserID            string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope             string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key               string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	RequestMessageID  string    `gorm:"type:char(36);not null"`
	ResponseMessageID string    `gorm:"type:char(36);not null"`
	Status            int       `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt         time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
