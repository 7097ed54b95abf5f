package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserPack is a stack of unopened packs of one type in a player's inventory.
type UserPack struct {
	bun.BaseModel `bun:"table:user_packs,alias:up"`

	ID       int64  `bun:"id,pk,autoincrement"`
	UserID   string `bun:"user_id,notnull"`
	PackType string `bun:"pack_type,notnull"`
	Quantity int    `bun:"quantity,notnull"`

	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
