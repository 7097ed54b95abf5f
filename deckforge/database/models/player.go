package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Player holds the per-user economy state. Rows are created lazily on the
// first economic interaction and never deleted.
type Player struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID            int64     `bun:"id,pk,autoincrement"`
	DiscordID     string    `bun:"discord_id,notnull,unique"`
	Credits       int64     `bun:"credits,notnull,default:0"`
	LastFreeClaim time.Time `bun:"last_free_claim,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
