package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Deck is a named card pool with its own rarity-rate table, merge-perk
// catalog and free-pack cooldown. Decks are authored via the web admin
// portal; the bot treats them as read-only.
type Deck struct {
	bun.BaseModel `bun:"table:decks,alias:d"`

	ID                    int64  `bun:"id,pk,autoincrement"`
	Name                  string `bun:"name,notnull"`
	Description           string `bun:"description,type:text,default:''"`
	FreePackCooldownHours int    `bun:"free_pack_cooldown_hours,notnull,default:8"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ServerDeck assigns a deck to a Discord guild. At most one deck per guild.
type ServerDeck struct {
	bun.BaseModel `bun:"table:server_decks,alias:sd"`

	ID      int64  `bun:"id,pk,autoincrement"`
	GuildID string `bun:"guild_id,notnull,unique"`
	DeckID  int64  `bun:"deck_id,notnull"`

	Deck *Deck `bun:"rel:belongs-to,join:deck_id=id"`
}

// RarityRate is a deck-specific drop rate override for one rarity tier.
// A deck either has a full set of rows or the defaults apply.
type RarityRate struct {
	bun.BaseModel `bun:"table:rarity_rates,alias:rr"`

	ID       int64   `bun:"id,pk,autoincrement"`
	DeckID   int64   `bun:"deck_id,notnull"`
	Rarity   Rarity  `bun:"rarity,notnull"`
	DropRate float64 `bun:"drop_rate,notnull"`
}

// DeckMergePerk is one selectable upgrade path for cards in a deck.
type DeckMergePerk struct {
	bun.BaseModel `bun:"table:deck_merge_perks,alias:dmp"`

	ID                int64   `bun:"id,pk,autoincrement"`
	DeckID            int64   `bun:"deck_id,notnull"`
	PerkName          string  `bun:"perk_name,notnull"`
	BaseBoost         float64 `bun:"base_boost,notnull"`
	DiminishingFactor float64 `bun:"diminishing_factor,notnull,default:0.85"`
}
