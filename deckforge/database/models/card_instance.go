package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Instance acquisition sources.
const (
	SourcePack  = "pack"
	SourceDrop  = "drop"
	SourceTrade = "trade"
)

// CardInstance is a single owned copy of a card. A non-recycled instance is
// owned by exactly one player at all times; ownership moves only inside a
// trade settlement transaction. Recycling is a soft delete via RecycledAt.
type CardInstance struct {
	bun.BaseModel `bun:"table:card_instances,alias:ci"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserID     string    `bun:"user_id,notnull"`
	CardID     int64     `bun:"card_id,notnull"`
	MergeLevel int       `bun:"merge_level,notnull,default:0"`
	LockedPerk string    `bun:"locked_perk,nullzero"`
	AcquiredAt time.Time `bun:"acquired_at,notnull,default:current_timestamp"`
	RecycledAt time.Time `bun:"recycled_at,nullzero"`
	Source     string    `bun:"source,notnull,default:'pack'"`

	Card *Card `bun:"rel:belongs-to,join:card_id=id"`
}

// Recycled reports whether the instance has been soft deleted.
func (ci *CardInstance) Recycled() bool {
	return !ci.RecycledAt.IsZero()
}

// CardPerk is the audit record of one perk application during a merge.
type CardPerk struct {
	bun.BaseModel `bun:"table:card_perks,alias:cp"`

	ID           int64     `bun:"id,pk,autoincrement"`
	InstanceID   int64     `bun:"instance_id,notnull"`
	LevelApplied int       `bun:"level_applied,notnull"`
	PerkName     string    `bun:"perk_name,notnull"`
	PerkValue    float64   `bun:"perk_value,notnull"`
	AppliedAt    time.Time `bun:"applied_at,notnull,default:current_timestamp"`
}

// InstanceFieldBoost stores the boosted override of a numeric template field
// for one instance, recomputed after each merge when the locked perk matches
// a numeric field on the card.
type InstanceFieldBoost struct {
	bun.BaseModel `bun:"table:instance_field_boosts,alias:ifb"`

	ID           int64     `bun:"id,pk,autoincrement"`
	InstanceID   int64     `bun:"instance_id,notnull"`
	FieldName    string    `bun:"field_name,notnull"`
	BaseValue    float64   `bun:"base_value,notnull"`
	BoostedValue float64   `bun:"boosted_value,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
