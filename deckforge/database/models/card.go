package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Card is a card definition inside a deck. Identity is immutable; the
// descriptive fields are edited through the admin portal.
type Card struct {
	bun.BaseModel `bun:"table:cards,alias:c"`

	ID            int64  `bun:"id,pk,autoincrement"`
	DeckID        int64  `bun:"deck_id,notnull"`
	Name          string `bun:"name,notnull"`
	Rarity        Rarity `bun:"rarity,notnull"`
	Mergeable     bool   `bun:"mergeable,notnull,default:true"`
	MaxMergeLevel int    `bun:"max_merge_level,notnull,default:5"`
	Description   string `bun:"description,type:text,default:''"`
	ImageURL      string `bun:"image_url,default:''"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Template field types.
const (
	FieldTypeNumber   = "number"
	FieldTypeText     = "text"
	FieldTypeDropdown = "dropdown"
)

// CardTemplateField is one template field value on a card definition, e.g.
// "Thrust" = "1200". Numeric fields drive mission requirements and merge
// perk boosts.
type CardTemplateField struct {
	bun.BaseModel `bun:"table:card_template_fields,alias:ctf"`

	ID         int64  `bun:"id,pk,autoincrement"`
	CardID     int64  `bun:"card_id,notnull"`
	FieldName  string `bun:"field_name,notnull"`
	FieldType  string `bun:"field_type,notnull,default:'text'"`
	FieldValue string `bun:"field_value,notnull"`
}
