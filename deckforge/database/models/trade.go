package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeActive    TradeStatus = "active"
	TradeAccepted  TradeStatus = "accepted"
	TradeCompleted TradeStatus = "completed"
	TradeCancelled TradeStatus = "cancelled"
	TradeExpired   TradeStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeCompleted, TradeCancelled, TradeExpired:
		return true
	}
	return false
}

// Trade is a negotiation session between exactly two players in one guild.
// The per-party accepted flags gate the active -> accepted transition and
// are cleared by every pool mutation.
type Trade struct {
	bun.BaseModel `bun:"table:trades,alias:t"`

	ID                int64       `bun:"id,pk,autoincrement"`
	TradeID           string      `bun:"trade_id,notnull,unique"`
	GuildID           string      `bun:"guild_id,notnull"`
	InitiatorID       string      `bun:"initiator_id,notnull"`
	ResponderID       string      `bun:"responder_id,notnull"`
	Status            TradeStatus `bun:"status,notnull"`
	InitiatorAccepted bool        `bun:"initiator_accepted,notnull,default:false"`
	ResponderAccepted bool        `bun:"responder_accepted,notnull,default:false"`
	StartedAt         time.Time   `bun:"started_at,notnull,default:current_timestamp"`
	ExpiresAt         time.Time   `bun:"expires_at,notnull"`
	FinalizedAt       time.Time   `bun:"finalized_at,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Involves reports whether the given user is one of the two parties.
func (t *Trade) Involves(userID string) bool {
	return t.InitiatorID == userID || t.ResponderID == userID
}

// Counterparty returns the other party's ID, or "" if userID is not a party.
func (t *Trade) Counterparty(userID string) string {
	switch userID {
	case t.InitiatorID:
		return t.ResponderID
	case t.ResponderID:
		return t.InitiatorID
	}
	return ""
}

// TradeItem is one pool line: a quantity of (card, merge level) offered by a
// party. Pool lines are offers, not reservations; specific instances are
// resolved oldest-first at settlement.
type TradeItem struct {
	bun.BaseModel `bun:"table:trade_items,alias:ti"`

	ID         int64  `bun:"id,pk,autoincrement"`
	TradeID    int64  `bun:"trade_id,notnull"`
	UserID     string `bun:"user_id,notnull"`
	CardID     int64  `bun:"card_id,notnull"`
	MergeLevel int    `bun:"merge_level,notnull,default:0"`
	Quantity   int    `bun:"quantity,notnull"`

	Card *Card `bun:"rel:belongs-to,join:card_id=id"`
}
