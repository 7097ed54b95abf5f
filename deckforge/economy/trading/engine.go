// Package trading implements the two-party trade negotiation flow:
// request, accept, pool editing, readiness and atomic settlement.
package trading

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/economy"
)

// TradeTimeout bounds every negotiation; the deadline is fixed at creation
// and never extended.
const TradeTimeout = 5 * time.Minute

// AcceptOutcome tells the caller which branch /accepttrade took.
type AcceptOutcome int

const (
	// OutcomeJoined means the responder turned the request into an active
	// negotiation.
	OutcomeJoined AcceptOutcome = iota
	// OutcomeReady means one party flagged ready, the other is pending.
	OutcomeReady
	// OutcomeBothReady means the trade moved to accepted.
	OutcomeBothReady
	// OutcomeAlreadyAccepted means nothing changed, finalize is next.
	OutcomeAlreadyAccepted
)

// Engine drives trade negotiation against the store. All mutation guards
// live here; the settlement re-verification lives in the repository
// transaction.
type Engine struct {
	trades    repositories.TradeRepository
	cards     repositories.CardRepository
	instances repositories.CardInstanceRepository
	now       func() time.Time
}

func NewEngine(
	trades repositories.TradeRepository,
	cards repositories.CardRepository,
	instances repositories.CardInstanceRepository,
) *Engine {
	return &Engine{trades: trades, cards: cards, instances: instances, now: time.Now}
}

// LiveTradeFor returns the user's current non-terminal trade with lazy
// expiry applied: an overdue trade is expired on access and reported as
// absent.
func (e *Engine) LiveTradeFor(ctx context.Context, userID string) (*models.Trade, error) {
	trade, err := e.trades.GetNonTerminalForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, nil
	}
	if e.now().After(trade.ExpiresAt) {
		if err := e.trades.UpdateStatus(ctx, trade.ID, models.TradeExpired); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return trade, nil
}

// Request opens a pending trade between two distinct players. Either party
// already holding a live trade blocks the request.
func (e *Engine) Request(ctx context.Context, guildID, initiatorID, responderID string) (*models.Trade, error) {
	if initiatorID == responderID {
		return nil, economy.Preconditionf("you can't trade with yourself")
	}

	if existing, err := e.LiveTradeFor(ctx, initiatorID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, economy.StateConflictf("you already have a trade in progress, cancel it first")
	}
	if existing, err := e.LiveTradeFor(ctx, responderID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, economy.StateConflictf("they already have a trade in progress")
	}

	now := e.now()
	trade := &models.Trade{
		TradeID:     snowflake.New(now).String(),
		GuildID:     guildID,
		InitiatorID: initiatorID,
		ResponderID: responderID,
		Status:      models.TradePending,
		StartedAt:   now,
		ExpiresAt:   now.Add(TradeTimeout),
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	slog.Info("Trade requested",
		slog.String("type", "cmd"),
		slog.String("trade_id", trade.TradeID),
		slog.String("initiator_id", initiatorID),
		slog.String("responder_id", responderID))
	return trade, nil
}

// Accept handles both meanings of /accepttrade: the responder joining a
// pending request, and either party flagging ready on an active pool.
func (e *Engine) Accept(ctx context.Context, userID string) (*models.Trade, AcceptOutcome, error) {
	trade, err := e.LiveTradeFor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if trade == nil {
		return nil, 0, economy.NotFoundf("you don't have a trade to accept")
	}

	switch trade.Status {
	case models.TradePending:
		if userID != trade.ResponderID {
			return nil, 0, economy.StateConflictf("waiting for the other player to accept your request")
		}
		if err := e.trades.UpdateStatus(ctx, trade.ID, models.TradeActive); err != nil {
			return nil, 0, err
		}
		trade.Status = models.TradeActive
		return trade, OutcomeJoined, nil

	case models.TradeActive:
		initiatorReady := trade.InitiatorAccepted
		responderReady := trade.ResponderAccepted
		if userID == trade.InitiatorID {
			initiatorReady = true
		} else {
			responderReady = true
		}
		status := models.TradeActive
		outcome := OutcomeReady
		if initiatorReady && responderReady {
			status = models.TradeAccepted
			outcome = OutcomeBothReady
		}
		if err := e.trades.SetAcceptance(ctx, trade.ID, initiatorReady, responderReady, status); err != nil {
			return nil, 0, err
		}
		trade.InitiatorAccepted = initiatorReady
		trade.ResponderAccepted = responderReady
		trade.Status = status
		return trade, outcome, nil

	case models.TradeAccepted:
		return trade, OutcomeAlreadyAccepted, nil
	}
	return nil, 0, economy.StateConflictf("trade is in an unexpected state (%s)", trade.Status)
}

// AddItem adds quantity of a (card, merge level) line to the caller's side
// of the pool. The card must belong to the server's deck, and the caller's
// usable copies must cover everything already pooled plus the addition. Any
// pool change demotes an accepted trade back to active and clears both
// ready flags.
func (e *Engine) AddItem(ctx context.Context, userID string, deck *models.Deck, cardName string, mergeLevel, quantity int) (*models.Trade, *models.Card, error) {
	if quantity < 1 {
		return nil, nil, economy.Preconditionf("amount must be at least 1")
	}

	trade, err := e.editableTradeFor(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	card, err := e.cards.GetByName(ctx, deck.ID, cardName)
	if err != nil {
		return nil, nil, err
	}
	if card.DeckID != deck.ID {
		return nil, nil, economy.Preconditionf("%s is not part of this server's deck", card.Name)
	}

	owned, err := e.instances.CountOwned(ctx, userID, card.ID, mergeLevel)
	if err != nil {
		return nil, nil, err
	}
	pooled := 0
	items, err := e.trades.GetItems(ctx, trade.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, item := range items {
		if item.UserID == userID && item.CardID == card.ID && item.MergeLevel == mergeLevel {
			pooled = item.Quantity
			break
		}
	}
	if owned < pooled+quantity {
		return nil, nil, economy.Preconditionf("you own %d usable copies of %s at level %d, %d already pooled",
			owned, card.Name, mergeLevel, pooled)
	}

	if err := e.trades.UpsertItem(ctx, trade.ID, userID, card.ID, mergeLevel, quantity); err != nil {
		return nil, nil, err
	}
	if err := e.demoteAfterPoolChange(ctx, trade); err != nil {
		return nil, nil, err
	}
	return trade, card, nil
}

// RemoveItem takes quantity of a pooled line back out, with the same
// demotion rule as AddItem.
func (e *Engine) RemoveItem(ctx context.Context, userID, cardName string, mergeLevel, quantity int) (*models.Trade, *models.Card, error) {
	if quantity < 1 {
		return nil, nil, economy.Preconditionf("amount must be at least 1")
	}

	trade, err := e.editableTradeFor(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	items, err := e.trades.GetItems(ctx, trade.ID)
	if err != nil {
		return nil, nil, err
	}
	var target *models.TradeItem
	for _, item := range items {
		if item.UserID != userID || item.Card == nil {
			continue
		}
		if strings.EqualFold(item.Card.Name, cardName) && item.MergeLevel == mergeLevel {
			target = item
			break
		}
	}
	if target == nil {
		return nil, nil, economy.NotFoundf("%s is not in your side of the trade", cardName)
	}

	if err := e.trades.RemoveItemQuantity(ctx, trade.ID, userID, target.CardID, mergeLevel, quantity); err != nil {
		return nil, nil, err
	}
	if err := e.demoteAfterPoolChange(ctx, trade); err != nil {
		return nil, nil, err
	}
	return trade, target.Card, nil
}

// Finalize settles an accepted trade. Deck membership is checked up front;
// ownership re-verification and the FIFO transfer happen inside the store
// transaction, atomically.
func (e *Engine) Finalize(ctx context.Context, userID string, deck *models.Deck) (*repositories.SettlementSummary, error) {
	trade, err := e.LiveTradeFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, economy.NotFoundf("you don't have a trade to finalize")
	}
	if trade.Status != models.TradeAccepted {
		return nil, economy.StateConflictf("both players must /accepttrade before finalizing")
	}

	items, err := e.trades.GetItems(ctx, trade.ID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Card != nil && item.Card.DeckID != deck.ID {
			return nil, economy.Preconditionf("%s is not part of this server's deck", item.Card.Name)
		}
	}

	return e.trades.Settle(ctx, trade.ID)
}

// Cancel terminates the caller's live trade in any non-terminal state.
func (e *Engine) Cancel(ctx context.Context, userID string) (*models.Trade, error) {
	trade, err := e.LiveTradeFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, economy.NotFoundf("you don't have a trade to cancel")
	}
	if err := e.trades.UpdateStatus(ctx, trade.ID, models.TradeCancelled); err != nil {
		return nil, err
	}
	trade.Status = models.TradeCancelled

	slog.Info("Trade cancelled",
		slog.String("type", "cmd"),
		slog.String("trade_id", trade.TradeID),
		slog.String("user_id", userID))
	return trade, nil
}

// PoolFor returns the live trade and its items for display.
func (e *Engine) PoolFor(ctx context.Context, userID string) (*models.Trade, []*models.TradeItem, error) {
	trade, err := e.LiveTradeFor(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if trade == nil {
		return nil, nil, economy.NotFoundf("you don't have a trade in progress")
	}
	items, err := e.trades.GetItems(ctx, trade.ID)
	if err != nil {
		return nil, nil, err
	}
	return trade, items, nil
}

// SweepExpired expires every overdue trade nobody touched again. Lazy
// per-access expiry remains the primary mechanism; the background sweep
// keeps abandoned rows from lingering.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	expired, err := e.trades.ExpireOverdue(ctx)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		slog.Info("Expired abandoned trades",
			slog.String("type", "sys"),
			slog.Int64("count", expired))
	}
	return expired, nil
}

func (e *Engine) editableTradeFor(ctx context.Context, userID string) (*models.Trade, error) {
	trade, err := e.LiveTradeFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, economy.NotFoundf("you don't have a trade in progress")
	}
	if trade.Status != models.TradeActive && trade.Status != models.TradeAccepted {
		return nil, economy.StateConflictf("the trade pool opens once the request is accepted")
	}
	return trade, nil
}

func (e *Engine) demoteAfterPoolChange(ctx context.Context, trade *models.Trade) error {
	if trade.Status != models.TradeAccepted && !trade.InitiatorAccepted && !trade.ResponderAccepted {
		return nil
	}
	if err := e.trades.SetAcceptance(ctx, trade.ID, false, false, models.TradeActive); err != nil {
		return err
	}
	trade.Status = models.TradeActive
	trade.InitiatorAccepted = false
	trade.ResponderAccepted = false
	return nil
}
