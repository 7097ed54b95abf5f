package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/economy"
)

// SettlementSummary reports what a completed settlement moved.
type SettlementSummary struct {
	TradeID          string
	InitiatorID      string
	ResponderID      string
	ToResponderCount int
	ToInitiatorCount int
}

type TradeRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, trade *models.Trade) error
	GetNonTerminalForUser(ctx context.Context, userID string) (*models.Trade, error)
	UpdateStatus(ctx context.Context, id int64, status models.TradeStatus) error
	SetAcceptance(ctx context.Context, id int64, initiatorAccepted, responderAccepted bool, status models.TradeStatus) error
	GetItems(ctx context.Context, tradeID int64) ([]*models.TradeItem, error)
	UpsertItem(ctx context.Context, tradeID int64, userID string, cardID int64, mergeLevel, quantity int) error
	RemoveItemQuantity(ctx context.Context, tradeID int64, userID string, cardID int64, mergeLevel, quantity int) error
	Settle(ctx context.Context, id int64) (*SettlementSummary, error)
	ExpireOverdue(ctx context.Context) (int64, error)
}

type tradeRepository struct {
	db *bun.DB
}

func NewTradeRepository(db *bun.DB) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) DB() *bun.DB {
	return r.db
}

func (r *tradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	trade.CreatedAt = time.Now()
	trade.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(trade).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// GetNonTerminalForUser returns the user's single live trade, or nil when
// they have none. The partial unique index guarantees at most one row.
func (r *tradeRepository) GetNonTerminalForUser(ctx context.Context, userID string) (*models.Trade, error) {
	trade := new(models.Trade)
	err := r.db.NewSelect().
		Model(trade).
		Where("(initiator_id = ? OR responder_id = ?)", userID, userID).
		Where("status NOT IN (?)", bun.In([]models.TradeStatus{models.TradeCompleted, models.TradeCancelled, models.TradeExpired})).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get live trade: %w", err)
	}
	return trade, nil
}

func (r *tradeRepository) UpdateStatus(ctx context.Context, id int64, status models.TradeStatus) error {
	_, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update trade status: %w", err)
	}
	return nil
}

func (r *tradeRepository) SetAcceptance(ctx context.Context, id int64, initiatorAccepted, responderAccepted bool, status models.TradeStatus) error {
	_, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("initiator_accepted = ?", initiatorAccepted).
		Set("responder_accepted = ?", responderAccepted).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update trade acceptance: %w", err)
	}
	return nil
}

func (r *tradeRepository) GetItems(ctx context.Context, tradeID int64) ([]*models.TradeItem, error) {
	var items []*models.TradeItem
	err := r.db.NewSelect().
		Model(&items).
		Relation("Card").
		Where("ti.trade_id = ?", tradeID).
		Order("ti.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade items: %w", err)
	}
	return items, nil
}

func (r *tradeRepository) UpsertItem(ctx context.Context, tradeID int64, userID string, cardID int64, mergeLevel, quantity int) error {
	res, err := r.db.NewUpdate().
		Model((*models.TradeItem)(nil)).
		Set("quantity = quantity + ?", quantity).
		Where("trade_id = ? AND user_id = ? AND card_id = ? AND merge_level = ?", tradeID, userID, cardID, mergeLevel).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update trade item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		item := &models.TradeItem{
			TradeID:    tradeID,
			UserID:     userID,
			CardID:     cardID,
			MergeLevel: mergeLevel,
			Quantity:   quantity,
		}
		if _, err := r.db.NewInsert().Model(item).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert trade item: %w", err)
		}
	}
	return nil
}

func (r *tradeRepository) RemoveItemQuantity(ctx context.Context, tradeID int64, userID string, cardID int64, mergeLevel, quantity int) error {
	item := new(models.TradeItem)
	err := r.db.NewSelect().
		Model(item).
		Where("trade_id = ? AND user_id = ? AND card_id = ? AND merge_level = ?", tradeID, userID, cardID, mergeLevel).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return economy.NotFoundf("that card is not in your trade pool")
		}
		return fmt.Errorf("failed to get trade item: %w", err)
	}
	if item.Quantity < quantity {
		return economy.Preconditionf("only %d offered, cannot remove %d", item.Quantity, quantity)
	}
	if item.Quantity == quantity {
		_, err = r.db.NewDelete().
			Model((*models.TradeItem)(nil)).
			Where("id = ?", item.ID).
			Exec(ctx)
	} else {
		_, err = r.db.NewUpdate().
			Model((*models.TradeItem)(nil)).
			Set("quantity = quantity - ?", quantity).
			Where("id = ?", item.ID).
			Exec(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to remove trade item: %w", err)
	}
	return nil
}

// Settle finalizes an accepted trade atomically. Ownership is re-verified
// under row locks; any shortfall aborts the whole settlement with no
// partial transfer. Specific instances are chosen oldest acquired first.
func (r *tradeRepository) Settle(ctx context.Context, id int64) (*SettlementSummary, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	trade := new(models.Trade)
	err = tx.NewSelect().
		Model(trade).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("trade not found")
		}
		return nil, fmt.Errorf("failed to lock trade: %w", err)
	}
	if trade.Status != models.TradeAccepted {
		return nil, economy.StateConflictf("trade is %s, both parties must accept before finalizing", trade.Status)
	}
	if time.Now().After(trade.ExpiresAt) {
		_, err = tx.NewUpdate().
			Model((*models.Trade)(nil)).
			Set("status = ?", models.TradeExpired).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to expire trade: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit expiry: %w", err)
		}
		return nil, economy.StaleReferencef("trade expired before it could be finalized")
	}

	var items []*models.TradeItem
	err = tx.NewSelect().
		Model(&items).
		Where("trade_id = ?", id).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade items: %w", err)
	}

	summary := &SettlementSummary{
		TradeID:     trade.TradeID,
		InitiatorID: trade.InitiatorID,
		ResponderID: trade.ResponderID,
	}
	now := time.Now()
	for _, item := range items {
		recipient := trade.Counterparty(item.UserID)

		var instances []*models.CardInstance
		err = tx.NewSelect().
			Model(&instances).
			Where("user_id = ? AND card_id = ? AND merge_level = ? AND recycled_at IS NULL", item.UserID, item.CardID, item.MergeLevel).
			Where(missionLockFilter).
			Order("acquired_at ASC", "id ASC").
			Limit(item.Quantity).
			For("UPDATE OF ci").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to lock instances: %w", err)
		}
		if len(instances) < item.Quantity {
			return nil, economy.StaleReferencef("a party no longer owns %d copies of card %d at level %d (has %d)",
				item.Quantity, item.CardID, item.MergeLevel, len(instances))
		}

		ids := make([]int64, len(instances))
		for i, instance := range instances {
			ids[i] = instance.ID
		}
		// Only owner and source change; acquired_at keeps the original
		// acquisition time so FIFO ordering survives the transfer.
		_, err = tx.NewUpdate().
			Model((*models.CardInstance)(nil)).
			Set("user_id = ?", recipient).
			Set("source = ?", models.SourceTrade).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to transfer instances: %w", err)
		}

		if item.UserID == trade.InitiatorID {
			summary.ToResponderCount += item.Quantity
		} else {
			summary.ToInitiatorCount += item.Quantity
		}
	}

	_, err = tx.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", models.TradeCompleted).
		Set("finalized_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to complete trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	slog.Info("Trade settled",
		slog.String("type", "db"),
		slog.String("trade_id", trade.TradeID),
		slog.String("initiator_id", trade.InitiatorID),
		slog.String("responder_id", trade.ResponderID),
		slog.Int("to_responder", summary.ToResponderCount),
		slog.Int("to_initiator", summary.ToInitiatorCount))
	return summary, nil
}

// ExpireOverdue sweeps all overdue non-terminal trades in one statement.
// Lazy per-access expiry remains the primary mechanism; this catches trades
// nobody touched again.
func (r *tradeRepository) ExpireOverdue(ctx context.Context) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", models.TradeExpired).
		Set("updated_at = ?", time.Now()).
		Where("status NOT IN (?)", bun.In([]models.TradeStatus{models.TradeCompleted, models.TradeCancelled, models.TradeExpired})).
		Where("expires_at <= ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue trades: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}
