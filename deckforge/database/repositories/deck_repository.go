package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/economy"
)

type DeckRepository interface {
	DB() *bun.DB
	GetByID(ctx context.Context, id int64) (*models.Deck, error)
	GetByGuildID(ctx context.Context, guildID string) (*models.Deck, error)
	GetDropRates(ctx context.Context, deckID int64) (map[models.Rarity]float64, error)
	GetMergePerks(ctx context.Context, deckID int64) ([]*models.DeckMergePerk, error)
	GetMergePerk(ctx context.Context, deckID int64, perkName string) (*models.DeckMergePerk, error)
}

type deckRepository struct {
	db *bun.DB
}

func NewDeckRepository(db *bun.DB) DeckRepository {
	return &deckRepository{db: db}
}

func (r *deckRepository) DB() *bun.DB {
	return r.db
}

func (r *deckRepository) GetByID(ctx context.Context, id int64) (*models.Deck, error) {
	deck := new(models.Deck)
	err := r.db.NewSelect().
		Model(deck).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("deck %d not found", id)
		}
		return nil, fmt.Errorf("failed to get deck: %w", err)
	}
	return deck, nil
}

// GetByGuildID resolves the deck assigned to a guild. Every economy command
// runs against the result; no assignment means the guild has no economy.
func (r *deckRepository) GetByGuildID(ctx context.Context, guildID string) (*models.Deck, error) {
	serverDeck := new(models.ServerDeck)
	err := r.db.NewSelect().
		Model(serverDeck).
		Relation("Deck").
		Where("sd.guild_id = ?", guildID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.Unavailablef("this server has no deck assigned yet")
		}
		return nil, fmt.Errorf("failed to resolve server deck: %w", err)
	}
	if serverDeck.Deck == nil {
		return nil, economy.Unavailablef("this server has no deck assigned yet")
	}
	return serverDeck.Deck, nil
}

// GetDropRates returns the deck's rarity rate overrides. An empty map means
// the deck has no overrides and the default table applies.
func (r *deckRepository) GetDropRates(ctx context.Context, deckID int64) (map[models.Rarity]float64, error) {
	var rates []*models.RarityRate
	err := r.db.NewSelect().
		Model(&rates).
		Where("deck_id = ?", deckID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get drop rates: %w", err)
	}
	out := make(map[models.Rarity]float64, len(rates))
	for _, rate := range rates {
		out[rate.Rarity] = rate.DropRate
	}
	return out, nil
}

func (r *deckRepository) GetMergePerks(ctx context.Context, deckID int64) ([]*models.DeckMergePerk, error) {
	var perks []*models.DeckMergePerk
	err := r.db.NewSelect().
		Model(&perks).
		Where("deck_id = ?", deckID).
		Order("perk_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get merge perks: %w", err)
	}
	return perks, nil
}

func (r *deckRepository) GetMergePerk(ctx context.Context, deckID int64, perkName string) (*models.DeckMergePerk, error) {
	perk := new(models.DeckMergePerk)
	err := r.db.NewSelect().
		Model(perk).
		Where("deck_id = ? AND LOWER(perk_name) = LOWER(?)", deckID, perkName).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("perk %q does not exist in this deck", perkName)
		}
		return nil, fmt.Errorf("failed to get merge perk: %w", err)
	}
	return perk, nil
}
