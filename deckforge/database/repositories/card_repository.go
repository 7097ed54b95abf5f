package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/uptrace/bun"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/economy"
)

type CardRepository interface {
	DB() *bun.DB
	GetByID(ctx context.Context, id int64) (*models.Card, error)
	GetByName(ctx context.Context, deckID int64, name string) (*models.Card, error)
	GetAllByDeck(ctx context.Context, deckID int64) ([]*models.Card, error)
	GetTemplateFields(ctx context.Context, cardID int64) ([]*models.CardTemplateField, error)
	GetNumericField(ctx context.Context, cardID int64, fieldName string) (float64, bool, error)
}

type cardRepository struct {
	db *bun.DB
}

func NewCardRepository(db *bun.DB) CardRepository {
	return &cardRepository{db: db}
}

func (r *cardRepository) DB() *bun.DB {
	return r.db
}

func (r *cardRepository) GetByID(ctx context.Context, id int64) (*models.Card, error) {
	card := new(models.Card)
	err := r.db.NewSelect().
		Model(card).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("card %d not found", id)
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

func (r *cardRepository) GetByName(ctx context.Context, deckID int64, name string) (*models.Card, error) {
	card := new(models.Card)
	err := r.db.NewSelect().
		Model(card).
		Where("deck_id = ? AND LOWER(name) = LOWER(?)", deckID, name).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("no card named %q in this deck", name)
		}
		return nil, fmt.Errorf("failed to get card by name: %w", err)
	}
	return card, nil
}

func (r *cardRepository) GetAllByDeck(ctx context.Context, deckID int64) ([]*models.Card, error) {
	var cards []*models.Card
	err := r.db.NewSelect().
		Model(&cards).
		Where("deck_id = ?", deckID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get deck cards: %w", err)
	}
	return cards, nil
}

func (r *cardRepository) GetTemplateFields(ctx context.Context, cardID int64) ([]*models.CardTemplateField, error) {
	var fields []*models.CardTemplateField
	err := r.db.NewSelect().
		Model(&fields).
		Where("card_id = ?", cardID).
		Order("field_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get template fields: %w", err)
	}
	return fields, nil
}

// GetNumericField returns the parsed value of a number-typed template field.
// The second return is false when the card has no such numeric field.
func (r *cardRepository) GetNumericField(ctx context.Context, cardID int64, fieldName string) (float64, bool, error) {
	field := new(models.CardTemplateField)
	err := r.db.NewSelect().
		Model(field).
		Where("card_id = ? AND LOWER(field_name) = LOWER(?) AND field_type = ?", cardID, fieldName, models.FieldTypeNumber).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get numeric field: %w", err)
	}
	value, err := strconv.ParseFloat(field.FieldValue, 64)
	if err != nil {
		return 0, false, nil
	}
	return value, true, nil
}
