package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/economy"
)

type PackRepository interface {
	DB() *bun.DB
	GetUserPacks(ctx context.Context, userID string) ([]*models.UserPack, error)
	TotalPacks(ctx context.Context, userID string) (int, error)
	AddPacks(ctx context.Context, userID, packType string, quantity, inventoryCap int) error
	ConsumePacks(ctx context.Context, userID, packType string, quantity int) error
}

type packRepository struct {
	db *bun.DB
}

func NewPackRepository(db *bun.DB) PackRepository {
	return &packRepository{db: db}
}

func (r *packRepository) DB() *bun.DB {
	return r.db
}

func (r *packRepository) GetUserPacks(ctx context.Context, userID string) ([]*models.UserPack, error) {
	var packs []*models.UserPack
	err := r.db.NewSelect().
		Model(&packs).
		Where("user_id = ? AND quantity > 0", userID).
		Order("pack_type ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user packs: %w", err)
	}
	return packs, nil
}

func (r *packRepository) TotalPacks(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.NewSelect().
		Model((*models.UserPack)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("user_id = ?", userID).
		Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("failed to count packs: %w", err)
	}
	return total, nil
}

// AddPacks grants packs, enforcing the total inventory cap across all pack
// types.
func (r *packRepository) AddPacks(ctx context.Context, userID, packType string, quantity, inventoryCap int) error {
	total, err := r.TotalPacks(ctx, userID)
	if err != nil {
		return err
	}
	if total+quantity > inventoryCap {
		return economy.Preconditionf("pack inventory is capped at %d, you hold %d", inventoryCap, total)
	}

	res, err := r.db.NewUpdate().
		Model((*models.UserPack)(nil)).
		Set("quantity = quantity + ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ? AND pack_type = ?", userID, packType).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add packs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		pack := &models.UserPack{
			UserID:    userID,
			PackType:  packType,
			Quantity:  quantity,
			UpdatedAt: time.Now(),
		}
		if _, err := r.db.NewInsert().Model(pack).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create pack stack: %w", err)
		}
	}
	return nil
}

func (r *packRepository) ConsumePacks(ctx context.Context, userID, packType string, quantity int) error {
	res, err := r.db.NewUpdate().
		Model((*models.UserPack)(nil)).
		Set("quantity = quantity - ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ? AND pack_type = ? AND quantity >= ?", userID, packType, quantity).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume packs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return economy.Preconditionf("you do not have %d %s packs", quantity, packType)
	}
	return nil
}
