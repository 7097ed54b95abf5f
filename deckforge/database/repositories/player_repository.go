package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/economy"
)

type PlayerRepository interface {
	DB() *bun.DB
	GetOrCreate(ctx context.Context, discordID string) (*models.Player, error)
	GetByDiscordID(ctx context.Context, discordID string) (*models.Player, error)
	GetBalance(ctx context.Context, discordID string) (int64, error)
	AddCredits(ctx context.Context, discordID string, amount int64) error
	DeductCredits(ctx context.Context, discordID string, amount int64) error
	SetLastFreeClaim(ctx context.Context, discordID string, claimedAt time.Time) error
}

type playerRepository struct {
	db *bun.DB
}

func NewPlayerRepository(db *bun.DB) PlayerRepository {
	return &playerRepository{db: db}
}

func (r *playerRepository) DB() *bun.DB {
	return r.db
}

func (r *playerRepository) GetOrCreate(ctx context.Context, discordID string) (*models.Player, error) {
	player := &models.Player{
		DiscordID: discordID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(player).
		On("CONFLICT (discord_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}
	return r.GetByDiscordID(ctx, discordID)
}

func (r *playerRepository) GetByDiscordID(ctx context.Context, discordID string) (*models.Player, error) {
	player := new(models.Player)
	err := r.db.NewSelect().
		Model(player).
		Where("discord_id = ?", discordID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("player %s has no profile yet", discordID)
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return player, nil
}

func (r *playerRepository) GetBalance(ctx context.Context, discordID string) (int64, error) {
	player, err := r.GetOrCreate(ctx, discordID)
	if err != nil {
		return 0, err
	}
	return player.Credits, nil
}

func (r *playerRepository) AddCredits(ctx context.Context, discordID string, amount int64) error {
	if _, err := r.GetOrCreate(ctx, discordID); err != nil {
		return err
	}
	_, err := r.db.NewUpdate().
		Model((*models.Player)(nil)).
		Set("credits = credits + ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("discord_id = ?", discordID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}
	return nil
}

// DeductCredits removes credits, failing without mutation when the balance
// is too low. The guarded UPDATE keeps concurrent deductions from driving
// the balance negative.
func (r *playerRepository) DeductCredits(ctx context.Context, discordID string, amount int64) error {
	res, err := r.db.NewUpdate().
		Model((*models.Player)(nil)).
		Set("credits = credits - ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("discord_id = ? AND credits >= ?", discordID, amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to deduct credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		balance, berr := r.GetBalance(ctx, discordID)
		if berr != nil {
			return berr
		}
		return economy.Preconditionf("you need %d credits but only have %d", amount, balance)
	}
	return nil
}

func (r *playerRepository) SetLastFreeClaim(ctx context.Context, discordID string, claimedAt time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.Player)(nil)).
		Set("last_free_claim = ?", claimedAt).
		Set("updated_at = ?", time.Now()).
		Where("discord_id = ?", discordID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set last free claim: %w", err)
	}
	return nil
}
