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

// missionLockFilter excludes instances committed to a running mission.
// Committed instances stay owned but cannot be traded, merged or recycled.
const missionLockFilter = `ci.id NOT IN (
	SELECT card_instance_id FROM active_missions
	WHERE status = 'active' AND card_instance_id IS NOT NULL
)`

// OwnedCard is one aggregated collection line: how many copies of a card a
// player holds at a given merge level.
type OwnedCard struct {
	CardID     int64         `bun:"card_id"`
	Name       string        `bun:"name"`
	Rarity     models.Rarity `bun:"rarity"`
	MergeLevel int           `bun:"merge_level"`
	Count      int           `bun:"count"`
}

// MergeExecution carries the pre-computed outcome of a merge into the
// settlement transaction. All arithmetic happens before; the transaction
// re-verifies ownership and applies or aborts.
type MergeExecution struct {
	UserID       string
	CardID       int64
	FromLevel    int
	Cost         int64
	PerkName     string
	PerkValue    float64
	FieldName    string
	FieldBase    float64
	FieldBoosted float64
}

// QualifyingInstance pairs an owned instance with the numeric field value
// that met a mission requirement.
type QualifyingInstance struct {
	InstanceID int64         `bun:"instance_id"`
	CardID     int64         `bun:"card_id"`
	Name       string        `bun:"name"`
	Rarity     models.Rarity `bun:"rarity"`
	MergeLevel int           `bun:"merge_level"`
	FieldValue float64       `bun:"field_value"`
}

type CardInstanceRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, instance *models.CardInstance) error
	CreateBatch(ctx context.Context, instances []*models.CardInstance) error
	GetByID(ctx context.Context, id int64) (*models.CardInstance, error)
	CountOwned(ctx context.Context, userID string, cardID int64, mergeLevel int) (int, error)
	GetOldestOwned(ctx context.Context, userID string, cardID int64, mergeLevel, limit int) ([]*models.CardInstance, error)
	OwnedSummary(ctx context.Context, userID string, deckID int64) ([]*OwnedCard, error)
	RecycleOldest(ctx context.Context, userID string, cardID int64, mergeLevel, amount int, perCardValue int64) (int, error)
	ExecuteMerge(ctx context.Context, exec MergeExecution) (int64, error)
	GetFieldBoosts(ctx context.Context, instanceID int64) ([]*models.InstanceFieldBoost, error)
	GetPerkHistory(ctx context.Context, instanceID int64) ([]*models.CardPerk, error)
	HasQualifying(ctx context.Context, userID, fieldName string, minValue float64) (bool, error)
	BestQualifying(ctx context.Context, userID, cardName, fieldName string, minValue float64) (*QualifyingInstance, error)
	ListQualifying(ctx context.Context, userID, fieldName string, minValue float64, limit int) ([]*QualifyingInstance, error)
}

type cardInstanceRepository struct {
	db *bun.DB
}

func NewCardInstanceRepository(db *bun.DB) CardInstanceRepository {
	return &cardInstanceRepository{db: db}
}

func (r *cardInstanceRepository) DB() *bun.DB {
	return r.db
}

func (r *cardInstanceRepository) Create(ctx context.Context, instance *models.CardInstance) error {
	if instance.AcquiredAt.IsZero() {
		instance.AcquiredAt = time.Now()
	}
	_, err := r.db.NewInsert().Model(instance).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create card instance: %w", err)
	}
	return nil
}

func (r *cardInstanceRepository) CreateBatch(ctx context.Context, instances []*models.CardInstance) error {
	if len(instances) == 0 {
		return nil
	}
	now := time.Now()
	for _, instance := range instances {
		if instance.AcquiredAt.IsZero() {
			instance.AcquiredAt = now
		}
	}
	_, err := r.db.NewInsert().Model(&instances).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create card instances: %w", err)
	}
	return nil
}

func (r *cardInstanceRepository) GetByID(ctx context.Context, id int64) (*models.CardInstance, error) {
	instance := new(models.CardInstance)
	err := r.db.NewSelect().
		Model(instance).
		Relation("Card").
		Where("ci.id = ?", id).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("card instance %d not found", id)
		}
		return nil, fmt.Errorf("failed to get card instance: %w", err)
	}
	return instance, nil
}

// CountOwned counts usable copies: recycled instances and instances locked
// to a running mission are excluded.
func (r *cardInstanceRepository) CountOwned(ctx context.Context, userID string, cardID int64, mergeLevel int) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.CardInstance)(nil)).
		Where("user_id = ? AND card_id = ? AND merge_level = ? AND recycled_at IS NULL", userID, cardID, mergeLevel).
		Where(missionLockFilter).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned instances: %w", err)
	}
	return count, nil
}

func (r *cardInstanceRepository) GetOldestOwned(ctx context.Context, userID string, cardID int64, mergeLevel, limit int) ([]*models.CardInstance, error) {
	var instances []*models.CardInstance
	err := r.db.NewSelect().
		Model(&instances).
		Where("user_id = ? AND card_id = ? AND merge_level = ? AND recycled_at IS NULL", userID, cardID, mergeLevel).
		Where(missionLockFilter).
		Order("acquired_at ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest instances: %w", err)
	}
	return instances, nil
}

func (r *cardInstanceRepository) OwnedSummary(ctx context.Context, userID string, deckID int64) ([]*OwnedCard, error) {
	var owned []*OwnedCard
	err := r.db.NewSelect().
		Model((*models.CardInstance)(nil)).
		ColumnExpr("ci.card_id, c.name, c.rarity, ci.merge_level, COUNT(*) AS count").
		Join("JOIN cards AS c ON c.id = ci.card_id").
		Where("ci.user_id = ? AND c.deck_id = ? AND ci.recycled_at IS NULL", userID, deckID).
		Where(missionLockFilter).
		GroupExpr("ci.card_id, c.name, c.rarity, ci.merge_level").
		OrderExpr("c.rarity, c.name, ci.merge_level").
		Scan(ctx, &owned)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize collection: %w", err)
	}
	return owned, nil
}

// RecycleOldest soft-deletes up to amount instances, oldest acquired first,
// and credits the player in the same transaction. Returns how many were
// recycled.
func (r *cardInstanceRepository) RecycleOldest(ctx context.Context, userID string, cardID int64, mergeLevel, amount int, perCardValue int64) (int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var instances []*models.CardInstance
	err = tx.NewSelect().
		Model(&instances).
		Where("user_id = ? AND card_id = ? AND merge_level = ? AND recycled_at IS NULL", userID, cardID, mergeLevel).
		Where(missionLockFilter).
		Order("acquired_at ASC", "id ASC").
		Limit(amount).
		For("UPDATE OF ci").
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to lock instances: %w", err)
	}
	if len(instances) < amount {
		return 0, economy.Preconditionf("you only have %d copies to recycle, not %d", len(instances), amount)
	}

	ids := make([]int64, len(instances))
	for i, instance := range instances {
		ids[i] = instance.ID
	}
	_, err = tx.NewUpdate().
		Model((*models.CardInstance)(nil)).
		Set("recycled_at = ?", time.Now()).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to recycle instances: %w", err)
	}

	total := perCardValue * int64(len(instances))
	_, err = tx.NewUpdate().
		Model((*models.Player)(nil)).
		Set("credits = credits + ?", total).
		Set("updated_at = ?", time.Now()).
		Where("discord_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to credit recycle value: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recycle: %w", err)
	}

	slog.Info("Instances recycled",
		slog.String("type", "db"),
		slog.String("user_id", userID),
		slog.Int64("card_id", cardID),
		slog.Int("amount", len(instances)),
		slog.Int64("credits", total))
	return len(instances), nil
}

// ExecuteMerge consumes the two oldest eligible instances and promotes the
// oldest of them one level, all in one transaction: debit, promote, consume,
// audit the perk, refresh the field boost. Returns the surviving instance ID.
func (r *cardInstanceRepository) ExecuteMerge(ctx context.Context, exec MergeExecution) (int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.NewSelect().
		Model((*models.CardInstance)(nil)).
		Where("user_id = ? AND card_id = ? AND merge_level = ? AND recycled_at IS NULL", exec.UserID, exec.CardID, exec.FromLevel).
		Where(missionLockFilter)
	if exec.FromLevel > 0 {
		query = query.Where("locked_perk = ?", exec.PerkName)
	}
	var instances []*models.CardInstance
	err = query.
		Order("acquired_at ASC", "id ASC").
		Limit(2).
		For("UPDATE OF ci").
		Scan(ctx, &instances)
	if err != nil {
		return 0, fmt.Errorf("failed to lock merge instances: %w", err)
	}
	if len(instances) < 2 {
		return 0, economy.StaleReferencef("you no longer have two eligible copies to merge")
	}

	res, err := tx.NewUpdate().
		Model((*models.Player)(nil)).
		Set("credits = credits - ?", exec.Cost).
		Set("updated_at = ?", time.Now()).
		Where("discord_id = ? AND credits >= ?", exec.UserID, exec.Cost).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to debit merge cost: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return 0, economy.Preconditionf("you need %d credits for this merge", exec.Cost)
	}

	survivor, consumed := instances[0], instances[1]
	_, err = tx.NewUpdate().
		Model((*models.CardInstance)(nil)).
		Set("merge_level = ?", exec.FromLevel+1).
		Set("locked_perk = ?", exec.PerkName).
		Where("id = ?", survivor.ID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to promote survivor: %w", err)
	}
	_, err = tx.NewUpdate().
		Model((*models.CardInstance)(nil)).
		Set("recycled_at = ?", time.Now()).
		Where("id = ?", consumed.ID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to consume instance: %w", err)
	}

	perk := &models.CardPerk{
		InstanceID:   survivor.ID,
		LevelApplied: exec.FromLevel + 1,
		PerkName:     exec.PerkName,
		PerkValue:    exec.PerkValue,
		AppliedAt:    time.Now(),
	}
	if _, err := tx.NewInsert().Model(perk).Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record perk: %w", err)
	}

	if exec.FieldName != "" {
		boost := &models.InstanceFieldBoost{
			InstanceID:   survivor.ID,
			FieldName:    exec.FieldName,
			BaseValue:    exec.FieldBase,
			BoostedValue: exec.FieldBoosted,
			UpdatedAt:    time.Now(),
		}
		_, err = tx.NewInsert().
			Model(boost).
			On("CONFLICT (instance_id, field_name) DO UPDATE").
			Set("base_value = EXCLUDED.base_value").
			Set("boosted_value = EXCLUDED.boosted_value").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert field boost: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit merge: %w", err)
	}

	slog.Info("Merge executed",
		slog.String("type", "db"),
		slog.String("user_id", exec.UserID),
		slog.Int64("card_id", exec.CardID),
		slog.Int("new_level", exec.FromLevel+1),
		slog.String("perk", exec.PerkName),
		slog.Int64("survivor_id", survivor.ID))
	return survivor.ID, nil
}

func (r *cardInstanceRepository) GetFieldBoosts(ctx context.Context, instanceID int64) ([]*models.InstanceFieldBoost, error) {
	var boosts []*models.InstanceFieldBoost
	err := r.db.NewSelect().
		Model(&boosts).
		Where("instance_id = ?", instanceID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get field boosts: %w", err)
	}
	return boosts, nil
}

func (r *cardInstanceRepository) qualifyingQuery(userID, fieldName string, minValue float64) *bun.SelectQuery {
	return r.db.NewSelect().
		Model((*models.CardInstance)(nil)).
		ColumnExpr("ci.id AS instance_id, ci.card_id, c.name, c.rarity, ci.merge_level, CAST(ctf.field_value AS FLOAT) AS field_value").
		Join("JOIN cards AS c ON c.id = ci.card_id").
		Join("JOIN card_template_fields AS ctf ON ctf.card_id = c.id").
		Where("ci.user_id = ? AND ci.recycled_at IS NULL", userID).
		Where("LOWER(ctf.field_name) = LOWER(?) AND ctf.field_type = ?", fieldName, models.FieldTypeNumber).
		Where("CAST(ctf.field_value AS FLOAT) >= ?", minValue).
		Where(missionLockFilter)
}

// HasQualifying reports whether the player owns any usable instance whose
// numeric field meets the requirement.
func (r *cardInstanceRepository) HasQualifying(ctx context.Context, userID, fieldName string, minValue float64) (bool, error) {
	count, err := r.qualifyingQuery(userID, fieldName, minValue).Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check qualifying cards: %w", err)
	}
	return count > 0, nil
}

// BestQualifying returns the player's highest-merge-level qualifying
// instance of the named card, or nil when none qualifies.
func (r *cardInstanceRepository) BestQualifying(ctx context.Context, userID, cardName, fieldName string, minValue float64) (*QualifyingInstance, error) {
	var out []*QualifyingInstance
	err := r.qualifyingQuery(userID, fieldName, minValue).
		Where("LOWER(c.name) = LOWER(?)", cardName).
		OrderExpr("ci.merge_level DESC").
		Limit(1).
		Scan(ctx, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to find qualifying instance: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *cardInstanceRepository) ListQualifying(ctx context.Context, userID, fieldName string, minValue float64, limit int) ([]*QualifyingInstance, error) {
	var out []*QualifyingInstance
	err := r.qualifyingQuery(userID, fieldName, minValue).
		OrderExpr("c.name ASC, ci.merge_level DESC").
		Limit(limit).
		Scan(ctx, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to list qualifying instances: %w", err)
	}
	return out, nil
}

func (r *cardInstanceRepository) GetPerkHistory(ctx context.Context, instanceID int64) ([]*models.CardPerk, error) {
	var perks []*models.CardPerk
	err := r.db.NewSelect().
		Model(&perks).
		Where("instance_id = ?", instanceID).
		Order("level_applied ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get perk history: %w", err)
	}
	return perks, nil
}
