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

type MissionRepository interface {
	DB() *bun.DB
	GetActiveTemplates(ctx context.Context, deckID int64) ([]*models.MissionTemplate, error)
	GetScaling(ctx context.Context, templateID int64) (map[models.Rarity]*models.MissionRarityScaling, error)
	CreateActive(ctx context.Context, mission *models.ActiveMission) error
	GetByID(ctx context.Context, id int64) (*models.ActiveMission, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.ActiveMission, error)
	GetUserMissions(ctx context.Context, userID, guildID string) ([]*models.ActiveMission, error)
	GetAcceptedPending(ctx context.Context, userID, guildID string) (*models.ActiveMission, error)
	SetMessageID(ctx context.Context, id int64, messageID string) error
	Accept(ctx context.Context, id int64, userID string, cost int64, cooldown time.Duration, startDeadline time.Time) error
	Start(ctx context.Context, id int64, userID string, instanceID int64, roll, rate float64, expiresAt time.Time) error
	ExpireUnaccepted(ctx context.Context, now time.Time) ([]*models.ActiveMission, error)
	ExpireUnstarted(ctx context.Context, now time.Time) ([]*models.ActiveMission, error)
	DueForResolution(ctx context.Context, now time.Time) ([]*models.ActiveMission, error)
	Resolve(ctx context.Context, id int64, success bool, payout int64) error
	GetSettings(ctx context.Context, guildID string) (*models.ServerMissionSettings, error)
	ListEnabledSettings(ctx context.Context) ([]*models.ServerMissionSettings, error)
	UpsertSettings(ctx context.Context, settings *models.ServerMissionSettings) error
	TouchLastSpawn(ctx context.Context, guildID string, at time.Time) error
}

type missionRepository struct {
	db *bun.DB
}

func NewMissionRepository(db *bun.DB) MissionRepository {
	return &missionRepository{db: db}
}

func (r *missionRepository) DB() *bun.DB {
	return r.db
}

func (r *missionRepository) GetActiveTemplates(ctx context.Context, deckID int64) ([]*models.MissionTemplate, error) {
	var templates []*models.MissionTemplate
	err := r.db.NewSelect().
		Model(&templates).
		Where("deck_id = ? AND is_active = TRUE", deckID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get mission templates: %w", err)
	}
	return templates, nil
}

func (r *missionRepository) GetScaling(ctx context.Context, templateID int64) (map[models.Rarity]*models.MissionRarityScaling, error) {
	var rows []*models.MissionRarityScaling
	err := r.db.NewSelect().
		Model(&rows).
		Where("mission_template_id = ?", templateID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get rarity scaling: %w", err)
	}
	out := make(map[models.Rarity]*models.MissionRarityScaling, len(rows))
	for _, row := range rows {
		out[row.Rarity] = row
	}
	return out, nil
}

func (r *missionRepository) CreateActive(ctx context.Context, mission *models.ActiveMission) error {
	if mission.SpawnedAt.IsZero() {
		mission.SpawnedAt = time.Now()
	}
	_, err := r.db.NewInsert().Model(mission).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create mission: %w", err)
	}
	return nil
}

func (r *missionRepository) GetByID(ctx context.Context, id int64) (*models.ActiveMission, error) {
	mission := new(models.ActiveMission)
	err := r.db.NewSelect().
		Model(mission).
		Relation("Template").
		Where("am.id = ?", id).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("mission %d not found", id)
		}
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}
	return mission, nil
}

func (r *missionRepository) GetByMessageID(ctx context.Context, messageID string) (*models.ActiveMission, error) {
	mission := new(models.ActiveMission)
	err := r.db.NewSelect().
		Model(mission).
		Relation("Template").
		Where("am.message_id = ?", messageID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("no mission for that message")
		}
		return nil, fmt.Errorf("failed to get mission by message: %w", err)
	}
	return mission, nil
}

func (r *missionRepository) GetUserMissions(ctx context.Context, userID, guildID string) ([]*models.ActiveMission, error) {
	var missions []*models.ActiveMission
	err := r.db.NewSelect().
		Model(&missions).
		Relation("Template").
		Where("am.accepted_by = ? AND am.guild_id = ?", userID, guildID).
		Order("am.spawned_at DESC").
		Limit(10).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user missions: %w", err)
	}
	return missions, nil
}

// GetAcceptedPending returns the player's most recently accepted mission
// that has not been started yet.
func (r *missionRepository) GetAcceptedPending(ctx context.Context, userID, guildID string) (*models.ActiveMission, error) {
	mission := new(models.ActiveMission)
	err := r.db.NewSelect().
		Model(mission).
		Relation("Template").
		Where("am.accepted_by = ? AND am.guild_id = ? AND am.status = ? AND am.started_at IS NULL", userID, guildID, models.MissionPending).
		Order("am.accepted_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, economy.NotFoundf("you don't have a pending mission, accept one first")
		}
		return nil, fmt.Errorf("failed to get pending mission: %w", err)
	}
	return mission, nil
}

func (r *missionRepository) SetMessageID(ctx context.Context, id int64, messageID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.ActiveMission)(nil)).
		Set("message_id = ?", messageID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set mission message: %w", err)
	}
	return nil
}

// Accept claims a pending mission for a player: first reaction wins under
// the row lock. The acceptance cost is debited up front and is not refunded
// on any later outcome. The cooldown is keyed on (player, guild) and starts
// at acceptance.
func (r *missionRepository) Accept(ctx context.Context, id int64, userID string, cost int64, cooldown time.Duration, startDeadline time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	mission := new(models.ActiveMission)
	err = tx.NewSelect().
		Model(mission).
		Where("am.id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return economy.NotFoundf("mission not found")
		}
		return fmt.Errorf("failed to lock mission: %w", err)
	}
	if mission.Status != models.MissionPending || mission.Accepted() {
		return economy.StateConflictf("mission was already claimed")
	}
	now := time.Now()
	if now.After(mission.ReactionExpiresAt) {
		return economy.StaleReferencef("the acceptance window has closed")
	}

	cd := new(models.UserMissionCooldown)
	err = tx.NewSelect().
		Model(cd).
		Where("user_id = ? AND guild_id = ?", userID, mission.GuildID).
		Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to get cooldown: %w", err)
	}
	if err == nil {
		if remaining := cooldown - now.Sub(cd.LastAcceptTime); remaining > 0 {
			return economy.Preconditionf("you can accept another mission in %s", remaining.Round(time.Minute))
		}
	}

	res, err := tx.NewUpdate().
		Model((*models.Player)(nil)).
		Set("credits = credits - ?", cost).
		Set("updated_at = ?", now).
		Where("discord_id = ? AND credits >= ?", userID, cost).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to debit acceptance cost: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return economy.Preconditionf("accepting this mission costs %d credits", cost)
	}

	_, err = tx.NewUpdate().
		Model((*models.ActiveMission)(nil)).
		Set("accepted_by = ?", userID).
		Set("accepted_at = ?", now).
		Set("expires_at = ?", startDeadline).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark mission accepted: %w", err)
	}

	upd, err := tx.NewUpdate().
		Model((*models.UserMissionCooldown)(nil)).
		Set("last_accept_time = ?", now).
		Where("user_id = ? AND guild_id = ?", userID, mission.GuildID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update cooldown: %w", err)
	}
	updated, err := upd.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if updated == 0 {
		cooldownRow := &models.UserMissionCooldown{
			UserID:         userID,
			GuildID:        mission.GuildID,
			LastAcceptTime: now,
		}
		if _, err := tx.NewInsert().Model(cooldownRow).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create cooldown: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit acceptance: %w", err)
	}

	slog.Info("Mission accepted",
		slog.String("type", "db"),
		slog.Int64("mission_id", id),
		slog.String("user_id", userID),
		slog.Int64("cost", cost))
	return nil
}

// Start commits a card instance to an accepted mission, freezing both the
// success roll and the computed success rate so later merges of other copies
// cannot change the outcome.
func (r *missionRepository) Start(ctx context.Context, id int64, userID string, instanceID int64, roll, rate float64, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	mission := new(models.ActiveMission)
	err = tx.NewSelect().
		Model(mission).
		Where("am.id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return economy.NotFoundf("mission not found")
		}
		return fmt.Errorf("failed to lock mission: %w", err)
	}
	if mission.AcceptedBy != userID {
		return economy.StateConflictf("this mission is not yours to start")
	}
	if mission.Started() {
		return economy.StateConflictf("mission already started")
	}
	now := time.Now()
	if !mission.ExpiresAt.IsZero() && now.After(mission.ExpiresAt) {
		return economy.StaleReferencef("the start deadline has passed")
	}

	instance := new(models.CardInstance)
	err = tx.NewSelect().
		Model(instance).
		Where("ci.id = ? AND ci.user_id = ? AND ci.recycled_at IS NULL", instanceID, userID).
		Where(missionLockFilter).
		For("UPDATE OF ci").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return economy.StaleReferencef("that card is no longer available")
		}
		return fmt.Errorf("failed to lock instance: %w", err)
	}

	_, err = tx.NewUpdate().
		Model((*models.ActiveMission)(nil)).
		Set("status = ?", models.MissionActive).
		Set("card_instance_id = ?", instanceID).
		Set("success_roll = ?", roll).
		Set("success_rate = ?", rate).
		Set("started_at = ?", now).
		Set("expires_at = ?", expiresAt).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to start mission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit start: %w", err)
	}

	slog.Info("Mission started",
		slog.String("type", "db"),
		slog.Int64("mission_id", id),
		slog.String("user_id", userID),
		slog.Int64("instance_id", instanceID),
		slog.Float64("success_rate", rate))
	return nil
}

// ExpireUnaccepted terminates pending missions whose reaction window closed.
func (r *missionRepository) ExpireUnaccepted(ctx context.Context, now time.Time) ([]*models.ActiveMission, error) {
	return r.expireWhere(ctx, "status = ? AND accepted_by IS NULL AND reaction_expires_at <= ?", models.MissionPending, now)
}

// ExpireUnstarted terminates accepted missions never started in time. The
// acceptance cost stays spent.
func (r *missionRepository) ExpireUnstarted(ctx context.Context, now time.Time) ([]*models.ActiveMission, error) {
	return r.expireWhere(ctx, "status = ? AND accepted_by IS NOT NULL AND started_at IS NULL AND expires_at <= ?", models.MissionPending, now)
}

func (r *missionRepository) expireWhere(ctx context.Context, where string, args ...any) ([]*models.ActiveMission, error) {
	var expired []*models.ActiveMission
	err := r.db.NewUpdate().
		Model(&expired).
		Set("status = ?", models.MissionExpired).
		Set("completed_at = ?", time.Now()).
		Where(where, args...).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to expire missions: %w", err)
	}
	return expired, nil
}

func (r *missionRepository) DueForResolution(ctx context.Context, now time.Time) ([]*models.ActiveMission, error) {
	var missions []*models.ActiveMission
	err := r.db.NewSelect().
		Model(&missions).
		Relation("Template").
		Where("am.status = ? AND am.expires_at <= ?", models.MissionActive, now).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get due missions: %w", err)
	}
	return missions, nil
}

// Resolve finishes a started mission. On success the payout (rolled reward
// plus the merge level bonus) is credited in the same transaction; on
// failure nothing moves. Either way the committed instance is released.
func (r *missionRepository) Resolve(ctx context.Context, id int64, success bool, payout int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	mission := new(models.ActiveMission)
	err = tx.NewSelect().
		Model(mission).
		Where("am.id = ? AND am.status = ?", id, models.MissionActive).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return economy.StateConflictf("mission already resolved")
		}
		return fmt.Errorf("failed to lock mission: %w", err)
	}

	status := models.MissionFailed
	if success {
		status = models.MissionCompleted
		_, err = tx.NewUpdate().
			Model((*models.Player)(nil)).
			Set("credits = credits + ?", payout).
			Set("updated_at = ?", time.Now()).
			Where("discord_id = ?", mission.AcceptedBy).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to credit reward: %w", err)
		}
	}

	_, err = tx.NewUpdate().
		Model((*models.ActiveMission)(nil)).
		Set("status = ?", status).
		Set("completed_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve mission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}

	slog.Info("Mission resolved",
		slog.String("type", "db"),
		slog.Int64("mission_id", id),
		slog.String("user_id", mission.AcceptedBy),
		slog.Bool("success", success),
		slog.Int64("payout", payout))
	return nil
}

func (r *missionRepository) GetSettings(ctx context.Context, guildID string) (*models.ServerMissionSettings, error) {
	settings := new(models.ServerMissionSettings)
	err := r.db.NewSelect().
		Model(settings).
		Where("guild_id = ?", guildID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.ServerMissionSettings{GuildID: guildID}, nil
		}
		return nil, fmt.Errorf("failed to get mission settings: %w", err)
	}
	return settings, nil
}

func (r *missionRepository) ListEnabledSettings(ctx context.Context) ([]*models.ServerMissionSettings, error) {
	var settings []*models.ServerMissionSettings
	err := r.db.NewSelect().
		Model(&settings).
		Where("missions_enabled = TRUE AND mission_channel_id IS NOT NULL").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mission settings: %w", err)
	}
	return settings, nil
}

func (r *missionRepository) UpsertSettings(ctx context.Context, settings *models.ServerMissionSettings) error {
	_, err := r.db.NewInsert().
		Model(settings).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("missions_enabled = EXCLUDED.missions_enabled").
		Set("mission_channel_id = EXCLUDED.mission_channel_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert mission settings: %w", err)
	}
	return nil
}

func (r *missionRepository) TouchLastSpawn(ctx context.Context, guildID string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.ServerMissionSettings)(nil)).
		Set("last_mission_spawn = ?", at).
		Where("guild_id = ?", guildID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to touch last spawn: %w", err)
	}
	return nil
}
