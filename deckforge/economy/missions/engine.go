package missions

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/economy"
)

// Config tunes the spawn gates and lifecycle deadlines.
type Config struct {
	MessageThreshold int           `toml:"message_threshold"`
	AuthorThreshold  int           `toml:"author_threshold"`
	SpawnInterval    time.Duration `toml:"-"`
	ReactionWindow   time.Duration `toml:"-"`
	AcceptCooldown   time.Duration `toml:"-"`
	StartDeadline    time.Duration `toml:"-"`
}

func DefaultConfig() Config {
	return Config{
		MessageThreshold: 10,
		AuthorThreshold:  2,
		SpawnInterval:    time.Hour,
		ReactionWindow:   20 * time.Minute,
		AcceptCooldown:   4 * time.Hour,
		StartDeadline:    24 * time.Hour,
	}
}

// Notifier is how the engine reaches Discord. Calls are best effort; a
// failed notification never rolls back economy state.
type Notifier interface {
	PostMission(ctx context.Context, mission *models.ActiveMission, template *models.MissionTemplate) (messageID string, err error)
	MissionClaimed(ctx context.Context, mission *models.ActiveMission, userID string)
	MissionResolved(ctx context.Context, mission *models.ActiveMission, success bool, payout int64)
}

// StartResult reports a started mission back to the command layer.
type StartResult struct {
	Mission    *models.ActiveMission
	Card       *repositories.QualifyingInstance
	Rate       float64
	MergeBonus int
	EndsAt     time.Time
}

// Engine drives the mission lifecycle.
type Engine struct {
	missions  repositories.MissionRepository
	instances repositories.CardInstanceRepository
	players   repositories.PlayerRepository
	decks     repositories.DeckRepository
	tracker   ActivityTracker
	notifier  Notifier
	cfg       Config
	rng       *rand.Rand
	now       func() time.Time
}

func NewEngine(
	missions repositories.MissionRepository,
	instances repositories.CardInstanceRepository,
	players repositories.PlayerRepository,
	decks repositories.DeckRepository,
	tracker ActivityTracker,
	notifier Notifier,
	cfg Config,
) *Engine {
	return &Engine{
		missions:  missions,
		instances: instances,
		players:   players,
		decks:     decks,
		tracker:   tracker,
		notifier:  notifier,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// SpawnSweep walks every guild with recorded chatter and spawns at most one
// mission per eligible guild. A failure in one guild never stops the sweep.
func (e *Engine) SpawnSweep(ctx context.Context) {
	for _, guildID := range e.tracker.Guilds() {
		if err := e.spawnForGuild(ctx, guildID); err != nil {
			slog.Error("Mission spawn failed",
				slog.String("type", "sys"),
				slog.String("guild_id", guildID),
				slog.Any("error", err))
		}
	}
}

func (e *Engine) spawnForGuild(ctx context.Context, guildID string) error {
	snapshot := e.tracker.Snapshot(guildID)
	if snapshot.Messages < e.cfg.MessageThreshold || snapshot.Authors < e.cfg.AuthorThreshold {
		return nil
	}

	settings, err := e.missions.GetSettings(ctx, guildID)
	if err != nil {
		return err
	}
	if !settings.MissionsEnabled || settings.MissionChannelID == "" {
		return nil
	}
	now := e.now()
	if !settings.LastMissionSpawn.IsZero() && now.Sub(settings.LastMissionSpawn) < e.cfg.SpawnInterval {
		return nil
	}

	deck, err := e.decks.GetByGuildID(ctx, guildID)
	if err != nil {
		return err
	}
	templates, err := e.missions.GetActiveTemplates(ctx, deck.ID)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return nil
	}

	template := templates[e.rng.Intn(len(templates))]
	rarity := RollRarity(BoostedWeights(snapshot.Messages), e.rng)

	scalingRows, err := e.missions.GetScaling(ctx, template.ID)
	if err != nil {
		return err
	}
	scaling, ok := scalingRows[rarity]
	if !ok {
		return fmt.Errorf("template %d has no scaling row for %s", template.ID, rarity)
	}

	rolls := RollValues(template, scaling, e.rng)
	mission := &models.ActiveMission{
		TemplateID:          template.ID,
		GuildID:             guildID,
		DeckID:              deck.ID,
		ChannelID:           settings.MissionChannelID,
		Status:              models.MissionPending,
		RarityRolled:        rarity,
		RequirementRolled:   rolls.Requirement,
		RewardRolled:        rolls.Reward,
		DurationRolledHours: rolls.DurationHours,
		SpawnedAt:           now,
		ReactionExpiresAt:   now.Add(e.cfg.ReactionWindow),
	}
	if err := e.missions.CreateActive(ctx, mission); err != nil {
		return err
	}

	if e.notifier != nil {
		messageID, perr := e.notifier.PostMission(ctx, mission, template)
		if perr != nil {
			slog.Error("Failed to post mission",
				slog.String("type", "sys"),
				slog.Int64("mission_id", mission.ID),
				slog.Any("error", perr))
		} else if err := e.missions.SetMessageID(ctx, mission.ID, messageID); err != nil {
			return err
		}
	}

	if err := e.missions.TouchLastSpawn(ctx, guildID, now); err != nil {
		return err
	}
	e.tracker.Reset(guildID)

	slog.Info("Mission spawned",
		slog.String("type", "sys"),
		slog.String("guild_id", guildID),
		slog.Int64("mission_id", mission.ID),
		slog.String("rarity", string(mission.RarityRolled)),
		slog.Int64("reward", mission.RewardRolled),
		slog.Int("messages", snapshot.Messages))
	return nil
}

// AcceptFromReaction claims a pending mission for the reacting player.
// Pre-checks run outside the transaction for friendly errors; the store
// transaction re-verifies the race-prone ones. The mission stays open for
// others when the claim fails.
func (e *Engine) AcceptFromReaction(ctx context.Context, messageID, userID string) (*models.ActiveMission, error) {
	mission, err := e.missions.GetByMessageID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if mission.Status != models.MissionPending || mission.Accepted() {
		return nil, economy.StateConflictf("mission was already claimed")
	}
	if e.now().After(mission.ReactionExpiresAt) {
		return nil, economy.StaleReferencef("the acceptance window has closed")
	}
	if mission.Template == nil {
		return nil, economy.Unavailablef("mission template is missing")
	}

	if _, err := e.players.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	qualified, err := e.instances.HasQualifying(ctx, userID, mission.Template.RequirementField, mission.RequirementRolled)
	if err != nil {
		return nil, err
	}
	if !qualified {
		return nil, economy.Preconditionf("you don't have a card with %s >= %.0f",
			mission.Template.RequirementField, mission.RequirementRolled)
	}

	deadline := e.now().Add(e.cfg.StartDeadline)
	if err := e.missions.Accept(ctx, mission.ID, userID, mission.AcceptanceCost(), e.cfg.AcceptCooldown, deadline); err != nil {
		return nil, err
	}
	mission.AcceptedBy = userID

	if e.notifier != nil {
		e.notifier.MissionClaimed(ctx, mission, userID)
	}
	return mission, nil
}

// Start commits a qualifying card to the player's accepted mission. The
// success roll and the final rate (card rarity scaling plus 5 points per
// merge level, capped at 99) are both frozen here; resolution only compares
// them.
func (e *Engine) Start(ctx context.Context, userID, guildID, cardName string) (*StartResult, error) {
	mission, err := e.missions.GetAcceptedPending(ctx, userID, guildID)
	if err != nil {
		return nil, err
	}
	if mission.Template == nil {
		return nil, economy.Unavailablef("mission template is missing")
	}

	card, err := e.instances.BestQualifying(ctx, userID, cardName, mission.Template.RequirementField, mission.RequirementRolled)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, economy.Preconditionf("%s doesn't qualify: need %s >= %.0f",
			cardName, mission.Template.RequirementField, mission.RequirementRolled)
	}

	scalingRows, err := e.missions.GetScaling(ctx, mission.TemplateID)
	if err != nil {
		return nil, err
	}
	baseRate := 50.0
	if scaling, ok := scalingRows[card.Rarity]; ok {
		baseRate = scaling.SuccessRate
	}
	rate := SuccessRate(baseRate, card.MergeLevel)
	roll := e.rng.Float64() * 100

	now := e.now()
	endsAt := now.Add(time.Duration(mission.DurationRolledHours) * time.Hour)
	if err := e.missions.Start(ctx, mission.ID, userID, card.InstanceID, roll, rate, endsAt); err != nil {
		return nil, err
	}

	return &StartResult{
		Mission:    mission,
		Card:       card,
		Rate:       rate,
		MergeBonus: card.MergeLevel * 5,
		EndsAt:     endsAt,
	}, nil
}

// LifecycleSweep expires stale missions and resolves finished ones. Every
// item is isolated: one bad row is logged and skipped, never halting the
// sweep.
func (e *Engine) LifecycleSweep(ctx context.Context) {
	now := e.now()

	if expired, err := e.missions.ExpireUnaccepted(ctx, now); err != nil {
		slog.Error("Failed to expire unaccepted missions", slog.String("type", "sys"), slog.Any("error", err))
	} else if len(expired) > 0 {
		slog.Info("Expired unaccepted missions", slog.String("type", "sys"), slog.Int("count", len(expired)))
	}

	if expired, err := e.missions.ExpireUnstarted(ctx, now); err != nil {
		slog.Error("Failed to expire unstarted missions", slog.String("type", "sys"), slog.Any("error", err))
	} else if len(expired) > 0 {
		slog.Info("Expired unstarted missions", slog.String("type", "sys"), slog.Int("count", len(expired)))
	}

	due, err := e.missions.DueForResolution(ctx, now)
	if err != nil {
		slog.Error("Failed to list due missions", slog.String("type", "sys"), slog.Any("error", err))
		return
	}
	for _, mission := range due {
		if err := e.resolve(ctx, mission); err != nil {
			slog.Error("Failed to resolve mission",
				slog.String("type", "sys"),
				slog.Int64("mission_id", mission.ID),
				slog.Any("error", err))
		}
	}
}

func (e *Engine) resolve(ctx context.Context, mission *models.ActiveMission) error {
	success := mission.SuccessRoll <= mission.SuccessRate

	payout := int64(0)
	if success {
		mergeLevel := 0
		if instance, err := e.instances.GetByID(ctx, mission.CardInstanceID); err == nil {
			mergeLevel = instance.MergeLevel
		}
		payout = mission.RewardRolled + SuccessBonus(mission.RewardRolled, mergeLevel)
	}

	if err := e.missions.Resolve(ctx, mission.ID, success, payout); err != nil {
		return err
	}
	if e.notifier != nil {
		e.notifier.MissionResolved(ctx, mission, success, payout)
	}
	return nil
}
