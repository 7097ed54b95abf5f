package missions

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/economy"
)

// missionWorld is the shared in-memory state behind the fake repositories.
// The mission repo mimics the store transaction's guards: first claim wins,
// cooldown enforced, cost debited with a balance check.
type missionWorld struct {
	missions   map[int64]*models.ActiveMission
	templates  map[int64]*models.MissionTemplate
	scaling    map[int64]map[models.Rarity]*models.MissionRarityScaling
	settings   map[string]*models.ServerMissionSettings
	cooldowns  map[string]time.Time
	credits    map[string]int64
	qualifying map[string][]*repositories.QualifyingInstance
	instances  map[int64]*models.CardInstance
	decks      map[string]*models.Deck
	nextID     int64
	now        time.Time
}

func newMissionWorld() *missionWorld {
	return &missionWorld{
		missions:   make(map[int64]*models.ActiveMission),
		templates:  make(map[int64]*models.MissionTemplate),
		scaling:    make(map[int64]map[models.Rarity]*models.MissionRarityScaling),
		settings:   make(map[string]*models.ServerMissionSettings),
		cooldowns:  make(map[string]time.Time),
		credits:    make(map[string]int64),
		qualifying: make(map[string][]*repositories.QualifyingInstance),
		instances:  make(map[int64]*models.CardInstance),
		decks:      make(map[string]*models.Deck),
		now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (w *missionWorld) id() int64 {
	w.nextID++
	return w.nextID
}

func (w *missionWorld) addTemplate(deckID int64) *models.MissionTemplate {
	template := &models.MissionTemplate{
		ID:                w.id(),
		DeckID:            deckID,
		Name:              "Convoy Escort",
		RequirementField:  "Thrust",
		MinValueBase:      600,
		RewardBase:        1000,
		DurationBaseHours: 6,
		VariancePct:       20,
		IsActive:          true,
	}
	w.templates[template.ID] = template
	rows := make(map[models.Rarity]*models.MissionRarityScaling)
	for _, rarity := range models.RarityHierarchy {
		rows[rarity] = &models.MissionRarityScaling{
			TemplateID:            template.ID,
			Rarity:                rarity,
			RequirementMultiplier: 1,
			RewardMultiplier:      1,
			DurationMultiplier:    1,
			SuccessRate:           60,
		}
	}
	w.scaling[template.ID] = rows
	return template
}

func (w *missionWorld) addPendingMission(guildID string, template *models.MissionTemplate) *models.ActiveMission {
	mission := &models.ActiveMission{
		ID:                  w.id(),
		TemplateID:          template.ID,
		GuildID:             guildID,
		DeckID:              template.DeckID,
		ChannelID:           "chan-1",
		Status:              models.MissionPending,
		RarityRolled:        models.RarityRare,
		RequirementRolled:   600,
		RewardRolled:        1000,
		DurationRolledHours: 6,
		SpawnedAt:           w.now,
		ReactionExpiresAt:   w.now.Add(20 * time.Minute),
	}
	mission.MessageID = "msg-" + strconv.FormatInt(mission.ID, 10)
	w.missions[mission.ID] = mission
	return mission
}

func (w *missionWorld) giveQualifying(userID string, rarity models.Rarity, mergeLevel int, value float64) *repositories.QualifyingInstance {
	id := w.id()
	w.instances[id] = &models.CardInstance{ID: id, UserID: userID, MergeLevel: mergeLevel}
	q := &repositories.QualifyingInstance{
		InstanceID: id,
		CardID:     id,
		Name:       "Line Destroyer",
		Rarity:     rarity,
		MergeLevel: mergeLevel,
		FieldValue: value,
	}
	w.qualifying[userID] = append(w.qualifying[userID], q)
	return q
}

// MissionRepository

type fakeMissions struct{ *missionWorld }

func (f fakeMissions) DB() *bun.DB { return nil }

func (f fakeMissions) GetActiveTemplates(_ context.Context, deckID int64) ([]*models.MissionTemplate, error) {
	var out []*models.MissionTemplate
	for _, template := range f.templates {
		if template.DeckID == deckID && template.IsActive {
			out = append(out, template)
		}
	}
	return out, nil
}

func (f fakeMissions) GetScaling(_ context.Context, templateID int64) (map[models.Rarity]*models.MissionRarityScaling, error) {
	return f.scaling[templateID], nil
}

func (f fakeMissions) CreateActive(_ context.Context, mission *models.ActiveMission) error {
	mission.ID = f.id()
	f.missions[mission.ID] = mission
	return nil
}

func (f fakeMissions) GetByID(_ context.Context, id int64) (*models.ActiveMission, error) {
	mission, ok := f.missions[id]
	if !ok {
		return nil, economy.NotFoundf("mission not found")
	}
	return mission, nil
}

func (f fakeMissions) GetByMessageID(_ context.Context, messageID string) (*models.ActiveMission, error) {
	for _, mission := range f.missions {
		if mission.MessageID == messageID {
			mission.Template = f.templates[mission.TemplateID]
			return mission, nil
		}
	}
	return nil, economy.NotFoundf("this message is not a claimable mission")
}

func (f fakeMissions) GetUserMissions(_ context.Context, userID, guildID string) ([]*models.ActiveMission, error) {
	var out []*models.ActiveMission
	for _, mission := range f.missions {
		if mission.AcceptedBy == userID && mission.GuildID == guildID {
			mission.Template = f.templates[mission.TemplateID]
			out = append(out, mission)
		}
	}
	return out, nil
}

func (f fakeMissions) GetAcceptedPending(_ context.Context, userID, guildID string) (*models.ActiveMission, error) {
	for _, mission := range f.missions {
		if mission.AcceptedBy == userID && mission.GuildID == guildID &&
			mission.Status == models.MissionPending && !mission.Started() {
			mission.Template = f.templates[mission.TemplateID]
			return mission, nil
		}
	}
	return nil, economy.NotFoundf("you don't have a pending mission, accept one first")
}

func (f fakeMissions) SetMessageID(_ context.Context, id int64, messageID string) error {
	f.missions[id].MessageID = messageID
	return nil
}

func (f fakeMissions) Accept(_ context.Context, id int64, userID string, cost int64, cooldown time.Duration, startDeadline time.Time) error {
	mission, ok := f.missions[id]
	if !ok {
		return economy.NotFoundf("mission not found")
	}
	if mission.Status != models.MissionPending || mission.Accepted() {
		return economy.StateConflictf("mission was already claimed")
	}
	if f.now.After(mission.ReactionExpiresAt) {
		return economy.StaleReferencef("the acceptance window has closed")
	}
	key := userID + "/" + mission.GuildID
	if last, ok := f.cooldowns[key]; ok {
		if remaining := cooldown - f.now.Sub(last); remaining > 0 {
			return economy.Preconditionf("you can accept another mission in %s", remaining.Round(time.Minute))
		}
	}
	if f.credits[userID] < cost {
		return economy.Preconditionf("accepting this mission costs %d credits", cost)
	}
	f.credits[userID] -= cost
	mission.AcceptedBy = userID
	mission.AcceptedAt = f.now
	mission.ExpiresAt = startDeadline
	f.cooldowns[key] = f.now
	return nil
}

func (f fakeMissions) Start(_ context.Context, id int64, userID string, instanceID int64, roll, rate float64, expiresAt time.Time) error {
	mission := f.missions[id]
	if mission.AcceptedBy != userID {
		return economy.StateConflictf("this mission is not yours to start")
	}
	if mission.Started() {
		return economy.StateConflictf("mission already started")
	}
	if !mission.ExpiresAt.IsZero() && f.now.After(mission.ExpiresAt) {
		return economy.StaleReferencef("the start deadline has passed")
	}
	mission.Status = models.MissionActive
	mission.CardInstanceID = instanceID
	mission.SuccessRoll = roll
	mission.SuccessRate = rate
	mission.StartedAt = f.now
	mission.ExpiresAt = expiresAt
	return nil
}

func (f fakeMissions) ExpireUnaccepted(_ context.Context, now time.Time) ([]*models.ActiveMission, error) {
	var out []*models.ActiveMission
	for _, mission := range f.missions {
		if mission.Status == models.MissionPending && !mission.Accepted() && !now.Before(mission.ReactionExpiresAt) {
			mission.Status = models.MissionExpired
			out = append(out, mission)
		}
	}
	return out, nil
}

func (f fakeMissions) ExpireUnstarted(_ context.Context, now time.Time) ([]*models.ActiveMission, error) {
	var out []*models.ActiveMission
	for _, mission := range f.missions {
		if mission.Status == models.MissionPending && mission.Accepted() && !mission.Started() && !now.Before(mission.ExpiresAt) {
			mission.Status = models.MissionExpired
			out = append(out, mission)
		}
	}
	return out, nil
}

func (f fakeMissions) DueForResolution(_ context.Context, now time.Time) ([]*models.ActiveMission, error) {
	var out []*models.ActiveMission
	for _, mission := range f.missions {
		if mission.Status == models.MissionActive && !now.Before(mission.ExpiresAt) {
			mission.Template = f.templates[mission.TemplateID]
			out = append(out, mission)
		}
	}
	return out, nil
}

func (f fakeMissions) Resolve(_ context.Context, id int64, success bool, payout int64) error {
	mission := f.missions[id]
	if mission.Status != models.MissionActive {
		return economy.StateConflictf("mission already resolved")
	}
	if success {
		mission.Status = models.MissionCompleted
		f.credits[mission.AcceptedBy] += payout
	} else {
		mission.Status = models.MissionFailed
	}
	mission.CompletedAt = f.now
	return nil
}

func (f fakeMissions) GetSettings(_ context.Context, guildID string) (*models.ServerMissionSettings, error) {
	if settings, ok := f.settings[guildID]; ok {
		return settings, nil
	}
	return &models.ServerMissionSettings{GuildID: guildID}, nil
}

func (f fakeMissions) ListEnabledSettings(context.Context) ([]*models.ServerMissionSettings, error) {
	return nil, nil
}

func (f fakeMissions) UpsertSettings(_ context.Context, settings *models.ServerMissionSettings) error {
	f.settings[settings.GuildID] = settings
	return nil
}

func (f fakeMissions) TouchLastSpawn(_ context.Context, guildID string, at time.Time) error {
	f.settings[guildID].LastMissionSpawn = at
	return nil
}

// CardInstanceRepository

type fakeInstances struct{ *missionWorld }

func (f fakeInstances) DB() *bun.DB { return nil }

func (f fakeInstances) Create(_ context.Context, instance *models.CardInstance) error {
	instance.ID = f.id()
	f.instances[instance.ID] = instance
	return nil
}

func (f fakeInstances) CreateBatch(context.Context, []*models.CardInstance) error { return nil }

func (f fakeInstances) GetByID(_ context.Context, id int64) (*models.CardInstance, error) {
	instance, ok := f.instances[id]
	if !ok {
		return nil, economy.NotFoundf("card instance %d not found", id)
	}
	return instance, nil
}

func (f fakeInstances) CountOwned(context.Context, string, int64, int) (int, error) { return 0, nil }

func (f fakeInstances) GetOldestOwned(context.Context, string, int64, int, int) ([]*models.CardInstance, error) {
	return nil, nil
}

func (f fakeInstances) OwnedSummary(context.Context, string, int64) ([]*repositories.OwnedCard, error) {
	return nil, nil
}

func (f fakeInstances) RecycleOldest(context.Context, string, int64, int, int, int64) (int, error) {
	return 0, nil
}

func (f fakeInstances) ExecuteMerge(context.Context, repositories.MergeExecution) (int64, error) {
	return 0, nil
}

func (f fakeInstances) GetFieldBoosts(context.Context, int64) ([]*models.InstanceFieldBoost, error) {
	return nil, nil
}

func (f fakeInstances) GetPerkHistory(context.Context, int64) ([]*models.CardPerk, error) {
	return nil, nil
}

func (f fakeInstances) HasQualifying(_ context.Context, userID, fieldName string, minValue float64) (bool, error) {
	for _, q := range f.qualifying[userID] {
		if q.FieldValue >= minValue {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeInstances) BestQualifying(_ context.Context, userID, cardName, fieldName string, minValue float64) (*repositories.QualifyingInstance, error) {
	for _, q := range f.qualifying[userID] {
		if q.Name == cardName && q.FieldValue >= minValue {
			return q, nil
		}
	}
	return nil, nil
}

func (f fakeInstances) ListQualifying(_ context.Context, userID, fieldName string, minValue float64, limit int) ([]*repositories.QualifyingInstance, error) {
	return f.qualifying[userID], nil
}

// PlayerRepository

type fakePlayers struct{ *missionWorld }

func (f fakePlayers) DB() *bun.DB { return nil }

func (f fakePlayers) GetOrCreate(_ context.Context, discordID string) (*models.Player, error) {
	if _, ok := f.credits[discordID]; !ok {
		f.credits[discordID] = 0
	}
	return &models.Player{DiscordID: discordID, Credits: f.credits[discordID]}, nil
}

func (f fakePlayers) GetByDiscordID(ctx context.Context, discordID string) (*models.Player, error) {
	return f.GetOrCreate(ctx, discordID)
}

func (f fakePlayers) GetBalance(_ context.Context, discordID string) (int64, error) {
	return f.credits[discordID], nil
}

func (f fakePlayers) AddCredits(_ context.Context, discordID string, amount int64) error {
	f.credits[discordID] += amount
	return nil
}

func (f fakePlayers) DeductCredits(_ context.Context, discordID string, amount int64) error {
	if f.credits[discordID] < amount {
		return economy.Preconditionf("not enough credits")
	}
	f.credits[discordID] -= amount
	return nil
}

func (f fakePlayers) SetLastFreeClaim(context.Context, string, time.Time) error { return nil }

// DeckRepository

type fakeDecks struct{ *missionWorld }

func (f fakeDecks) DB() *bun.DB { return nil }

func (f fakeDecks) GetByID(context.Context, int64) (*models.Deck, error) {
	return nil, economy.NotFoundf("deck not found")
}

func (f fakeDecks) GetByGuildID(_ context.Context, guildID string) (*models.Deck, error) {
	deck, ok := f.decks[guildID]
	if !ok {
		return nil, economy.NotFoundf("this server has no deck assigned")
	}
	return deck, nil
}

func (f fakeDecks) GetDropRates(context.Context, int64) (map[models.Rarity]float64, error) {
	return nil, nil
}

func (f fakeDecks) GetMergePerks(context.Context, int64) ([]*models.DeckMergePerk, error) {
	return nil, nil
}

func (f fakeDecks) GetMergePerk(context.Context, int64, string) (*models.DeckMergePerk, error) {
	return nil, economy.NotFoundf("perk not found")
}

// Notifier

type fakeNotifier struct {
	posted   int
	claimed  int
	resolved []bool
}

func (n *fakeNotifier) PostMission(context.Context, *models.ActiveMission, *models.MissionTemplate) (string, error) {
	n.posted++
	return "posted-msg", nil
}

func (n *fakeNotifier) MissionClaimed(context.Context, *models.ActiveMission, string) {
	n.claimed++
}

func (n *fakeNotifier) MissionResolved(_ context.Context, _ *models.ActiveMission, success bool, _ int64) {
	n.resolved = append(n.resolved, success)
}

func newMissionTestEngine(world *missionWorld, notifier *fakeNotifier) (*Engine, ActivityTracker) {
	tracker := NewActivityTracker()
	engine := NewEngine(
		fakeMissions{world},
		fakeInstances{world},
		fakePlayers{world},
		fakeDecks{world},
		tracker,
		notifier,
		DefaultConfig(),
	)
	engine.now = func() time.Time { return world.now }
	return engine, tracker
}

func TestEngine_SpawnSweep(t *testing.T) {
	ctx := context.Background()
	world := newMissionWorld()
	world.decks["guild-1"] = &models.Deck{ID: 1, Name: "Starter Fleet"}
	world.addTemplate(1)
	world.settings["guild-1"] = &models.ServerMissionSettings{
		GuildID:          "guild-1",
		MissionsEnabled:  true,
		MissionChannelID: "chan-1",
	}

	notifier := &fakeNotifier{}
	engine, tracker := newMissionTestEngine(world, notifier)

	// Below the author threshold: nothing spawns.
	for i := 0; i < 15; i++ {
		tracker.Record("guild-1", "alice")
	}
	engine.SpawnSweep(ctx)
	assert.Empty(t, world.missions)

	tracker.Record("guild-1", "bob")
	engine.SpawnSweep(ctx)
	require.Len(t, world.missions, 1)

	var mission *models.ActiveMission
	for _, m := range world.missions {
		mission = m
	}
	assert.Equal(t, models.MissionPending, mission.Status)
	assert.Equal(t, "posted-msg", mission.MessageID)
	assert.True(t, mission.ReactionExpiresAt.Equal(world.now.Add(20*time.Minute)))
	assert.True(t, mission.RarityRolled.Valid())
	assert.Equal(t, 1, notifier.posted)
	assert.True(t, world.settings["guild-1"].LastMissionSpawn.Equal(world.now))
	assert.Zero(t, tracker.Snapshot("guild-1").Messages, "counters reset after spawn")

	// Within the spawn interval a busy guild still spawns nothing.
	for i := 0; i < 20; i++ {
		tracker.Record("guild-1", "alice")
		tracker.Record("guild-1", "bob")
	}
	engine.SpawnSweep(ctx)
	assert.Len(t, world.missions, 1)
}

func TestEngine_AcceptStartResolveSuccess(t *testing.T) {
	ctx := context.Background()
	world := newMissionWorld()
	template := world.addTemplate(1)
	mission := world.addPendingMission("guild-1", template)
	world.credits["alice"] = 200
	world.giveQualifying("alice", models.RarityRare, 2, 900)

	notifier := &fakeNotifier{}
	engine, _ := newMissionTestEngine(world, notifier)

	claimed, err := engine.AcceptFromReaction(ctx, mission.MessageID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", claimed.AcceptedBy)
	assert.Equal(t, int64(150), world.credits["alice"], "acceptance debits 5%% of the rolled reward")
	assert.True(t, mission.ExpiresAt.Equal(world.now.Add(24*time.Hour)), "start deadline set at acceptance")
	assert.Equal(t, 1, notifier.claimed)

	result, err := engine.Start(ctx, "alice", "guild-1", "Line Destroyer")
	require.NoError(t, err)
	assert.Equal(t, models.MissionActive, mission.Status)
	assert.InDelta(t, 70, result.Rate, 1e-9, "rarity base 60 plus 5 per merge level")
	assert.Equal(t, 10, result.MergeBonus)
	assert.True(t, mission.StartedAt.Equal(world.now))
	assert.True(t, mission.ExpiresAt.Equal(world.now.Add(6*time.Hour)))
	assert.Equal(t, mission.SuccessRate, result.Rate, "rate frozen on the row at start")

	// Resolution compares the frozen pair only.
	mission.SuccessRoll = 10

	world.now = world.now.Add(7 * time.Hour)
	engine.LifecycleSweep(ctx)

	assert.Equal(t, models.MissionCompleted, mission.Status)
	// 1000 reward + 5%/merge level bonus (100), on top of 150 after the debit.
	assert.Equal(t, int64(1250), world.credits["alice"])
	require.Len(t, notifier.resolved, 1)
	assert.True(t, notifier.resolved[0])
}

func TestEngine_ResolveFailureKeepsCost(t *testing.T) {
	ctx := context.Background()
	world := newMissionWorld()
	template := world.addTemplate(1)
	mission := world.addPendingMission("guild-1", template)
	world.credits["bob"] = 100
	world.giveQualifying("bob", models.RarityRare, 0, 700)

	notifier := &fakeNotifier{}
	engine, _ := newMissionTestEngine(world, notifier)

	_, err := engine.AcceptFromReaction(ctx, mission.MessageID, "bob")
	require.NoError(t, err)
	_, err = engine.Start(ctx, "bob", "guild-1", "Line Destroyer")
	require.NoError(t, err)

	mission.SuccessRoll = mission.SuccessRate + 0.5

	world.now = world.now.Add(7 * time.Hour)
	engine.LifecycleSweep(ctx)

	assert.Equal(t, models.MissionFailed, mission.Status)
	assert.Equal(t, int64(50), world.credits["bob"], "no payout and no refund on failure")
	require.Len(t, notifier.resolved, 1)
	assert.False(t, notifier.resolved[0])
}

func TestEngine_AcceptGuards(t *testing.T) {
	ctx := context.Background()
	world := newMissionWorld()
	template := world.addTemplate(1)
	mission := world.addPendingMission("guild-1", template)
	world.credits["alice"] = 200
	world.credits["bob"] = 200
	world.giveQualifying("alice", models.RarityRare, 0, 900)
	world.giveQualifying("bob", models.RarityRare, 0, 900)

	engine, _ := newMissionTestEngine(world, &fakeNotifier{})

	// No qualifying card.
	_, err := engine.AcceptFromReaction(ctx, mission.MessageID, "carol")
	assert.ErrorIs(t, err, economy.ErrPrecondition)

	_, err = engine.AcceptFromReaction(ctx, mission.MessageID, "alice")
	require.NoError(t, err)

	// Second claimant loses.
	_, err = engine.AcceptFromReaction(ctx, mission.MessageID, "bob")
	assert.ErrorIs(t, err, economy.ErrStateConflict)

	// Closed reaction window.
	late := world.addPendingMission("guild-1", template)
	world.now = world.now.Add(21 * time.Minute)
	_, err = engine.AcceptFromReaction(ctx, late.MessageID, "bob")
	assert.ErrorIs(t, err, economy.ErrStaleReference)
}

func TestEngine_AcceptCooldown(t *testing.T) {
	ctx := context.Background()
	world := newMissionWorld()
	template := world.addTemplate(1)
	first := world.addPendingMission("guild-1", template)
	world.credits["alice"] = 500
	world.giveQualifying("alice", models.RarityRare, 0, 900)

	engine, _ := newMissionTestEngine(world, &fakeNotifier{})

	_, err := engine.AcceptFromReaction(ctx, first.MessageID, "alice")
	require.NoError(t, err)

	world.now = world.now.Add(10 * time.Minute)
	second := world.addPendingMission("guild-1", template)
	_, err = engine.AcceptFromReaction(ctx, second.MessageID, "alice")
	assert.ErrorIs(t, err, economy.ErrPrecondition)

	// Past the cooldown the same player can claim again.
	world.now = world.now.Add(4 * time.Hour)
	third := world.addPendingMission("guild-1", template)
	_, err = engine.AcceptFromReaction(ctx, third.MessageID, "alice")
	assert.NoError(t, err)
}

func TestEngine_LifecycleExpiry(t *testing.T) {
	ctx := context.Background()
	world := newMissionWorld()
	template := world.addTemplate(1)

	unclaimed := world.addPendingMission("guild-1", template)

	claimed := world.addPendingMission("guild-2", template)
	world.credits["alice"] = 100
	world.giveQualifying("alice", models.RarityRare, 0, 900)

	engine, _ := newMissionTestEngine(world, &fakeNotifier{})

	_, err := engine.AcceptFromReaction(ctx, claimed.MessageID, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(50), world.credits["alice"])

	// Past the reaction window but inside the start deadline: only the
	// unclaimed mission goes.
	world.now = world.now.Add(30 * time.Minute)
	engine.LifecycleSweep(ctx)
	assert.Equal(t, models.MissionExpired, unclaimed.Status)
	assert.Equal(t, models.MissionPending, claimed.Status)

	// Past the 24h start deadline the claimed-but-unstarted mission expires
	// too, and the acceptance cost stays spent.
	world.now = world.now.Add(24 * time.Hour)
	engine.LifecycleSweep(ctx)
	assert.Equal(t, models.MissionExpired, claimed.Status)
	assert.Equal(t, int64(50), world.credits["alice"])
}
