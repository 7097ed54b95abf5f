package missions

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckforge/deckforge/deckforge/database/models"
)

func TestActivityBonus(t *testing.T) {
	tests := []struct {
		name     string
		messages int
		want     float64
	}{
		{name: "no messages", messages: 0, want: 0},
		{name: "half window", messages: 25, want: 0.5},
		{name: "full window", messages: 50, want: 1},
		{name: "capped above window", messages: 200, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ActivityBonus(tt.messages))
		})
	}
}

func TestBoostedWeights(t *testing.T) {
	quiet := BoostedWeights(0)
	for rarity, weight := range RarityWeights {
		assert.Equal(t, weight, quiet[rarity], "quiet guild keeps base weight for %s", rarity)
	}

	busy := BoostedWeights(50)
	assert.Equal(t, 35, busy[models.RarityCommon], "common stays unboosted")
	assert.Equal(t, 12, busy[models.RarityEpic])
	assert.Equal(t, 6, busy[models.RarityLegendary])
	assert.Equal(t, 2, busy[models.RarityMythic])
}

func TestRollRarity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	only := map[models.Rarity]int{models.RarityLegendary: 5}
	for i := 0; i < 20; i++ {
		require.Equal(t, models.RarityLegendary, RollRarity(only, rng))
	}

	for i := 0; i < 500; i++ {
		require.True(t, RollRarity(RarityWeights, rng).Valid())
	}
}

func TestRollValues(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	template := &models.MissionTemplate{
		MinValueBase:      80,
		RewardBase:        1000,
		DurationBaseHours: 10,
		VariancePct:       20,
	}
	scaling := &models.MissionRarityScaling{
		RequirementMultiplier: 1.5,
		RewardMultiplier:      2,
		DurationMultiplier:    1,
	}

	for i := 0; i < 200; i++ {
		rolls := RollValues(template, scaling, rng)

		require.GreaterOrEqual(t, rolls.Requirement, 80*1.5*0.8-1e-9)
		require.LessOrEqual(t, rolls.Requirement, 80*1.5*1.2+1e-9)
		require.GreaterOrEqual(t, rolls.Reward, int64(1000*2*0.8))
		require.LessOrEqual(t, rolls.Reward, int64(math.Ceil(1000*2*1.2)))
		require.GreaterOrEqual(t, rolls.DurationHours, 8)
		require.LessOrEqual(t, rolls.DurationHours, 12)
	}
}

func TestRollValuesFloors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	template := &models.MissionTemplate{
		MinValueBase:      1,
		RewardBase:        1,
		DurationBaseHours: 1,
		VariancePct:       90,
	}
	scaling := &models.MissionRarityScaling{
		RequirementMultiplier: 0.1,
		RewardMultiplier:      0.1,
		DurationMultiplier:    0.1,
	}

	for i := 0; i < 100; i++ {
		rolls := RollValues(template, scaling, rng)
		require.GreaterOrEqual(t, rolls.Requirement, 1.0, "requirement floor")
		require.GreaterOrEqual(t, rolls.Reward, int64(1), "reward floor")
		require.GreaterOrEqual(t, rolls.DurationHours, 1, "duration floor")
	}
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		name       string
		baseRate   float64
		mergeLevel int
		want       float64
	}{
		{name: "unmerged", baseRate: 50, mergeLevel: 0, want: 50},
		{name: "level 3", baseRate: 50, mergeLevel: 3, want: 65},
		{name: "capped", baseRate: 90, mergeLevel: 5, want: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuccessRate(tt.baseRate, tt.mergeLevel))
		})
	}
}

func TestSuccessBonus(t *testing.T) {
	tests := []struct {
		name       string
		reward     int64
		mergeLevel int
		want       int64
	}{
		{name: "unmerged", reward: 1000, mergeLevel: 0, want: 0},
		{name: "level 2", reward: 1000, mergeLevel: 2, want: 100},
		{name: "truncates", reward: 333, mergeLevel: 1, want: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuccessBonus(tt.reward, tt.mergeLevel))
		})
	}
}
