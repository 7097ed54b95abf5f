package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deckforge/deckforge/deckforge/database/models"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name   string
		rarity models.Rarity
		level  int
		want   int64
	}{
		{name: "rare level 0", rarity: models.RarityRare, level: 0, want: 50},
		{name: "rare level 1", rarity: models.RarityRare, level: 1, want: 62},
		{name: "rare level 2", rarity: models.RarityRare, level: 2, want: 78},
		{name: "common level 0", rarity: models.RarityCommon, level: 0, want: 10},
		{name: "mythic level 0", rarity: models.RarityMythic, level: 0, want: 500},
		{name: "unknown rarity falls back to common", rarity: models.Rarity("bogus"), level: 0, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cost(tt.rarity, tt.level))
		})
	}
}

func TestPerkBoost(t *testing.T) {
	tests := []struct {
		name  string
		base  float64
		level int
		d     float64
		want  float64
	}{
		{name: "level 0 contributes nothing", base: 10, level: 0, d: 0.85, want: 0},
		{name: "level 1 full base", base: 10, level: 1, d: 0.85, want: 10},
		{name: "level 2 diminished", base: 10, level: 2, d: 0.85, want: 8.5},
		{name: "level 3 diminished twice", base: 10, level: 3, d: 0.85, want: 7.23},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PerkBoost(tt.base, tt.level, tt.d), 1e-9)
		})
	}
}

func TestCumulativeBoost(t *testing.T) {
	assert.InDelta(t, 18.5, CumulativeBoost(10, 2, 0.85), 1e-9)
	assert.Zero(t, CumulativeBoost(10, 0, 0.85))
}

func TestRequiredBaseCards(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{level: 0, want: 1},
		{level: 1, want: 2},
		{level: 3, want: 8},
		{level: 5, want: 32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RequiredBaseCards(tt.level), "level %d", tt.level)
	}
}

func TestRecycleValue(t *testing.T) {
	tests := []struct {
		name   string
		rarity models.Rarity
		level  int
		want   int64
	}{
		{name: "common base", rarity: models.RarityCommon, level: 0, want: 10},
		{name: "rare base", rarity: models.RarityRare, level: 0, want: 100},
		{name: "rare level 1 scales", rarity: models.RarityRare, level: 1, want: 125},
		{name: "mythic base", rarity: models.RarityMythic, level: 0, want: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecycleValue(tt.rarity, tt.level))
		})
	}
}
