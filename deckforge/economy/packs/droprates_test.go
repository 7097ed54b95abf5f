package packs

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckforge/deckforge/deckforge/database/models"
)

func TestNormalizeRates(t *testing.T) {
	t.Run("rescales to 100", func(t *testing.T) {
		rates := map[models.Rarity]float64{
			models.RarityCommon: 2,
			models.RarityRare:   2,
		}
		out := NormalizeRates(rates)
		assert.InDelta(t, 50, out[models.RarityCommon], 0.01)
		assert.InDelta(t, 50, out[models.RarityRare], 0.01)
	})

	t.Run("zero table falls back to defaults", func(t *testing.T) {
		out := NormalizeRates(map[models.Rarity]float64{})
		assert.InDelta(t, 40, out[models.RarityCommon], 0.01)
	})
}

func TestApplyPackModifier(t *testing.T) {
	base := CopyRates(DefaultDropRates)

	t.Run("normal pack keeps base rates", func(t *testing.T) {
		out := ApplyPackModifier(base, PackNormal)
		for rarity, want := range base {
			assert.InDelta(t, want, out[rarity], 0.01, "rarity %s", rarity)
		}
	})

	t.Run("booster doubles higher rarities then renormalizes", func(t *testing.T) {
		out := ApplyPackModifier(base, PackBooster)
		// 40/25/15/10/12/6/2 over a 110 total.
		assert.InDelta(t, 12.0/110*100, out[models.RarityEpic], 0.01)
		assert.InDelta(t, 40.0/110*100, out[models.RarityCommon], 0.01)
		total := 0.0
		for _, rate := range out {
			total += rate
		}
		assert.InDelta(t, 100, total, 0.01)
	})

	t.Run("booster plus triples higher rarities", func(t *testing.T) {
		out := ApplyPackModifier(base, PackBoosterPlus)
		assert.InDelta(t, 3.0/120*100, out[models.RarityMythic], 0.01)
	})
}

func TestSelectRarity(t *testing.T) {
	t.Run("single weighted rarity always wins", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		rates := map[models.Rarity]float64{models.RarityEpic: 100}
		for i := 0; i < 50; i++ {
			require.Equal(t, models.RarityEpic, SelectRarity(rates, rng))
		}
	})

	t.Run("draws stay inside the table", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 500; i++ {
			require.True(t, SelectRarity(DefaultDropRates, rng).Valid())
		}
	})
}

func TestNormalizePackType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "normal", want: PackNormal},
		{in: " Booster Pack ", want: PackBooster},
		{in: "booster+", want: PackBoosterPlus},
		{in: "booster pack +", want: PackBoosterPlus},
		{in: "mystery box", want: "mystery box"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePackType(tt.in), "input %q", tt.in)
	}
}

func TestPackMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, PackMultiplier(PackNormal))
	assert.Equal(t, 2.0, PackMultiplier(PackBooster))
	assert.Equal(t, 3.0, PackMultiplier(PackBoosterPlus))
	assert.Equal(t, 1.0, PackMultiplier("whatever"), "unknown type falls back to 1")
}
