// Package merge implements the card merge progression: cost scaling,
// diminishing-returns perk boosts, eligibility checks and merge execution.
package merge

import (
	"math"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/economy"
)

const (
	// CostScalingFactor is r in Cost(L) = C0 * r^L.
	CostScalingFactor = 1.25

	// DefaultDiminishingFactor is d in Boost(L) = P0 * d^(L-1) when a perk
	// does not configure its own.
	DefaultDiminishingFactor = 0.85
)

// Cost returns the credit cost to merge a card from currentLevel to
// currentLevel+1.
func Cost(rarity models.Rarity, currentLevel int) int64 {
	base, ok := economy.MergeBaseCosts[rarity]
	if !ok {
		base = economy.MergeBaseCosts[models.RarityCommon]
	}
	return int64(float64(base) * math.Pow(CostScalingFactor, float64(currentLevel)))
}

// PerkBoost returns the boost contributed by reaching the given level.
// Level 1 contributes the full base boost; each further level shrinks by
// the diminishing factor.
func PerkBoost(baseBoost float64, level int, diminishingFactor float64) float64 {
	if level <= 0 {
		return 0
	}
	return round2(baseBoost * math.Pow(diminishingFactor, float64(level-1)))
}

// CumulativeBoost returns the total boost accumulated from level 1 through
// targetLevel.
func CumulativeBoost(baseBoost float64, targetLevel int, diminishingFactor float64) float64 {
	total := 0.0
	for level := 1; level <= targetLevel; level++ {
		total += PerkBoost(baseBoost, level, diminishingFactor)
	}
	return round2(total)
}

// RequiredBaseCards returns how many level-0 instances it takes to build one
// instance at targetLevel. Each merge consumes two same-level instances.
func RequiredBaseCards(targetLevel int) int {
	return 1 << targetLevel
}

// RecycleValue returns the credit value of recycling one instance at the
// given merge level. Merged instances follow the merge cost curve.
func RecycleValue(rarity models.Rarity, mergeLevel int) int64 {
	base, ok := economy.RecycleValues[rarity]
	if !ok {
		base = economy.RecycleValues[models.RarityCommon]
	}
	return int64(float64(base) * math.Pow(CostScalingFactor, float64(mergeLevel)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
