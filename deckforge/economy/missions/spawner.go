package missions

import (
	"math/rand"

	"github.com/deckforge/deckforge/deckforge/database/models"
)

// RarityWeights are the base mission rarity weights before the activity
// boost.
var RarityWeights = map[models.Rarity]int{
	models.RarityCommon:      35,
	models.RarityUncommon:    25,
	models.RarityExceptional: 18,
	models.RarityRare:        12,
	models.RarityEpic:        6,
	models.RarityLegendary:   3,
	models.RarityMythic:      1,
}

// boostedRarities are the tiers the activity bonus scales up.
var boostedRarities = map[models.Rarity]bool{
	models.RarityEpic:      true,
	models.RarityLegendary: true,
	models.RarityMythic:    true,
}

// ActivityBonus maps window message volume onto the Epic+ weight scale,
// capped at doubling once the window hits 50 messages.
func ActivityBonus(messages int) float64 {
	bonus := float64(messages) / 50
	if bonus > 1 {
		bonus = 1
	}
	return bonus
}

// BoostedWeights applies the activity bonus to the Epic and above weights.
func BoostedWeights(messages int) map[models.Rarity]int {
	bonus := ActivityBonus(messages)
	out := make(map[models.Rarity]int, len(RarityWeights))
	for rarity, weight := range RarityWeights {
		if boostedRarities[rarity] {
			out[rarity] = int(float64(weight) * (1 + bonus))
		} else {
			out[rarity] = weight
		}
	}
	return out
}

// RollRarity draws a mission rarity from the weighted table.
func RollRarity(weights map[models.Rarity]int, rng *rand.Rand) models.Rarity {
	total := 0
	for _, weight := range weights {
		total += weight
	}
	roll := rng.Float64() * float64(total)
	cumulative := 0.0
	for _, rarity := range models.RarityHierarchy {
		cumulative += float64(weights[rarity])
		if roll <= cumulative {
			return rarity
		}
	}
	return models.RarityCommon
}

// Rolls are the variance-adjusted parameters of one spawned mission.
type Rolls struct {
	Requirement   float64
	Reward        int64
	DurationHours int
}

// RollValues rolls the requirement, reward and duration for a template at a
// rarity: each is the scaled base plus a uniform draw in ±variance of it,
// floored at 1.
func RollValues(template *models.MissionTemplate, scaling *models.MissionRarityScaling, rng *rand.Rand) Rolls {
	variance := template.VariancePct / 100

	requirement := template.MinValueBase * scaling.RequirementMultiplier
	requirement += requirement * uniform(rng, -variance, variance)
	if requirement < 1 {
		requirement = 1
	}

	reward := float64(template.RewardBase) * scaling.RewardMultiplier
	reward += reward * uniform(rng, -variance, variance)
	rewardRolled := int64(reward)
	if rewardRolled < 1 {
		rewardRolled = 1
	}

	duration := float64(template.DurationBaseHours) * scaling.DurationMultiplier
	duration += duration * uniform(rng, -variance, variance)
	durationRolled := int(duration)
	if durationRolled < 1 {
		durationRolled = 1
	}

	return Rolls{Requirement: requirement, Reward: rewardRolled, DurationHours: durationRolled}
}

// SuccessRate combines the card rarity's base rate with the merge bonus of
// 5 points per level, capped at 99.
func SuccessRate(baseRate float64, mergeLevel int) float64 {
	rate := baseRate + float64(mergeLevel*5)
	if rate > 99 {
		rate = 99
	}
	return rate
}

// SuccessBonus is the extra payout for a merged card: 5% of the reward per
// merge level.
func SuccessBonus(reward int64, mergeLevel int) int64 {
	return int64(float64(reward) * float64(mergeLevel) * 0.05)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
