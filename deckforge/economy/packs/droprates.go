// Package packs implements the pack economy: weighted rarity drops with
// per-deck rate overrides, pack modifiers, free pack claims and recycling.
package packs

import (
	"math/rand"
	"strings"

	"github.com/deckforge/deckforge/deckforge/database/models"
)

// Pack types.
const (
	PackNormal      = "Normal Pack"
	PackBooster     = "Booster Pack"
	PackBoosterPlus = "Booster Pack+"
)

const (
	CardsPerPack    = 2
	MaxPacksPerOpen = 10
	InventoryCap    = 30
)

// DefaultDropRates are the percentage weights applied when a deck carries no
// rate overrides. They sum to 100.
var DefaultDropRates = map[models.Rarity]float64{
	models.RarityCommon:      40,
	models.RarityUncommon:    25,
	models.RarityExceptional: 15,
	models.RarityRare:        10,
	models.RarityEpic:        6,
	models.RarityLegendary:   3,
	models.RarityMythic:      1,
}

// higherRarities are the tiers pack modifiers scale up.
var higherRarities = map[models.Rarity]bool{
	models.RarityEpic:      true,
	models.RarityLegendary: true,
	models.RarityMythic:    true,
}

// PackMultiplier returns the higher-rarity weight multiplier for a pack
// type. Unknown types behave like a Normal Pack.
func PackMultiplier(packType string) float64 {
	switch packType {
	case PackBooster:
		return 2
	case PackBoosterPlus:
		return 3
	}
	return 1
}

// ValidPackType reports whether the pack type exists.
func ValidPackType(packType string) bool {
	switch packType {
	case PackNormal, PackBooster, PackBoosterPlus:
		return true
	}
	return false
}

// NormalizePackType maps loose user input onto a canonical pack type.
func NormalizePackType(input string) string {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "normal", "normal pack":
		return PackNormal
	case "booster", "booster pack":
		return PackBooster
	case "booster+", "booster +", "booster pack+", "booster pack +":
		return PackBoosterPlus
	}
	return strings.TrimSpace(input)
}

// NormalizeRates rescales rates so they sum to 100. A zero table falls back
// to the defaults.
func NormalizeRates(rates map[models.Rarity]float64) map[models.Rarity]float64 {
	total := 0.0
	for _, rate := range rates {
		total += rate
	}
	if total == 0 {
		return CopyRates(DefaultDropRates)
	}
	out := make(map[models.Rarity]float64, len(rates))
	for rarity, rate := range rates {
		out[rarity] = rate / total * 100
	}
	return out
}

// ApplyPackModifier scales the Epic and above weights by the pack's
// multiplier, then renormalizes to 100.
func ApplyPackModifier(baseRates map[models.Rarity]float64, packType string) map[models.Rarity]float64 {
	multiplier := PackMultiplier(packType)
	modified := make(map[models.Rarity]float64, len(baseRates))
	for rarity, rate := range baseRates {
		if higherRarities[rarity] {
			modified[rarity] = rate * multiplier
		} else {
			modified[rarity] = rate
		}
	}
	return NormalizeRates(modified)
}

// SelectRarity draws one rarity from the weighted table. Iteration follows
// the rarity hierarchy so the draw is deterministic for a given rng state.
func SelectRarity(rates map[models.Rarity]float64, rng *rand.Rand) models.Rarity {
	normalized := NormalizeRates(rates)
	roll := rng.Float64() * 100
	cumulative := 0.0
	for _, rarity := range models.RarityHierarchy {
		cumulative += normalized[rarity]
		if roll < cumulative {
			return rarity
		}
	}
	return models.RarityHierarchy[len(models.RarityHierarchy)-1]
}

// CopyRates returns a mutable copy of a rate table.
func CopyRates(rates map[models.Rarity]float64) map[models.Rarity]float64 {
	out := make(map[models.Rarity]float64, len(rates))
	for rarity, rate := range rates {
		out[rarity] = rate
	}
	return out
}
