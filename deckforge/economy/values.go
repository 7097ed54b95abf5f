package economy

import "github.com/deckforge/deckforge/deckforge/database/models"

// MergeBaseCosts are the per-rarity base merge costs (credits), the C0 in
// Cost(L) = C0 * r^L.
var MergeBaseCosts = map[models.Rarity]int64{
	models.RarityCommon:      10,
	models.RarityUncommon:    25,
	models.RarityExceptional: 35,
	models.RarityRare:        50,
	models.RarityEpic:        100,
	models.RarityLegendary:   250,
	models.RarityMythic:      500,
}

// RecycleValues are the per-rarity credit values awarded when recycling a
// level-0 instance. Merged instances scale by 1.25^level, mirroring the
// merge cost curve so recycling returns what merging cost.
var RecycleValues = map[models.Rarity]int64{
	models.RarityCommon:      10,
	models.RarityUncommon:    25,
	models.RarityExceptional: 50,
	models.RarityRare:        100,
	models.RarityEpic:        250,
	models.RarityLegendary:   500,
	models.RarityMythic:      1000,
}
