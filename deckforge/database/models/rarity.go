package models

// Rarity is the 7-tier card rarity hierarchy, ordered Common < Mythic.
type Rarity string

const (
	RarityCommon      Rarity = "Common"
	RarityUncommon    Rarity = "Uncommon"
	RarityExceptional Rarity = "Exceptional"
	RarityRare        Rarity = "Rare"
	RarityEpic        Rarity = "Epic"
	RarityLegendary   Rarity = "Legendary"
	RarityMythic      Rarity = "Mythic"
)

// RarityHierarchy lists all rarities in ascending order.
var RarityHierarchy = []Rarity{
	RarityCommon,
	RarityUncommon,
	RarityExceptional,
	RarityRare,
	RarityEpic,
	RarityLegendary,
	RarityMythic,
}

var rarityOrder = func() map[Rarity]int {
	m := make(map[Rarity]int, len(RarityHierarchy))
	for i, r := range RarityHierarchy {
		m[r] = i
	}
	return m
}()

// Order returns the sort key of the rarity, -1 for unknown values.
func (r Rarity) Order() int {
	if i, ok := rarityOrder[r]; ok {
		return i
	}
	return -1
}

// Valid reports whether r is one of the known tiers.
func (r Rarity) Valid() bool {
	_, ok := rarityOrder[r]
	return ok
}

func (r Rarity) String() string {
	return string(r)
}
