package merge

import (
	"context"
	"log/slog"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/economy"
)

// Result reports a completed merge.
type Result struct {
	SurvivorID      int64
	Card            *models.Card
	NewLevel        int
	Cost            int64
	PerkName        string
	PerkValue       float64
	CumulativeBoost float64
	FieldName       string
	FieldBoosted    float64
}

// Service validates merge eligibility and drives execution.
type Service struct {
	decks     repositories.DeckRepository
	cards     repositories.CardRepository
	instances repositories.CardInstanceRepository
}

func NewService(
	decks repositories.DeckRepository,
	cards repositories.CardRepository,
	instances repositories.CardInstanceRepository,
) *Service {
	return &Service{decks: decks, cards: cards, instances: instances}
}

// Execute merges two copies of a card at currentLevel into one at the next
// level. The first merge locks the chosen perk; later merges must continue
// the locked one. All checks re-run under locks inside the store transaction.
func (s *Service) Execute(ctx context.Context, userID string, deck *models.Deck, cardName string, currentLevel int, perkName string) (*Result, error) {
	card, err := s.cards.GetByName(ctx, deck.ID, cardName)
	if err != nil {
		return nil, err
	}
	if !card.Mergeable {
		return nil, economy.Preconditionf("%s cannot be merged", card.Name)
	}
	if currentLevel < 0 {
		return nil, economy.Preconditionf("merge level cannot be negative")
	}
	if currentLevel >= card.MaxMergeLevel {
		return nil, economy.Preconditionf("%s is capped at merge level %d", card.Name, card.MaxMergeLevel)
	}

	pair, err := s.instances.GetOldestOwned(ctx, userID, card.ID, currentLevel, 2)
	if err != nil {
		return nil, err
	}
	if len(pair) < 2 {
		return nil, economy.Preconditionf("you need two copies of %s at level %d, you have %d", card.Name, currentLevel, len(pair))
	}

	if currentLevel > 0 {
		locked := pair[0].LockedPerk
		if perkName == "" {
			perkName = locked
		}
		if perkName != locked {
			return nil, economy.Preconditionf("%s is locked to the %s perk", card.Name, locked)
		}
		if pair[1].LockedPerk != locked {
			return nil, economy.Preconditionf("your two oldest copies carry different perks")
		}
	} else if perkName == "" {
		return nil, economy.Preconditionf("pick a perk for the first merge")
	}

	perk, err := s.decks.GetMergePerk(ctx, deck.ID, perkName)
	if err != nil {
		return nil, err
	}

	newLevel := currentLevel + 1
	cost := Cost(card.Rarity, currentLevel)
	perkValue := PerkBoost(perk.BaseBoost, newLevel, perk.DiminishingFactor)
	cumulative := CumulativeBoost(perk.BaseBoost, newLevel, perk.DiminishingFactor)

	exec := repositories.MergeExecution{
		UserID:    userID,
		CardID:    card.ID,
		FromLevel: currentLevel,
		Cost:      cost,
		PerkName:  perk.PerkName,
		PerkValue: perkValue,
	}

	base, ok, err := s.cards.GetNumericField(ctx, card.ID, perk.PerkName)
	if err != nil {
		return nil, err
	}
	if ok {
		exec.FieldName = perk.PerkName
		exec.FieldBase = base
		exec.FieldBoosted = round2(base * (1 + cumulative/100))
	} else {
		slog.Warn("Perk has no matching numeric field, boost recorded without override",
			slog.String("type", "cmd"),
			slog.Int64("card_id", card.ID),
			slog.String("perk", perk.PerkName))
	}

	survivorID, err := s.instances.ExecuteMerge(ctx, exec)
	if err != nil {
		return nil, err
	}

	return &Result{
		SurvivorID:      survivorID,
		Card:            card,
		NewLevel:        newLevel,
		Cost:            cost,
		PerkName:        perk.PerkName,
		PerkValue:       perkValue,
		CumulativeBoost: cumulative,
		FieldName:       exec.FieldName,
		FieldBoosted:    exec.FieldBoosted,
	}, nil
}
