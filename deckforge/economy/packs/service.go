package packs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/economy"
	"github.com/deckforge/deckforge/deckforge/economy/merge"
)

// Service runs pack opening, free claims and recycling against the store.
type Service struct {
	decks     repositories.DeckRepository
	cards     repositories.CardRepository
	instances repositories.CardInstanceRepository
	players   repositories.PlayerRepository
	packs     repositories.PackRepository
	rng       *rand.Rand
}

func NewService(
	decks repositories.DeckRepository,
	cards repositories.CardRepository,
	instances repositories.CardInstanceRepository,
	players repositories.PlayerRepository,
	packs repositories.PackRepository,
) *Service {
	return &Service{
		decks:     decks,
		cards:     cards,
		instances: instances,
		players:   players,
		packs:     packs,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DeckDropRates returns the deck's effective base rate table: its overrides
// when a full set exists, the defaults otherwise.
func (s *Service) DeckDropRates(ctx context.Context, deckID int64) (map[models.Rarity]float64, error) {
	overrides, err := s.decks.GetDropRates(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if len(overrides) == 0 {
		return CopyRates(DefaultDropRates), nil
	}
	for _, rarity := range models.RarityHierarchy {
		if _, ok := overrides[rarity]; !ok {
			return CopyRates(DefaultDropRates), nil
		}
	}
	return overrides, nil
}

// Open consumes packs and draws cards: two per pack, rarity rolled from the
// deck's rates under the pack modifier, then a uniform card of that rarity.
// A rarity with no cards in the deck falls back to a random populated one.
func (s *Service) Open(ctx context.Context, userID string, deck *models.Deck, packType string, amount int) ([]*models.Card, error) {
	if amount < 1 || amount > MaxPacksPerOpen {
		return nil, economy.Preconditionf("you can open 1-%d packs at a time", MaxPacksPerOpen)
	}
	packType = NormalizePackType(packType)
	if !ValidPackType(packType) {
		return nil, economy.Preconditionf("unknown pack type %q", packType)
	}

	if _, err := s.players.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.packs.ConsumePacks(ctx, userID, packType, amount); err != nil {
		return nil, err
	}

	allCards, err := s.cards.GetAllByDeck(ctx, deck.ID)
	if err != nil {
		return nil, err
	}
	if len(allCards) == 0 {
		// Refund, the deck is empty.
		if rerr := s.packs.AddPacks(ctx, userID, packType, amount, InventoryCap); rerr != nil {
			slog.Error("Failed to refund packs",
				slog.String("type", "sys"),
				slog.String("user_id", userID),
				slog.Any("error", rerr))
		}
		return nil, economy.Unavailablef("the %s deck has no cards yet", deck.Name)
	}

	byRarity := make(map[models.Rarity][]*models.Card)
	var populated []models.Rarity
	for _, card := range allCards {
		if len(byRarity[card.Rarity]) == 0 {
			populated = append(populated, card.Rarity)
		}
		byRarity[card.Rarity] = append(byRarity[card.Rarity], card)
	}

	baseRates, err := s.DeckDropRates(ctx, deck.ID)
	if err != nil {
		return nil, err
	}
	rates := ApplyPackModifier(baseRates, packType)

	drawn := make([]*models.Card, 0, amount*CardsPerPack)
	instances := make([]*models.CardInstance, 0, amount*CardsPerPack)
	for i := 0; i < amount*CardsPerPack; i++ {
		rarity := SelectRarity(rates, s.rng)
		pool := byRarity[rarity]
		if len(pool) == 0 {
			pool = byRarity[populated[s.rng.Intn(len(populated))]]
		}
		card := pool[s.rng.Intn(len(pool))]
		drawn = append(drawn, card)
		instances = append(instances, &models.CardInstance{
			UserID: userID,
			CardID: card.ID,
			Source: models.SourcePack,
		})
	}
	if err := s.instances.CreateBatch(ctx, instances); err != nil {
		return nil, err
	}

	slog.Info("Packs opened",
		slog.String("type", "cmd"),
		slog.String("user_id", userID),
		slog.String("pack_type", packType),
		slog.Int("amount", amount),
		slog.Int("cards", len(drawn)))
	return drawn, nil
}

// ClaimFreePack grants one free Normal Pack on the deck's cooldown. The
// player row is created lazily on the first claim.
func (s *Service) ClaimFreePack(ctx context.Context, userID string, deck *models.Deck) (time.Time, error) {
	player, err := s.players.GetOrCreate(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}

	cooldown := time.Duration(deck.FreePackCooldownHours) * time.Hour
	now := time.Now()
	if !player.LastFreeClaim.IsZero() {
		if next := player.LastFreeClaim.Add(cooldown); now.Before(next) {
			return next, economy.Preconditionf("your next free pack unlocks in %s", formatRemaining(next.Sub(now)))
		}
	}

	if err := s.packs.AddPacks(ctx, userID, PackNormal, 1, InventoryCap); err != nil {
		return time.Time{}, err
	}
	if err := s.players.SetLastFreeClaim(ctx, userID, now); err != nil {
		return time.Time{}, err
	}

	slog.Info("Free pack claimed",
		slog.String("type", "cmd"),
		slog.String("user_id", userID),
		slog.Int64("deck_id", deck.ID))
	return now.Add(cooldown), nil
}

// Recycle soft-deletes the player's N oldest copies of a card at a merge
// level and credits base*1.25^level each. Already-recycled copies never
// match again, so a retried command cannot double-pay.
func (s *Service) Recycle(ctx context.Context, userID string, deckID int64, cardName string, mergeLevel, amount int) (int64, error) {
	if amount < 1 {
		return 0, economy.Preconditionf("amount must be at least 1")
	}
	card, err := s.cards.GetByName(ctx, deckID, cardName)
	if err != nil {
		return 0, err
	}

	if _, err := s.players.GetOrCreate(ctx, userID); err != nil {
		return 0, err
	}
	perCard := merge.RecycleValue(card.Rarity, mergeLevel)
	recycled, err := s.instances.RecycleOldest(ctx, userID, card.ID, mergeLevel, amount, perCard)
	if err != nil {
		return 0, err
	}
	return perCard * int64(recycled), nil
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
