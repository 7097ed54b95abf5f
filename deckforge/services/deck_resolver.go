// Package services holds the shared lookup helpers the command layer leans
// on.
package services

import (
	"context"
	"time"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	lru "github.com/hashicorp/golang-lru"
)

const (
	deckCacheSize   = 1000
	deckCacheExpiry = 5 * time.Minute
)

type cachedDeck struct {
	deck      *models.Deck
	timestamp time.Time
}

// DeckResolver resolves a guild to its assigned deck. Every economy command
// starts here, so results are cached with a short expiry; a reassignment
// shows up after at most one expiry period.
type DeckResolver struct {
	decks repositories.DeckRepository
	cache *lru.Cache
}

func NewDeckResolver(decks repositories.DeckRepository) *DeckResolver {
	cache, _ := lru.New(deckCacheSize)
	return &DeckResolver{
		decks: decks,
		cache: cache,
	}
}

// Resolve returns the deck assigned to the guild, from cache when fresh.
func (r *DeckResolver) Resolve(ctx context.Context, guildID string) (*models.Deck, error) {
	if entry, ok := r.cache.Get(guildID); ok {
		cached := entry.(cachedDeck)
		if time.Since(cached.timestamp) < deckCacheExpiry {
			return cached.deck, nil
		}
		r.cache.Remove(guildID)
	}

	deck, err := r.decks.GetByGuildID(ctx, guildID)
	if err != nil {
		return nil, err
	}
	r.cache.Add(guildID, cachedDeck{deck: deck, timestamp: time.Now()})
	return deck, nil
}

// Invalidate drops the cached assignment, for use right after an admin
// reassigns the guild's deck.
func (r *DeckResolver) Invalidate(guildID string) {
	r.cache.Remove(guildID)
}
