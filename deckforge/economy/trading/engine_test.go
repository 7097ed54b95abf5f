package trading

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/economy"
)

// fakeStore is an in-memory stand-in for the trade, card and instance
// repositories, including a settlement that mirrors the store transaction:
// re-verify counts, transfer oldest first, abort whole on shortfall.
type fakeStore struct {
	trades    map[int64]*models.Trade
	items     []*models.TradeItem
	cards     map[int64]*models.Card
	instances map[int64]*models.CardInstance
	nextID    int64
	now       time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trades:    make(map[int64]*models.Trade),
		cards:     make(map[int64]*models.Card),
		instances: make(map[int64]*models.CardInstance),
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addCard(deckID int64, name string, rarity models.Rarity) *models.Card {
	card := &models.Card{ID: f.id(), DeckID: deckID, Name: name, Rarity: rarity, Mergeable: true, MaxMergeLevel: 5}
	f.cards[card.ID] = card
	return card
}

func (f *fakeStore) give(userID string, cardID int64, mergeLevel, count int) {
	for i := 0; i < count; i++ {
		id := f.id()
		f.instances[id] = &models.CardInstance{
			ID:         id,
			UserID:     userID,
			CardID:     cardID,
			MergeLevel: mergeLevel,
			AcquiredAt: f.now.Add(time.Duration(id) * time.Second),
		}
	}
}

// TradeRepository

func (f *fakeStore) DB() *bun.DB { return nil }

func (f *fakeStore) Create(_ context.Context, trade *models.Trade) error {
	trade.ID = f.id()
	f.trades[trade.ID] = trade
	return nil
}

func (f *fakeStore) GetNonTerminalForUser(_ context.Context, userID string) (*models.Trade, error) {
	for _, trade := range f.trades {
		if trade.Involves(userID) && !trade.Status.Terminal() {
			return trade, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id int64, status models.TradeStatus) error {
	f.trades[id].Status = status
	return nil
}

func (f *fakeStore) SetAcceptance(_ context.Context, id int64, initiatorAccepted, responderAccepted bool, status models.TradeStatus) error {
	trade := f.trades[id]
	trade.InitiatorAccepted = initiatorAccepted
	trade.ResponderAccepted = responderAccepted
	trade.Status = status
	return nil
}

func (f *fakeStore) GetItems(_ context.Context, tradeID int64) ([]*models.TradeItem, error) {
	var out []*models.TradeItem
	for _, item := range f.items {
		if item.TradeID == tradeID {
			item.Card = f.cards[item.CardID]
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertItem(_ context.Context, tradeID int64, userID string, cardID int64, mergeLevel, quantity int) error {
	for _, item := range f.items {
		if item.TradeID == tradeID && item.UserID == userID && item.CardID == cardID && item.MergeLevel == mergeLevel {
			item.Quantity += quantity
			return nil
		}
	}
	f.items = append(f.items, &models.TradeItem{
		ID: f.id(), TradeID: tradeID, UserID: userID, CardID: cardID, MergeLevel: mergeLevel, Quantity: quantity,
	})
	return nil
}

func (f *fakeStore) RemoveItemQuantity(_ context.Context, tradeID int64, userID string, cardID int64, mergeLevel, quantity int) error {
	for i, item := range f.items {
		if item.TradeID == tradeID && item.UserID == userID && item.CardID == cardID && item.MergeLevel == mergeLevel {
			if item.Quantity < quantity {
				return economy.Preconditionf("only %d offered, cannot remove %d", item.Quantity, quantity)
			}
			item.Quantity -= quantity
			if item.Quantity == 0 {
				f.items = append(f.items[:i], f.items[i+1:]...)
			}
			return nil
		}
	}
	return economy.NotFoundf("that card is not in your trade pool")
}

func (f *fakeStore) Settle(ctx context.Context, id int64) (*repositories.SettlementSummary, error) {
	trade := f.trades[id]
	if trade.Status != models.TradeAccepted {
		return nil, economy.StateConflictf("trade is %s, both parties must accept before finalizing", trade.Status)
	}
	items, _ := f.GetItems(ctx, id)

	// Verify everything before moving anything.
	for _, item := range items {
		owned, _ := f.CountOwned(ctx, item.UserID, item.CardID, item.MergeLevel)
		if owned < item.Quantity {
			return nil, economy.StaleReferencef("a party no longer owns %d copies of card %d at level %d (has %d)",
				item.Quantity, item.CardID, item.MergeLevel, owned)
		}
	}

	summary := &repositories.SettlementSummary{
		TradeID:     trade.TradeID,
		InitiatorID: trade.InitiatorID,
		ResponderID: trade.ResponderID,
	}
	for _, item := range items {
		oldest, _ := f.GetOldestOwned(ctx, item.UserID, item.CardID, item.MergeLevel, item.Quantity)
		for _, instance := range oldest {
			// Owner and source change; acquired_at stays put, as in the
			// real settlement.
			instance.UserID = trade.Counterparty(item.UserID)
			instance.Source = models.SourceTrade
		}
		if item.UserID == trade.InitiatorID {
			summary.ToResponderCount += item.Quantity
		} else {
			summary.ToInitiatorCount += item.Quantity
		}
	}
	trade.Status = models.TradeCompleted
	trade.FinalizedAt = f.now
	return summary, nil
}

func (f *fakeStore) ExpireOverdue(context.Context) (int64, error) {
	var expired int64
	for _, trade := range f.trades {
		if !trade.Status.Terminal() && !f.now.Before(trade.ExpiresAt) {
			trade.Status = models.TradeExpired
			expired++
		}
	}
	return expired, nil
}

// CardRepository

func (f *fakeStore) GetByID(_ context.Context, id int64) (*models.Card, error) {
	card, ok := f.cards[id]
	if !ok {
		return nil, economy.NotFoundf("card %d not found", id)
	}
	return card, nil
}

func (f *fakeStore) GetByName(_ context.Context, deckID int64, name string) (*models.Card, error) {
	for _, card := range f.cards {
		if card.DeckID == deckID && strings.EqualFold(card.Name, name) {
			return card, nil
		}
	}
	return nil, economy.NotFoundf("no card named %q in this deck", name)
}

func (f *fakeStore) GetAllByDeck(_ context.Context, deckID int64) ([]*models.Card, error) {
	var out []*models.Card
	for _, card := range f.cards {
		if card.DeckID == deckID {
			out = append(out, card)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTemplateFields(context.Context, int64) ([]*models.CardTemplateField, error) {
	return nil, nil
}

func (f *fakeStore) GetNumericField(context.Context, int64, string) (float64, bool, error) {
	return 0, false, nil
}

// CardInstanceRepository

func (f *fakeStore) CreateInstance(_ context.Context, instance *models.CardInstance) error {
	instance.ID = f.id()
	f.instances[instance.ID] = instance
	return nil
}

func (f *fakeStore) CreateBatch(ctx context.Context, instances []*models.CardInstance) error {
	for _, instance := range instances {
		if err := f.CreateInstance(ctx, instance); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) GetInstanceByID(_ context.Context, id int64) (*models.CardInstance, error) {
	instance, ok := f.instances[id]
	if !ok {
		return nil, economy.NotFoundf("card instance %d not found", id)
	}
	return instance, nil
}

func (f *fakeStore) CountOwned(_ context.Context, userID string, cardID int64, mergeLevel int) (int, error) {
	count := 0
	for _, instance := range f.instances {
		if instance.UserID == userID && instance.CardID == cardID && instance.MergeLevel == mergeLevel && !instance.Recycled() {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) GetOldestOwned(_ context.Context, userID string, cardID int64, mergeLevel, limit int) ([]*models.CardInstance, error) {
	var out []*models.CardInstance
	for _, instance := range f.instances {
		if instance.UserID == userID && instance.CardID == cardID && instance.MergeLevel == mergeLevel && !instance.Recycled() {
			out = append(out, instance)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) OwnedSummary(context.Context, string, int64) ([]*repositories.OwnedCard, error) {
	return nil, nil
}

func (f *fakeStore) RecycleOldest(context.Context, string, int64, int, int, int64) (int, error) {
	return 0, nil
}

func (f *fakeStore) ExecuteMerge(context.Context, repositories.MergeExecution) (int64, error) {
	return 0, nil
}

func (f *fakeStore) GetFieldBoosts(context.Context, int64) ([]*models.InstanceFieldBoost, error) {
	return nil, nil
}

func (f *fakeStore) GetPerkHistory(context.Context, int64) ([]*models.CardPerk, error) {
	return nil, nil
}

func (f *fakeStore) HasQualifying(context.Context, string, string, float64) (bool, error) {
	return false, nil
}

func (f *fakeStore) BestQualifying(context.Context, string, string, string, float64) (*repositories.QualifyingInstance, error) {
	return nil, nil
}

func (f *fakeStore) ListQualifying(context.Context, string, string, float64, int) ([]*repositories.QualifyingInstance, error) {
	return nil, nil
}

// instanceRepo adapts fakeStore to the CardInstanceRepository interface,
// whose Create/GetByID names collide with CardRepository's.
type instanceRepo struct{ *fakeStore }

func (r instanceRepo) Create(ctx context.Context, instance *models.CardInstance) error {
	return r.CreateInstance(ctx, instance)
}

func (r instanceRepo) GetByID(ctx context.Context, id int64) (*models.CardInstance, error) {
	return r.GetInstanceByID(ctx, id)
}

func newTestEngine(store *fakeStore) *Engine {
	engine := NewEngine(store, store, instanceRepo{store})
	engine.now = func() time.Time { return store.now }
	return engine
}

var testDeck = &models.Deck{ID: 1, Name: "Test Deck", FreePackCooldownHours: 8}

func TestEngine_SimpleTrade(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	alpha := store.addCard(1, "Alpha", models.RarityRare)
	beta := store.addCard(1, "Beta", models.RarityCommon)
	store.give("alice", alpha.ID, 0, 1)
	store.give("bob", beta.ID, 0, 2)
	engine := newTestEngine(store)

	aliceCopies, err := store.GetOldestOwned(ctx, "alice", alpha.ID, 0, 1)
	require.NoError(t, err)
	acquiredBefore := aliceCopies[0].AcquiredAt

	trade, err := engine.Request(ctx, "guild", "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, models.TradePending, trade.Status)

	_, outcome, err := engine.Accept(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, OutcomeJoined, outcome)

	_, _, err = engine.AddItem(ctx, "alice", testDeck, "Alpha", 0, 1)
	require.NoError(t, err)
	_, _, err = engine.AddItem(ctx, "bob", testDeck, "Beta", 0, 2)
	require.NoError(t, err)

	_, outcome, err = engine.Accept(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, OutcomeReady, outcome)
	_, outcome, err = engine.Accept(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, OutcomeBothReady, outcome)

	summary, err := engine.Finalize(ctx, "alice", testDeck)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ToResponderCount)
	assert.Equal(t, 2, summary.ToInitiatorCount)

	count, _ := store.CountOwned(ctx, "bob", alpha.ID, 0)
	assert.Equal(t, 1, count, "bob should own the Alpha")
	count, _ = store.CountOwned(ctx, "alice", beta.ID, 0)
	assert.Equal(t, 2, count, "alice should own both Betas")
	assert.Equal(t, models.TradeCompleted, store.trades[trade.ID].Status)

	// Transfer changes owner and source only; the acquisition time stays so
	// FIFO ordering holds for the new owner's later trades and recycles.
	bobCopies, err := store.GetOldestOwned(ctx, "bob", alpha.ID, 0, 1)
	require.NoError(t, err)
	assert.True(t, bobCopies[0].AcquiredAt.Equal(acquiredBefore),
		"acquired_at rewritten by settlement: %v != %v", bobCopies[0].AcquiredAt, acquiredBefore)
	assert.Equal(t, models.SourceTrade, bobCopies[0].Source)
}

func TestEngine_PoolMutationClearsReadiness(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	alpha := store.addCard(1, "Alpha", models.RarityRare)
	store.give("alice", alpha.ID, 0, 3)
	engine := newTestEngine(store)

	trade, _ := engine.Request(ctx, "guild", "alice", "bob")
	engine.Accept(ctx, "bob")
	engine.AddItem(ctx, "alice", testDeck, "Alpha", 0, 1)
	engine.Accept(ctx, "alice")
	engine.Accept(ctx, "bob")

	require.Equal(t, models.TradeAccepted, store.trades[trade.ID].Status)

	_, _, err := engine.AddItem(ctx, "alice", testDeck, "Alpha", 0, 1)
	require.NoError(t, err)

	got := store.trades[trade.ID]
	assert.Equal(t, models.TradeActive, got.Status)
	assert.False(t, got.InitiatorAccepted)
	assert.False(t, got.ResponderAccepted)

	_, err = engine.Finalize(ctx, "alice", testDeck)
	assert.ErrorIs(t, err, economy.ErrStateConflict)
}

func TestEngine_FinalizeShortfallAborts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	alpha := store.addCard(1, "Alpha", models.RarityRare)
	beta := store.addCard(1, "Beta", models.RarityCommon)
	store.give("alice", alpha.ID, 0, 2)
	store.give("bob", beta.ID, 0, 1)
	engine := newTestEngine(store)

	engine.Request(ctx, "guild", "alice", "bob")
	engine.Accept(ctx, "bob")
	engine.AddItem(ctx, "alice", testDeck, "Alpha", 0, 2)
	engine.AddItem(ctx, "bob", testDeck, "Beta", 0, 1)
	engine.Accept(ctx, "alice")
	engine.Accept(ctx, "bob")

	// Alice loses a pooled copy between accept and finalize.
	for _, instance := range store.instances {
		if instance.UserID == "alice" && instance.CardID == alpha.ID {
			instance.RecycledAt = store.now
			break
		}
	}

	_, err := engine.Finalize(ctx, "bob", testDeck)
	require.ErrorIs(t, err, economy.ErrStaleReference)

	// Nothing moved.
	count, _ := store.CountOwned(ctx, "alice", beta.ID, 0)
	assert.Equal(t, 0, count)
	count, _ = store.CountOwned(ctx, "bob", beta.ID, 0)
	assert.Equal(t, 1, count)
}

func TestEngine_AddItemOwnershipGuard(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	alpha := store.addCard(1, "Alpha", models.RarityRare)
	store.give("alice", alpha.ID, 0, 2)
	engine := newTestEngine(store)

	engine.Request(ctx, "guild", "alice", "bob")
	engine.Accept(ctx, "bob")

	_, _, err := engine.AddItem(ctx, "alice", testDeck, "Alpha", 0, 2)
	require.NoError(t, err)
	_, _, err = engine.AddItem(ctx, "alice", testDeck, "Alpha", 0, 1)
	assert.ErrorIs(t, err, economy.ErrPrecondition)
}

func TestEngine_RequestGuards(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	_, err := engine.Request(ctx, "guild", "alice", "alice")
	assert.ErrorIs(t, err, economy.ErrPrecondition)

	_, err = engine.Request(ctx, "guild", "alice", "bob")
	require.NoError(t, err)
	_, err = engine.Request(ctx, "guild", "alice", "carol")
	assert.ErrorIs(t, err, economy.ErrStateConflict)
	_, err = engine.Request(ctx, "guild", "carol", "bob")
	assert.ErrorIs(t, err, economy.ErrStateConflict)
}

func TestEngine_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	trade, err := engine.Request(ctx, "guild", "alice", "bob")
	require.NoError(t, err)

	store.now = store.now.Add(TradeTimeout + time.Minute)

	live, err := engine.LiveTradeFor(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, live, "overdue trade should be gone after lazy expiry")
	assert.Equal(t, models.TradeExpired, store.trades[trade.ID].Status)

	// An expired trade frees both parties for a new request.
	_, err = engine.Request(ctx, "guild", "alice", "bob")
	assert.NoError(t, err)
}

func TestEngine_SweepExpired(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	overdue, err := engine.Request(ctx, "guild", "alice", "bob")
	require.NoError(t, err)

	store.now = store.now.Add(TradeTimeout + time.Minute)
	fresh, err := engine.Request(ctx, "guild", "carol", "dave")
	require.NoError(t, err)

	// Nobody touched alice's trade again, so only the sweep can expire it.
	count, err := engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, models.TradeExpired, store.trades[overdue.ID].Status)
	assert.Equal(t, models.TradePending, store.trades[fresh.ID].Status)
}

func TestEngine_CancelFromAnyLiveState(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	trade, _ := engine.Request(ctx, "guild", "alice", "bob")
	cancelled, err := engine.Cancel(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, trade.ID, cancelled.ID)
	assert.Equal(t, models.TradeCancelled, store.trades[trade.ID].Status)

	_, err = engine.Cancel(ctx, "alice")
	assert.ErrorIs(t, err, economy.ErrNotFound)
}
