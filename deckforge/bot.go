package deckforge

import (
	"context"
	"log/slog"
	"time"

	"github.com/deckforge/deckforge/deckforge/database"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/economy/merge"
	"github.com/deckforge/deckforge/deckforge/economy/missions"
	"github.com/deckforge/deckforge/deckforge/economy/packs"
	"github.com/deckforge/deckforge/deckforge/economy/trading"
	"github.com/deckforge/deckforge/deckforge/services"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
	}
}

type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string
	DB        *database.DB

	PlayerRepository       repositories.PlayerRepository
	DeckRepository         repositories.DeckRepository
	CardRepository         repositories.CardRepository
	CardInstanceRepository repositories.CardInstanceRepository
	TradeRepository        repositories.TradeRepository
	MissionRepository      repositories.MissionRepository
	PackRepository         repositories.PackRepository

	DeckResolver    *services.DeckResolver
	TradeEngine     *trading.Engine
	MergeService    *merge.Service
	PackService     *packs.Service
	MissionEngine   *missions.Engine
	ActivityTracker missions.ActivityTracker
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(
			gateway.IntentGuilds,
			gateway.IntentGuildMessages,
			gateway.IntentGuildMessageReactions,
		)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	return nil
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("DeckForge is now ready",
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("the card tables"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}
