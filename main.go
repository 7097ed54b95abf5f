package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deckforge/deckforge/deckforge"
	"github.com/deckforge/deckforge/deckforge/commands"
	"github.com/deckforge/deckforge/deckforge/database"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/economy/merge"
	"github.com/deckforge/deckforge/deckforge/economy/missions"
	"github.com/deckforge/deckforge/deckforge/economy/packs"
	"github.com/deckforge/deckforge/deckforge/economy/trading"
	"github.com/deckforge/deckforge/deckforge/handlers"
	"github.com/deckforge/deckforge/deckforge/logger"
	"github.com/deckforge/deckforge/deckforge/services"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(logger.NewHandler()))

	slog.Info("Starting DeckForge",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := deckforge.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema", slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	b := deckforge.New(*cfg, version, commit)
	b.DB = db

	b.PlayerRepository = repositories.NewPlayerRepository(db.BunDB())
	b.DeckRepository = repositories.NewDeckRepository(db.BunDB())
	b.CardRepository = repositories.NewCardRepository(db.BunDB())
	b.CardInstanceRepository = repositories.NewCardInstanceRepository(db.BunDB())
	b.TradeRepository = repositories.NewTradeRepository(db.BunDB())
	b.MissionRepository = repositories.NewMissionRepository(db.BunDB())
	b.PackRepository = repositories.NewPackRepository(db.BunDB())

	b.DeckResolver = services.NewDeckResolver(b.DeckRepository)
	b.TradeEngine = trading.NewEngine(b.TradeRepository, b.CardRepository, b.CardInstanceRepository)
	b.MergeService = merge.NewService(b.DeckRepository, b.CardRepository, b.CardInstanceRepository)
	b.PackService = packs.NewService(b.DeckRepository, b.CardRepository, b.CardInstanceRepository, b.PlayerRepository, b.PackRepository)

	b.ActivityTracker = missions.NewActivityTracker()
	missionCfg := missions.DefaultConfig()
	if cfg.Missions.MessageThreshold > 0 {
		missionCfg.MessageThreshold = cfg.Missions.MessageThreshold
	}
	if cfg.Missions.AuthorThreshold > 0 {
		missionCfg.AuthorThreshold = cfg.Missions.AuthorThreshold
	}
	notifier := handlers.NewMissionNotifier()
	b.MissionEngine = missions.NewEngine(
		b.MissionRepository,
		b.CardInstanceRepository,
		b.PlayerRepository,
		b.DeckRepository,
		b.ActivityTracker,
		notifier,
		missionCfg,
	)

	h := handler.New()

	h.Command("/balance", handlers.WrapWithLogging("balance", commands.BalanceHandler(b)))

	h.Command("/drop", handlers.WrapWithLogging("drop", commands.DropHandler(b)))
	h.Command("/mypacks", handlers.WrapWithLogging("mypacks", commands.MyPacksHandler(b)))
	h.Command("/claimfreepack", handlers.WrapWithLogging("claimfreepack", commands.ClaimFreePackHandler(b)))
	h.Command("/viewdroprates", handlers.WrapWithLogging("viewdroprates", commands.ViewDropRatesHandler(b)))

	h.Command("/mycards", handlers.WrapWithLogging("mycards", commands.MyCardsHandler(b)))
	h.Command("/recycle", handlers.WrapWithLogging("recycle", commands.RecycleHandler(b)))
	h.Autocomplete("/recycle", commands.OwnedCardAutocomplete(b))
	h.Command("/cardinfo", handlers.WrapWithLogging("cardinfo", commands.CardInfoHandler(b)))
	h.Autocomplete("/cardinfo", commands.DeckCardAutocomplete(b))

	h.Command("/merge", handlers.WrapWithLogging("merge", commands.MergeHandler(b)))
	h.Autocomplete("/merge", commands.MergeAutocomplete(b))

	h.Command("/requesttrade", handlers.WrapWithLogging("requesttrade", commands.RequestTradeHandler(b)))
	h.Command("/accepttrade", handlers.WrapWithLogging("accepttrade", commands.AcceptTradeHandler(b)))
	h.Command("/tradeadd", handlers.WrapWithLogging("tradeadd", commands.TradeAddHandler(b)))
	h.Autocomplete("/tradeadd", commands.OwnedCardAutocomplete(b))
	h.Command("/traderemove", handlers.WrapWithLogging("traderemove", commands.TradeRemoveHandler(b)))
	h.Autocomplete("/traderemove", commands.TradeRemoveAutocomplete(b))
	h.Command("/finalize", handlers.WrapWithLogging("finalize", commands.FinalizeHandler(b)))
	h.Command("/canceltrade", handlers.WrapWithLogging("canceltrade", commands.CancelTradeHandler(b)))

	h.Command("/startmission", handlers.WrapWithLogging("startmission", commands.StartMissionHandler(b)))
	h.Autocomplete("/startmission", commands.QualifyingCardAutocomplete(b))
	h.Command("/mymissions", handlers.WrapWithLogging("mymissions", commands.MyMissionsHandler(b)))
	h.Command("/missionconfig", handlers.WrapWithLogging("missionconfig", commands.MissionConfigHandler(b)))

	if err = b.SetupBot(h,
		bot.NewListenerFunc(b.OnReady),
		handlers.ActivityListener(b.ActivityTracker),
		handlers.MissionReactionListener(b.MissionEngine),
	); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}
	notifier.SetClient(b.Client)

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err))
		}
	}

	scheduler := missions.NewScheduler(b.MissionEngine, b.TradeEngine)
	scheduler.Start()
	defer scheduler.Shutdown()

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = b.Client.OpenGateway(ctx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down bot...")
}
