// deckforge-admin is the offline maintenance tool: schema setup, deck
// seeding, balance adjustments and mission-guild listing, the pieces that
// have no slash command surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/deckforge/deckforge/deckforge"
	"github.com/deckforge/deckforge/deckforge/database"
	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/database/repositories"
	"github.com/deckforge/deckforge/deckforge/logger"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

func main() {
	slog.SetDefault(slog.New(logger.NewHandler()))

	var configPath string

	root := &cobra.Command{
		Use:          "deckforge-admin",
		Short:        "DeckForge maintenance commands",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to config")

	root.AddCommand(
		newInitSchemaCmd(&configPath),
		newSeedDeckCmd(&configPath),
		newCreditsCmd(&configPath),
		newMissionGuildsCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context, configPath string) (*database.DB, error) {
	cfg, err := deckforge.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return database.New(ctx, cfg.DB)
}

func newInitSchemaCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create all tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			db, err := openDB(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.InitializeSchema(ctx); err != nil {
				return err
			}
			slog.Info("Schema initialized", slog.String("type", "db"))
			return nil
		},
	}
}

func newSeedDeckCmd(configPath *string) *cobra.Command {
	var guildID string

	cmd := &cobra.Command{
		Use:   "seed-deck",
		Short: "Create a small demo deck, optionally assigned to a guild",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			db, err := openDB(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			return seedDeck(ctx, db.BunDB(), guildID)
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "guild to assign the deck to")
	return cmd
}

func newCreditsCmd(configPath *string) *cobra.Command {
	var userID string
	var amount int64

	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Adjust a player's credit balance (negative amount deducts)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := openDB(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			players := repositories.NewPlayerRepository(db.BunDB())
			if _, err := players.GetOrCreate(ctx, userID); err != nil {
				return err
			}
			switch {
			case amount > 0:
				err = players.AddCredits(ctx, userID, amount)
			case amount < 0:
				err = players.DeductCredits(ctx, userID, -amount)
			}
			if err != nil {
				return err
			}

			balance, err := players.GetBalance(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Printf("player %s balance: %d credits\n", userID, balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "player's Discord ID")
	cmd.Flags().Int64Var(&amount, "amount", 0, "credits to add (negative to deduct)")
	return cmd
}

func newMissionGuildsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mission-guilds",
		Short: "List guilds with missions enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := openDB(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			settings, err := repositories.NewMissionRepository(db.BunDB()).ListEnabledSettings(ctx)
			if err != nil {
				return err
			}
			if len(settings) == 0 {
				fmt.Println("no guilds have missions enabled")
				return nil
			}
			for _, s := range settings {
				last := "never"
				if !s.LastMissionSpawn.IsZero() {
					last = s.LastMissionSpawn.Format(time.RFC3339)
				}
				fmt.Printf("guild %s channel %s last spawn %s\n", s.GuildID, s.MissionChannelID, last)
			}
			return nil
		},
	}
}

// seedDeck creates a playable starter deck: a handful of cards with a
// numeric Thrust field, one merge perk, and a mission template with scaling
// rows for every rarity.
func seedDeck(ctx context.Context, db *bun.DB, guildID string) error {
	deck := &models.Deck{
		Name:                  "Starter Fleet",
		FreePackCooldownHours: 8,
	}
	if _, err := db.NewInsert().Model(deck).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create deck: %w", err)
	}

	seedCards := []struct {
		name   string
		rarity models.Rarity
		thrust string
	}{
		{"Scout Skiff", models.RarityCommon, "400"},
		{"Cargo Hauler", models.RarityCommon, "550"},
		{"Patrol Corvette", models.RarityUncommon, "700"},
		{"Strike Frigate", models.RarityExceptional, "900"},
		{"Line Destroyer", models.RarityRare, "1100"},
		{"Fleet Cruiser", models.RarityEpic, "1400"},
		{"Vanguard Carrier", models.RarityLegendary, "1800"},
		{"Sovereign Dreadnought", models.RarityMythic, "2400"},
	}
	for _, seed := range seedCards {
		card := &models.Card{
			DeckID: deck.ID,
			Name:   seed.name,
			Rarity: seed.rarity,
		}
		if _, err := db.NewInsert().Model(card).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create card %s: %w", seed.name, err)
		}
		field := &models.CardTemplateField{
			CardID:     card.ID,
			FieldName:  "Thrust",
			FieldType:  models.FieldTypeNumber,
			FieldValue: seed.thrust,
		}
		if _, err := db.NewInsert().Model(field).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create field for %s: %w", seed.name, err)
		}
	}

	perk := &models.DeckMergePerk{
		DeckID:            deck.ID,
		PerkName:          "Thrust Boost",
		BaseBoost:         10,
		DiminishingFactor: 0.85,
	}
	if _, err := db.NewInsert().Model(perk).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create merge perk: %w", err)
	}

	template := &models.MissionTemplate{
		DeckID:            deck.ID,
		Name:              "Convoy Escort",
		Description:       "Escort a supply convoy through contested space.",
		RequirementField:  "Thrust",
		MinValueBase:      600,
		RewardBase:        500,
		DurationBaseHours: 6,
		VariancePct:       20,
		IsActive:          true,
	}
	if _, err := db.NewInsert().Model(template).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create mission template: %w", err)
	}

	scalings := map[models.Rarity]struct {
		req, reward, duration, rate float64
	}{
		models.RarityCommon:      {0.8, 0.8, 0.8, 75},
		models.RarityUncommon:    {0.9, 1.0, 0.9, 70},
		models.RarityExceptional: {1.0, 1.3, 1.0, 65},
		models.RarityRare:        {1.2, 1.7, 1.2, 55},
		models.RarityEpic:        {1.4, 2.2, 1.4, 45},
		models.RarityLegendary:   {1.7, 3.0, 1.7, 35},
		models.RarityMythic:      {2.0, 4.5, 2.0, 25},
	}
	for _, rarity := range models.RarityHierarchy {
		s := scalings[rarity]
		row := &models.MissionRarityScaling{
			TemplateID:            template.ID,
			Rarity:                rarity,
			RequirementMultiplier: s.req,
			RewardMultiplier:      s.reward,
			DurationMultiplier:    s.duration,
			SuccessRate:           s.rate,
		}
		if _, err := db.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create scaling for %s: %w", rarity, err)
		}
	}

	if guildID != "" {
		assignment := &models.ServerDeck{GuildID: guildID, DeckID: deck.ID}
		if _, err := db.NewInsert().Model(assignment).Exec(ctx); err != nil {
			return fmt.Errorf("failed to assign deck to guild: %w", err)
		}
	}

	slog.Info("Deck seeded",
		slog.String("type", "db"),
		slog.Int64("deck_id", deck.ID),
		slog.String("name", deck.Name),
		slog.Int("cards", len(seedCards)))
	return nil
}
