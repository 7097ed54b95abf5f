package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/deckforge/deckforge/deckforge"
	"github.com/deckforge/deckforge/deckforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Balance = discord.SlashCommandCreate{
	Name:        "balance",
	Description: "💰 View your credit balance",
}

func BalanceHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		player, err := b.PlayerRepository.GetOrCreate(ctx, e.User().ID.String())
		if err != nil {
			return replyError(e, err)
		}

		packCount, err := b.PackRepository.TotalPacks(ctx, player.DiscordID)
		if err != nil {
			return replyError(e, err)
		}

		now := time.Now()
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "💰 Balance",
				Description: fmt.Sprintf("**Credits:** %s\n**Unopened packs:** %d",
					utils.FormatNumber(player.Credits), packCount),
				Color: 0x10B981,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Requested by %s", e.User().Username),
				},
				Timestamp: &now,
			}},
		})
	}
}
