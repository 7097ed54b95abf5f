package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/deckforge/deckforge/deckforge/economy"
	"github.com/deckforge/deckforge/deckforge/economy/missions"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

const missionClaimEmoji = "✅"

// MissionReactionListener claims a posted mission when a player reacts with
// the claim emoji. Claim failures are reported privately so the mission
// stays open for everyone else without channel noise.
func MissionReactionListener(engine *missions.Engine) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildMessageReactionAdd) {
		if e.Member.User.Bot {
			return
		}
		if e.Emoji.Name == nil || *e.Emoji.Name != missionClaimEmoji {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := engine.AcceptFromReaction(ctx, e.MessageID.String(), e.UserID.String())
		if err == nil {
			return
		}
		dmUser(e.Client(), e.UserID.String(), "❌ Couldn't claim the mission: "+economy.UserMessage(err))
	})
}

func dmUser(client bot.Client, userID, content string) {
	id, err := snowflake.Parse(userID)
	if err != nil {
		return
	}
	channel, err := client.Rest().CreateDMChannel(id)
	if err != nil {
		slog.Warn("Failed to open DM channel",
			slog.String("type", "sys"),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}
	if _, err := client.Rest().CreateMessage(channel.ID(), discord.MessageCreate{Content: content}); err != nil {
		slog.Warn("Failed to send DM",
			slog.String("type", "sys"),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}
