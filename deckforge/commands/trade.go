package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deckforge/deckforge/deckforge"
	"github.com/deckforge/deckforge/deckforge/economy"
	"github.com/deckforge/deckforge/deckforge/economy/trading"
	"github.com/deckforge/deckforge/deckforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/snowflake/v2"
)

var RequestTrade = discord.SlashCommandCreate{
	Name:        "requesttrade",
	Description: "🤝 Invite another player to trade",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "player",
			Description: "The player you want to trade with",
			Required:    true,
		},
	},
}

var AcceptTrade = discord.SlashCommandCreate{
	Name:        "accepttrade",
	Description: "✅ Join a trade request, or flag the current pool as final",
}

var TradeAdd = discord.SlashCommandCreate{
	Name:        "tradeadd",
	Description: "➕ Add cards to your side of the trade",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "card",
			Description:  "The card to offer",
			Required:     true,
			Autocomplete: true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "merge_level",
			Description: "Merge level of the copies (default 0)",
			Required:    false,
			MinValue:    intPtr(0),
		},
		discord.ApplicationCommandOptionInt{
			Name:        "quantity",
			Description: "How many copies (default 1)",
			Required:    false,
			MinValue:    intPtr(1),
		},
	},
}

var TradeRemove = discord.SlashCommandCreate{
	Name:        "traderemove",
	Description: "➖ Remove cards from your side of the trade",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "card",
			Description:  "The pooled card to remove",
			Required:     true,
			Autocomplete: true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "merge_level",
			Description: "Merge level of the copies (default 0)",
			Required:    false,
			MinValue:    intPtr(0),
		},
		discord.ApplicationCommandOptionInt{
			Name:        "quantity",
			Description: "How many copies (default 1)",
			Required:    false,
			MinValue:    intPtr(1),
		},
	},
}

var Finalize = discord.SlashCommandCreate{
	Name:        "finalize",
	Description: "🔒 Settle an accepted trade and swap the cards",
}

var CancelTrade = discord.SlashCommandCreate{
	Name:        "canceltrade",
	Description: "🚫 Cancel your current trade",
}

// checkTradePartner rejects partners the engine can't see: bots and the
// caller themself. Bot-ness is Discord-side knowledge, so it's guarded
// here rather than in the engine.
func checkTradePartner(initiatorID snowflake.ID, target discord.User) error {
	if target.Bot {
		return economy.Preconditionf("you can't trade with a bot")
	}
	if target.ID == initiatorID {
		return economy.Preconditionf("you can't trade with yourself")
	}
	return nil
}

func RequestTradeHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		target := e.SlashCommandInteractionData().User("player")
		if err := checkTradePartner(e.User().ID, target); err != nil {
			return replyError(e, err)
		}

		trade, err := b.TradeEngine.Request(ctx, e.GuildID().String(), e.User().ID.String(), target.ID.String())
		if err != nil {
			return replyError(e, err)
		}

		return e.CreateMessage(discord.MessageCreate{
			Content: fmt.Sprintf("🤝 <@%s>, <@%s> wants to trade! Use `/accepttrade` within %s to join.",
				target.ID, e.User().ID, utils.FormatDuration(time.Until(trade.ExpiresAt))),
		})
	}
}

func AcceptTradeHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		trade, outcome, err := b.TradeEngine.Accept(ctx, e.User().ID.String())
		if err != nil {
			return replyError(e, err)
		}

		var content string
		switch outcome {
		case trading.OutcomeJoined:
			content = fmt.Sprintf("🤝 Trade is on! <@%s> and <@%s> can now `/tradeadd` cards.",
				trade.InitiatorID, trade.ResponderID)
		case trading.OutcomeReady:
			content = fmt.Sprintf("☑️ <@%s> is ready. Waiting for <@%s> to `/accepttrade`.",
				e.User().ID, trade.Counterparty(e.User().ID.String()))
		case trading.OutcomeBothReady:
			content = "✅ Both sides agreed! Either party can `/finalize` to swap the cards."
		case trading.OutcomeAlreadyAccepted:
			content = "Both sides already agreed. Use `/finalize` to settle."
		}
		return e.CreateMessage(discord.MessageCreate{Content: content})
	}
}

func TradeAddHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		cardName := data.String("card")
		mergeLevel, _ := data.OptInt("merge_level")
		quantity := 1
		if v, ok := data.OptInt("quantity"); ok {
			quantity = v
		}

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return replyError(e, err)
		}

		_, card, err := b.TradeEngine.AddItem(ctx, e.User().ID.String(), deck, cardName, mergeLevel, quantity)
		if err != nil {
			return replyError(e, err)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{poolEmbed(ctx, b, e.User().ID.String(),
				fmt.Sprintf("➕ Added %d× **%s**%s", quantity, card.Name, mergeSuffix(mergeLevel)))},
		})
	}
}

func TradeRemoveHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		cardName := data.String("card")
		mergeLevel, _ := data.OptInt("merge_level")
		quantity := 1
		if v, ok := data.OptInt("quantity"); ok {
			quantity = v
		}

		_, card, err := b.TradeEngine.RemoveItem(ctx, e.User().ID.String(), cardName, mergeLevel, quantity)
		if err != nil {
			return replyError(e, err)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{poolEmbed(ctx, b, e.User().ID.String(),
				fmt.Sprintf("➖ Removed %d× **%s**%s", quantity, card.Name, mergeSuffix(mergeLevel)))},
		})
	}
}

func FinalizeHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return replyError(e, err)
		}

		summary, err := b.TradeEngine.Finalize(ctx, e.User().ID.String(), deck)
		if err != nil {
			return replyError(e, err)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "🔒 Trade Settled",
				Description: fmt.Sprintf("<@%s> received **%d** cards\n<@%s> received **%d** cards",
					summary.ResponderID, summary.ToResponderCount,
					summary.InitiatorID, summary.ToInitiatorCount),
				Color: 0x10B981,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Trade %s", summary.TradeID),
				},
			}},
		})
	}
}

func CancelTradeHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		trade, err := b.TradeEngine.Cancel(ctx, e.User().ID.String())
		if err != nil {
			return replyError(e, err)
		}

		return e.CreateMessage(discord.MessageCreate{
			Content: fmt.Sprintf("🚫 Trade between <@%s> and <@%s> was cancelled. Nothing changed hands.",
				trade.InitiatorID, trade.ResponderID),
		})
	}
}

// TradeRemoveAutocomplete suggests the cards currently pooled on the user's
// side of the trade.
func TradeRemoveAutocomplete(b *deckforge.Bot) handler.AutocompleteHandler {
	return func(e *handler.AutocompleteEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_, items, err := b.TradeEngine.PoolFor(ctx, e.User().ID.String())
		if err != nil {
			return e.AutocompleteResult(nil)
		}

		userID := e.User().ID.String()
		candidates := make(choiceList, 0, len(items))
		for _, item := range items {
			if item.UserID != userID || item.Card == nil {
				continue
			}
			candidates = append(candidates, discord.AutocompleteChoiceString{
				Name:  fmt.Sprintf("%s%s × %d", item.Card.Name, mergeSuffix(item.MergeLevel), item.Quantity),
				Value: item.Card.Name,
			})
		}
		return e.AutocompleteResult(rankChoices(focusedValue(e), candidates))
	}
}

// poolEmbed renders both sides of the live trade after a pool mutation.
// Readiness flags are always cleared by mutations, so the footer reminds
// both parties to re-accept.
func poolEmbed(ctx context.Context, b *deckforge.Bot, userID, headline string) discord.Embed {
	embed := discord.Embed{
		Title:       "🤝 Trade Pool",
		Description: headline,
		Color:       0x3B82F6,
		Footer: &discord.EmbedFooter{
			Text: "Pool changed: both parties must /accepttrade again",
		},
	}

	trade, items, err := b.TradeEngine.PoolFor(ctx, userID)
	if err != nil || trade == nil {
		return embed
	}

	sides := map[string]*strings.Builder{
		trade.InitiatorID: {},
		trade.ResponderID: {},
	}
	for _, item := range items {
		if item.Card == nil {
			continue
		}
		if side, ok := sides[item.UserID]; ok {
			side.WriteString(fmt.Sprintf("%d× %s%s\n", item.Quantity, item.Card.Name, mergeSuffix(item.MergeLevel)))
		}
	}
	for _, party := range []struct {
		label string
		id    string
	}{
		{"Initiator offers", trade.InitiatorID},
		{"Responder offers", trade.ResponderID},
	} {
		label, partyID := party.label, party.id
		value := sides[partyID].String()
		if value == "" {
			value = "*nothing yet*"
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:  label,
			Value: fmt.Sprintf("<@%s>\n%s", partyID, value),
		})
	}
	return embed
}
