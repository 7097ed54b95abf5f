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

var Merge = discord.SlashCommandCreate{
	Name:        "merge",
	Description: "⭐ Merge two copies of a card into a stronger one",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "card",
			Description:  "The card to merge",
			Required:     true,
			Autocomplete: true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "current_level",
			Description: "Merge level of the two copies (default 0)",
			Required:    false,
			MinValue:    intPtr(0),
		},
		discord.ApplicationCommandOptionString{
			Name:         "perk",
			Description:  "Perk to lock in (required on the first merge)",
			Required:     false,
			Autocomplete: true,
		},
	},
}

func MergeHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		cardName := data.String("card")
		currentLevel, _ := data.OptInt("current_level")
		perkName, _ := data.OptString("perk")

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return replyError(e, err)
		}

		result, err := b.MergeService.Execute(ctx, e.User().ID.String(), deck, cardName, currentLevel, perkName)
		if err != nil {
			return replyError(e, err)
		}

		embed := discord.NewEmbedBuilder().
			SetTitle(fmt.Sprintf("⭐ Merge Complete: %s %s", result.Card.Name, utils.FormatMergeLevel(result.NewLevel))).
			SetColor(utils.RarityColor(result.Card.Rarity)).
			AddField("Cost", utils.FormatCredits(result.Cost), true).
			AddField("Perk", fmt.Sprintf("%s +%.2f%%", result.PerkName, result.PerkValue), true).
			AddField("Total boost", fmt.Sprintf("+%.2f%%", result.CumulativeBoost), true)

		if result.FieldName != "" {
			embed.AddField("Boosted field",
				fmt.Sprintf("**%s** → %.2f", result.FieldName, result.FieldBoosted), false)
		}

		return e.CreateMessage(discord.MessageCreate{Embeds: []discord.Embed{embed.Build()}})
	}
}

// MergeAutocomplete routes on the focused option: owned cards for "card",
// the deck's configured perks for "perk".
func MergeAutocomplete(b *deckforge.Bot) handler.AutocompleteHandler {
	cardSuggestions := OwnedCardAutocomplete(b)
	return func(e *handler.AutocompleteEvent) error {
		if e.Data.Focused().Name == "card" {
			return cardSuggestions(e)
		}
		if e.GuildID() == nil {
			return e.AutocompleteResult(nil)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return e.AutocompleteResult(nil)
		}
		perks, err := b.DeckRepository.GetMergePerks(ctx, deck.ID)
		if err != nil {
			return e.AutocompleteResult(nil)
		}

		candidates := make(choiceList, 0, len(perks))
		for _, perk := range perks {
			candidates = append(candidates, discord.AutocompleteChoiceString{
				Name:  fmt.Sprintf("%s (base +%.1f%%)", perk.PerkName, perk.BaseBoost),
				Value: perk.PerkName,
			})
		}
		return e.AutocompleteResult(rankChoices(focusedValue(e), candidates))
	}
}
