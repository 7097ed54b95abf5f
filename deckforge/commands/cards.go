package commands

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/deckforge/deckforge/deckforge"
	"github.com/deckforge/deckforge/deckforge/economy/merge"
	"github.com/deckforge/deckforge/deckforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"
)

const cardsPerPage = 8

var MyCards = discord.SlashCommandCreate{
	Name:        "mycards",
	Description: "🃏 Browse your card collection",
}

var Recycle = discord.SlashCommandCreate{
	Name:        "recycle",
	Description: "♻️ Recycle cards for credits",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "card",
			Description:  "The card to recycle",
			Required:     true,
			Autocomplete: true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "merge_level",
			Description: "Merge level of the copies to recycle (default 0)",
			Required:    false,
			MinValue:    intPtr(0),
		},
		discord.ApplicationCommandOptionInt{
			Name:        "amount",
			Description: "How many copies to recycle (default 1)",
			Required:    false,
			MinValue:    intPtr(1),
		},
	},
}

var CardInfo = discord.SlashCommandCreate{
	Name:        "cardinfo",
	Description: "🔎 View a card's details and template fields",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "card",
			Description:  "The card to inspect",
			Required:     true,
			Autocomplete: true,
		},
	},
}

func MyCardsHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return replyError(e, err)
		}

		owned, err := b.CardInstanceRepository.OwnedSummary(ctx, e.User().ID.String(), deck.ID)
		if err != nil {
			return replyError(e, err)
		}
		if len(owned) == 0 {
			return replyEphemeral(e, "You don't own any cards yet. Open a pack with `/drop`!")
		}

		lines := make([]string, 0, len(owned))
		total := 0
		for _, card := range owned {
			total += card.Count
			prefix := ""
			if card.Count > 1 {
				prefix = fmt.Sprintf("(x%d) ", card.Count)
			}
			suffix := ""
			if display := utils.FormatMergeLevel(card.MergeLevel); display != "" {
				suffix = " " + display
			}
			lines = append(lines, fmt.Sprintf("%s**%s**%s · %s", prefix, card.Name, suffix, card.Rarity))
		}

		totalPages := int(math.Ceil(float64(len(lines)) / float64(cardsPerPage)))
		return b.Paginator.Create(e.Respond, paginator.Pages{
			ID:      e.ID().String(),
			Creator: e.User().ID,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				start := page * cardsPerPage
				end := min(start+cardsPerPage, len(lines))
				embed.
					SetTitle("🃏 Your Collection").
					SetDescription(strings.Join(lines[start:end], "\n")).
					SetColor(0x3B82F6).
					SetFooter(fmt.Sprintf("Page %d/%d • %d cards total", page+1, totalPages, total), "")
			},
			Pages:      totalPages,
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	}
}

func RecycleHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		cardName := data.String("card")
		mergeLevel, _ := data.OptInt("merge_level")
		amount := 1
		if v, ok := data.OptInt("amount"); ok {
			amount = v
		}

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return replyError(e, err)
		}

		credits, err := b.PackService.Recycle(ctx, e.User().ID.String(), deck.ID, cardName, mergeLevel, amount)
		if err != nil {
			return replyError(e, err)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "♻️ Cards Recycled",
				Description: fmt.Sprintf("Recycled %d× **%s**%s for **%s**.",
					amount, cardName, mergeSuffix(mergeLevel), utils.FormatCredits(credits)),
				Color: 0x10B981,
			}},
		})
	}
}

func CardInfoHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return replyError(e, err)
		}

		card, err := b.CardRepository.GetByName(ctx, deck.ID, e.SlashCommandInteractionData().String("card"))
		if err != nil {
			return replyError(e, err)
		}

		fields, err := b.CardRepository.GetTemplateFields(ctx, card.ID)
		if err != nil {
			return replyError(e, err)
		}

		embed := discord.NewEmbedBuilder().
			SetTitle(fmt.Sprintf("🔎 %s", card.Name)).
			SetDescription(card.Description).
			SetColor(utils.RarityColor(card.Rarity)).
			AddField("Rarity", string(card.Rarity), true).
			AddField("Recycle value", utils.FormatCredits(merge.RecycleValue(card.Rarity, 0)), true)

		if card.Mergeable {
			embed.AddField("Max merge level", fmt.Sprintf("%d", card.MaxMergeLevel), true)
		} else {
			embed.AddField("Mergeable", "No", true)
		}
		if card.ImageURL != "" {
			embed.SetThumbnail(card.ImageURL)
		}

		var sb strings.Builder
		for _, field := range fields {
			sb.WriteString(fmt.Sprintf("**%s**: %s\n", field.FieldName, field.FieldValue))
		}
		if sb.Len() > 0 {
			embed.AddField("Template fields", sb.String(), false)
		}

		if section := bestCopySection(ctx, b, e.User().ID.String(), deck.ID, card.ID); section != "" {
			embed.AddField("Your best copy", section, false)
		}

		return e.CreateMessage(discord.MessageCreate{Embeds: []discord.Embed{embed.Build()}})
	}
}

// bestCopySection renders the caller's highest-merged copy of the card:
// boosted field values and the perks applied on the way up. Empty when the
// caller owns none or lookups fail; /cardinfo stays useful without it.
func bestCopySection(ctx context.Context, b *deckforge.Bot, userID string, deckID, cardID int64) string {
	owned, err := b.CardInstanceRepository.OwnedSummary(ctx, userID, deckID)
	if err != nil {
		return ""
	}
	bestLevel := -1
	for _, line := range owned {
		if line.CardID == cardID && line.MergeLevel > bestLevel {
			bestLevel = line.MergeLevel
		}
	}
	if bestLevel < 0 {
		return ""
	}

	copies, err := b.CardInstanceRepository.GetOldestOwned(ctx, userID, cardID, bestLevel, 1)
	if err != nil || len(copies) == 0 {
		return ""
	}
	instance := copies[0]

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Merge level %d%s\n", instance.MergeLevel, mergeSuffix(instance.MergeLevel)))

	if boosts, err := b.CardInstanceRepository.GetFieldBoosts(ctx, instance.ID); err == nil {
		for _, boost := range boosts {
			sb.WriteString(fmt.Sprintf("**%s**: %.2f (base %.2f)\n", boost.FieldName, boost.BoostedValue, boost.BaseValue))
		}
	}
	if perks, err := b.CardInstanceRepository.GetPerkHistory(ctx, instance.ID); err == nil {
		for _, perk := range perks {
			sb.WriteString(fmt.Sprintf("%s +%.2f%% at level %d\n", perk.PerkName, perk.PerkValue, perk.LevelApplied))
		}
	}
	return sb.String()
}

// OwnedCardAutocomplete suggests cards the user owns, fuzzy-ranked.
func OwnedCardAutocomplete(b *deckforge.Bot) handler.AutocompleteHandler {
	return func(e *handler.AutocompleteEvent) error {
		if e.GuildID() == nil {
			return e.AutocompleteResult(nil)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return e.AutocompleteResult(nil)
		}
		owned, err := b.CardInstanceRepository.OwnedSummary(ctx, e.User().ID.String(), deck.ID)
		if err != nil {
			return e.AutocompleteResult(nil)
		}

		seen := make(map[string]bool, len(owned))
		candidates := make(choiceList, 0, len(owned))
		for _, card := range owned {
			if seen[card.Name] {
				continue
			}
			seen[card.Name] = true
			candidates = append(candidates, discord.AutocompleteChoiceString{
				Name:  fmt.Sprintf("%s (%s)", card.Name, card.Rarity),
				Value: card.Name,
			})
		}
		return e.AutocompleteResult(rankChoices(focusedValue(e), candidates))
	}
}

// DeckCardAutocomplete suggests any card in the deck, fuzzy-ranked.
func DeckCardAutocomplete(b *deckforge.Bot) handler.AutocompleteHandler {
	return func(e *handler.AutocompleteEvent) error {
		if e.GuildID() == nil {
			return e.AutocompleteResult(nil)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return e.AutocompleteResult(nil)
		}
		cards, err := b.CardRepository.GetAllByDeck(ctx, deck.ID)
		if err != nil {
			return e.AutocompleteResult(nil)
		}

		candidates := make(choiceList, 0, len(cards))
		for _, card := range cards {
			candidates = append(candidates, discord.AutocompleteChoiceString{
				Name:  fmt.Sprintf("%s (%s)", card.Name, card.Rarity),
				Value: card.Name,
			})
		}
		return e.AutocompleteResult(rankChoices(focusedValue(e), candidates))
	}
}

func mergeSuffix(level int) string {
	if display := utils.FormatMergeLevel(level); display != "" {
		return " " + display
	}
	return ""
}
