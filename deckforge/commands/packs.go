package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deckforge/deckforge/deckforge"
	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/economy/packs"
	"github.com/deckforge/deckforge/deckforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Drop = discord.SlashCommandCreate{
	Name:        "drop",
	Description: "🎁 Open packs from your inventory",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "pack_type",
			Description: "Which pack to open",
			Required:    true,
			Choices: []discord.ApplicationCommandOptionChoiceString{
				{Name: packs.PackNormal, Value: packs.PackNormal},
				{Name: packs.PackBooster, Value: packs.PackBooster},
				{Name: packs.PackBoosterPlus, Value: packs.PackBoosterPlus},
			},
		},
		discord.ApplicationCommandOptionInt{
			Name:        "amount",
			Description: "How many packs to open (1-10)",
			Required:    false,
			MinValue:    intPtr(1),
			MaxValue:    intPtr(packs.MaxPacksPerOpen),
		},
	},
}

var MyPacks = discord.SlashCommandCreate{
	Name:        "mypacks",
	Description: "📦 View your unopened packs",
}

var ClaimFreePack = discord.SlashCommandCreate{
	Name:        "claimfreepack",
	Description: "🆓 Claim your free Normal Pack",
}

var ViewDropRates = discord.SlashCommandCreate{
	Name:        "viewdroprates",
	Description: "📊 View this deck's drop rates per pack type",
}

func DropHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		packType := data.String("pack_type")
		amount := 1
		if v, ok := data.OptInt("amount"); ok {
			amount = v
		}

		deck, err := b.DeckResolver.Resolve(ctx, e.GuildID().String())
		if err != nil {
			return replyError(e, err)
		}

		dropped, err := b.PackService.Open(ctx, e.User().ID.String(), deck, packType, amount)
		if err != nil {
			return replyError(e, err)
		}

		byRarity := make(map[models.Rarity][]string)
		best := models.RarityCommon
		for _, card := range dropped {
			byRarity[card.Rarity] = append(byRarity[card.Rarity], card.Name)
			if card.Rarity.Order() > best.Order() {
				best = card.Rarity
			}
		}

		var sb strings.Builder
		for i := len(models.RarityHierarchy) - 1; i >= 0; i-- {
			rarity := models.RarityHierarchy[i]
			names := byRarity[rarity]
			if len(names) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("**%s**: %s\n", rarity, strings.Join(names, ", ")))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       fmt.Sprintf("🎁 Opened %d× %s", amount, packType),
				Description: sb.String(),
				Color:       utils.RarityColor(best),
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("%d cards added to your collection", len(dropped)),
				},
			}},
		})
	}
}

func MyPacksHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		userPacks, err := b.PackRepository.GetUserPacks(ctx, e.User().ID.String())
		if err != nil {
			return replyError(e, err)
		}

		if len(userPacks) == 0 {
			return replyEphemeral(e, "You have no unopened packs. Try `/claimfreepack`!")
		}

		var sb strings.Builder
		total := 0
		for _, p := range userPacks {
			if p.Quantity == 0 {
				continue
			}
			total += p.Quantity
			sb.WriteString(fmt.Sprintf("**%s** × %d\n", p.PackType, p.Quantity))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "📦 Your Packs",
				Description: sb.String(),
				Color:       0x3B82F6,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("%d/%d pack slots used", total, packs.InventoryCap),
				},
			}},
		})
	}
}

func ClaimFreePackHandler(b *deckforge.Bot) handler.CommandHandler {
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

		nextClaim, err := b.PackService.ClaimFreePack(ctx, e.User().ID.String(), deck)
		if err != nil {
			return replyError(e, err)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "🆓 Free Pack Claimed",
				Description: fmt.Sprintf("A **%s** was added to your inventory.\nNext claim available in %s.", packs.PackNormal, utils.FormatDuration(time.Until(nextClaim))),
				Color:       0x10B981,
			}},
		})
	}
}

func ViewDropRatesHandler(b *deckforge.Bot) handler.CommandHandler {
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

		baseRates, err := b.PackService.DeckDropRates(ctx, deck.ID)
		if err != nil {
			return replyError(e, err)
		}

		embed := discord.Embed{
			Title: fmt.Sprintf("📊 Drop Rates — %s", deck.Name),
			Color: 0x8B5CF6,
		}
		for _, packType := range []string{packs.PackNormal, packs.PackBooster, packs.PackBoosterPlus} {
			rates := packs.ApplyPackModifier(baseRates, packType)
			var sb strings.Builder
			for i := len(models.RarityHierarchy) - 1; i >= 0; i-- {
				rarity := models.RarityHierarchy[i]
				sb.WriteString(fmt.Sprintf("%s: %.2f%%\n", rarity, rates[rarity]))
			}
			embed.Fields = append(embed.Fields, discord.EmbedField{
				Name:  packType,
				Value: sb.String(),
			})
		}

		return e.CreateMessage(discord.MessageCreate{Embeds: []discord.Embed{embed}})
	}
}
