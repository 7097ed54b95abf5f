package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deckforge/deckforge/deckforge"
	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var StartMission = discord.SlashCommandCreate{
	Name:        "startmission",
	Description: "🚀 Commit a qualifying card to your claimed mission",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "card",
			Description:  "The card to send on the mission",
			Required:     true,
			Autocomplete: true,
		},
	},
}

var MyMissions = discord.SlashCommandCreate{
	Name:        "mymissions",
	Description: "🎯 View your missions in this server",
}

var MissionConfig = discord.SlashCommandCreate{
	Name:        "missionconfig",
	Description: "⚙️ Configure mission spawning for this server",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionChannel{
			Name:        "channel",
			Description: "Channel where missions are posted",
			Required:    true,
		},
		discord.ApplicationCommandOptionBool{
			Name:        "enabled",
			Description: "Whether missions spawn at all",
			Required:    true,
		},
	},
}

func StartMissionHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cardName := e.SlashCommandInteractionData().String("card")
		result, err := b.MissionEngine.Start(ctx, e.User().ID.String(), e.GuildID().String(), cardName)
		if err != nil {
			return replyError(e, err)
		}

		embed := discord.NewEmbedBuilder().
			SetTitle("🚀 Mission Started").
			SetDescription(fmt.Sprintf("**%s**%s is on the job!",
				result.Card.Name, mergeSuffix(result.Card.MergeLevel))).
			SetColor(utils.RarityColor(result.Card.Rarity)).
			AddField("Success rate", fmt.Sprintf("%.0f%%", result.Rate), true).
			AddField("Merge bonus", fmt.Sprintf("+%d pts", result.MergeBonus), true).
			AddField("Resolves", fmt.Sprintf("<t:%d:R>", result.EndsAt.Unix()), true).
			Build()

		return e.CreateMessage(discord.MessageCreate{Embeds: []discord.Embed{embed}})
	}
}

func MyMissionsHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		userMissions, err := b.MissionRepository.GetUserMissions(ctx, e.User().ID.String(), e.GuildID().String())
		if err != nil {
			return replyError(e, err)
		}
		if len(userMissions) == 0 {
			return replyEphemeral(e, "You haven't claimed any missions here yet. Watch the mission channel!")
		}

		var sb strings.Builder
		for _, mission := range userMissions {
			name := "Mission"
			if mission.Template != nil {
				name = mission.Template.Name
			}
			sb.WriteString(fmt.Sprintf("%s **%s** (%s) — %s",
				missionStatusEmoji(mission.Status), name, mission.RarityRolled, mission.Status))
			switch {
			case mission.Status == models.MissionActive:
				sb.WriteString(fmt.Sprintf(", resolves <t:%d:R>", mission.ExpiresAt.Unix()))
			case mission.Status == models.MissionPending && mission.Accepted():
				sb.WriteString(fmt.Sprintf(", start by <t:%d:R>", mission.ExpiresAt.Unix()))
			}
			sb.WriteString("\n")
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "🎯 Your Missions",
				Description: sb.String(),
				Color:       0x8B5CF6,
			}},
		})
	}
}

func MissionConfigHandler(b *deckforge.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return replyEphemeral(e, "This command only works in a server.")
		}
		if member := e.Member(); member == nil || !member.Permissions.Has(discord.PermissionManageGuild) {
			return replyEphemeral(e, "You need the Manage Server permission for this.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		channel := data.Channel("channel")
		enabled := data.Bool("enabled")

		err := b.MissionRepository.UpsertSettings(ctx, &models.ServerMissionSettings{
			GuildID:          e.GuildID().String(),
			MissionsEnabled:  enabled,
			MissionChannelID: channel.ID.String(),
		})
		if err != nil {
			return replyError(e, err)
		}

		state := "disabled"
		if enabled {
			state = "enabled"
		}
		return replyEphemeral(e, fmt.Sprintf("⚙️ Missions %s. Spawns will post in <#%s>.", state, channel.ID))
	}
}

// QualifyingCardAutocomplete suggests cards that meet the player's accepted
// mission requirement, best field value first.
func QualifyingCardAutocomplete(b *deckforge.Bot) handler.AutocompleteHandler {
	return func(e *handler.AutocompleteEvent) error {
		if e.GuildID() == nil {
			return e.AutocompleteResult(nil)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		mission, err := b.MissionRepository.GetAcceptedPending(ctx, e.User().ID.String(), e.GuildID().String())
		if err != nil || mission.Template == nil {
			return e.AutocompleteResult(nil)
		}

		qualifying, err := b.CardInstanceRepository.ListQualifying(ctx, e.User().ID.String(),
			mission.Template.RequirementField, mission.RequirementRolled, maxAutocompleteChoices)
		if err != nil {
			return e.AutocompleteResult(nil)
		}

		candidates := make(choiceList, 0, len(qualifying))
		seen := make(map[string]bool, len(qualifying))
		for _, card := range qualifying {
			if seen[card.Name] {
				continue
			}
			seen[card.Name] = true
			candidates = append(candidates, discord.AutocompleteChoiceString{
				Name: fmt.Sprintf("%s%s — %s %.0f", card.Name, mergeSuffix(card.MergeLevel),
					mission.Template.RequirementField, card.FieldValue),
				Value: card.Name,
			})
		}
		return e.AutocompleteResult(rankChoices(focusedValue(e), candidates))
	}
}

func missionStatusEmoji(status models.MissionStatus) string {
	switch status {
	case models.MissionPending:
		return "🕐"
	case models.MissionActive:
		return "🚀"
	case models.MissionCompleted:
		return "✅"
	case models.MissionFailed:
		return "❌"
	case models.MissionExpired:
		return "⌛"
	}
	return "❔"
}
