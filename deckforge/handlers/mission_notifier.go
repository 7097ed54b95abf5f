package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/deckforge/deckforge/deckforge/database/models"
	"github.com/deckforge/deckforge/deckforge/utils"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// MissionNotifier posts mission embeds and outcome notices through the
// gateway client. The client arrives after bot setup, so it is injected
// late via SetClient; calls before that only log.
type MissionNotifier struct {
	mu     sync.RWMutex
	client bot.Client
}

func NewMissionNotifier() *MissionNotifier {
	return &MissionNotifier{}
}

func (n *MissionNotifier) SetClient(client bot.Client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.client = client
}

func (n *MissionNotifier) getClient() bot.Client {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.client
}

// PostMission publishes the mission embed to the guild's mission channel,
// seeds the claim reaction and returns the message ID for reaction routing.
func (n *MissionNotifier) PostMission(_ context.Context, mission *models.ActiveMission, template *models.MissionTemplate) (string, error) {
	client := n.getClient()
	if client == nil {
		return "", fmt.Errorf("mission notifier has no client yet")
	}

	channelID, err := snowflake.Parse(mission.ChannelID)
	if err != nil {
		return "", fmt.Errorf("invalid mission channel id %q: %w", mission.ChannelID, err)
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("🎯 %s Mission: %s", mission.RarityRolled, template.Name)).
		SetDescription(template.Description).
		SetColor(utils.RarityColor(mission.RarityRolled)).
		AddField("📋 Requirement",
			fmt.Sprintf("**%s** >= %.0f", template.RequirementField, mission.RequirementRolled), true).
		AddField("💰 Reward",
			fmt.Sprintf("**%s** credits\n(Cost: %s)", utils.FormatNumber(mission.RewardRolled), utils.FormatCredits(mission.AcceptanceCost())), true).
		AddField("⏱️ Duration",
			fmt.Sprintf("%d hours", mission.DurationRolledHours), true).
		SetFooterText(fmt.Sprintf("React with %s to claim • closes %s",
			missionClaimEmoji, mission.ReactionExpiresAt.Format("15:04 MST"))).
		Build()

	message, err := client.Rest().CreateMessage(channelID, discord.MessageCreate{
		Embeds: []discord.Embed{embed},
	})
	if err != nil {
		return "", fmt.Errorf("failed to post mission: %w", err)
	}

	if err := client.Rest().AddReaction(channelID, message.ID, missionClaimEmoji); err != nil {
		slog.Warn("Failed to seed claim reaction",
			slog.String("type", "sys"),
			slog.Int64("mission_id", mission.ID),
			slog.Any("error", err))
	}
	return message.ID.String(), nil
}

// MissionClaimed announces the claim in the mission channel.
func (n *MissionNotifier) MissionClaimed(_ context.Context, mission *models.ActiveMission, userID string) {
	client := n.getClient()
	if client == nil {
		return
	}

	channelID, err := snowflake.Parse(mission.ChannelID)
	if err != nil {
		return
	}
	content := fmt.Sprintf("🎯 <@%s> claimed the mission! Use `/startmission` within 24 hours to commit a card.", userID)
	if _, err := client.Rest().CreateMessage(channelID, discord.MessageCreate{Content: content}); err != nil {
		slog.Warn("Failed to announce mission claim",
			slog.String("type", "sys"),
			slog.Int64("mission_id", mission.ID),
			slog.Any("error", err))
	}
}

// MissionResolved reports the outcome in the mission channel and to the
// player directly.
func (n *MissionNotifier) MissionResolved(_ context.Context, mission *models.ActiveMission, success bool, payout int64) {
	client := n.getClient()
	if client == nil {
		return
	}

	var content string
	if success {
		content = fmt.Sprintf("✅ <@%s> completed the mission and earned **%s**!",
			mission.AcceptedBy, utils.FormatCredits(payout))
	} else {
		content = fmt.Sprintf("❌ <@%s>'s mission failed. Better luck next time.", mission.AcceptedBy)
	}

	if channelID, err := snowflake.Parse(mission.ChannelID); err == nil {
		if _, err := client.Rest().CreateMessage(channelID, discord.MessageCreate{Content: content}); err != nil {
			slog.Warn("Failed to announce mission outcome",
				slog.String("type", "sys"),
				slog.Int64("mission_id", mission.ID),
				slog.Any("error", err))
		}
	}
	dmUser(client, mission.AcceptedBy, content)
}
