package handlers

import (
	"github.com/deckforge/deckforge/deckforge/economy/missions"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
)

// ActivityListener feeds guild chatter into the mission spawner's activity
// window. Bot and webhook messages don't count.
func ActivityListener(tracker missions.ActivityTracker) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildMessageCreate) {
		if e.Message.Author.Bot || e.Message.WebhookID != nil {
			return
		}
		tracker.Record(e.GuildID.String(), e.Message.Author.ID.String())
	})
}
