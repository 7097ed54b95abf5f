// Package commands defines the slash command surface: definitions,
// handlers and autocomplete providers for the card economy.
package commands

import (
	"encoding/json"
	"strings"

	"github.com/deckforge/deckforge/deckforge/economy"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/sahilm/fuzzy"
)

const maxAutocompleteChoices = 25

func intPtr(v int) *int {
	return &v
}

// replyError renders an engine error ephemerally using the taxonomy's
// user-facing message.
func replyError(e *handler.CommandEvent, err error) error {
	return e.CreateMessage(discord.MessageCreate{
		Content: "❌ " + economy.UserMessage(err),
		Flags:   discord.MessageFlagEphemeral,
	})
}

func replyEphemeral(e *handler.CommandEvent, content string) error {
	return e.CreateMessage(discord.MessageCreate{
		Content: content,
		Flags:   discord.MessageFlagEphemeral,
	})
}

// focusedValue extracts the typed text of the focused autocomplete option.
func focusedValue(e *handler.AutocompleteEvent) string {
	focused := e.Data.Focused()
	if focused.Value == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(focused.Value, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// choiceList implements fuzzy.Source over autocomplete candidates.
type choiceList []discord.AutocompleteChoiceString

func (c choiceList) Len() int            { return len(c) }
func (c choiceList) String(i int) string { return c[i].Name }

// rankChoices fuzzy-ranks candidates against the query, keeping insertion
// order when the query is empty. Output is capped at Discord's limit.
func rankChoices(query string, candidates choiceList) []discord.AutocompleteChoice {
	var ordered []discord.AutocompleteChoiceString
	if query == "" {
		ordered = candidates
	} else {
		matches := fuzzy.FindFrom(query, candidates)
		ordered = make([]discord.AutocompleteChoiceString, 0, len(matches))
		for _, match := range matches {
			ordered = append(ordered, candidates[match.Index])
		}
	}

	choices := make([]discord.AutocompleteChoice, 0, min(len(ordered), maxAutocompleteChoices))
	for _, choice := range ordered {
		if len(choices) == maxAutocompleteChoices {
			break
		}
		choices = append(choices, choice)
	}
	return choices
}
