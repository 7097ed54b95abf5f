package commands

import (
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckforge/deckforge/deckforge/economy"
)

func TestCheckTradePartner(t *testing.T) {
	alice := snowflake.ID(100)
	bob := discord.User{ID: snowflake.ID(200)}
	helper := discord.User{ID: snowflake.ID(300), Bot: true}

	require.NoError(t, checkTradePartner(alice, bob))

	err := checkTradePartner(alice, helper)
	require.ErrorIs(t, err, economy.ErrPrecondition)
	assert.Contains(t, economy.UserMessage(err), "bot")

	err = checkTradePartner(alice, discord.User{ID: alice})
	assert.ErrorIs(t, err, economy.ErrPrecondition)
}
