package commands

import "github.com/disgoorg/disgo/discord"

// Commands is every slash command the bot registers on sync.
var Commands = []discord.ApplicationCommandCreate{
	Balance,
	Drop,
	MyPacks,
	ClaimFreePack,
	ViewDropRates,
	MyCards,
	Recycle,
	CardInfo,
	Merge,
	RequestTrade,
	AcceptTrade,
	TradeAdd,
	TradeRemove,
	Finalize,
	CancelTrade,
	StartMission,
	MyMissions,
	MissionConfig,
}
