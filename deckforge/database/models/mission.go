package models

import (
	"time"

	"github.com/uptrace/bun"
)

type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionActive    MissionStatus = "active"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
	MissionExpired   MissionStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s MissionStatus) Terminal() bool {
	switch s {
	case MissionCompleted, MissionFailed, MissionExpired:
		return true
	}
	return false
}

// MissionTemplate is the authored blueprint a mission is rolled from.
type MissionTemplate struct {
	bun.BaseModel `bun:"table:mission_templates,alias:mt"`

	ID                int64   `bun:"id,pk,autoincrement"`
	DeckID            int64   `bun:"deck_id,notnull"`
	Name              string  `bun:"name,notnull"`
	Description       string  `bun:"description,type:text,default:''"`
	RequirementField  string  `bun:"requirement_field,notnull"`
	MinValueBase      float64 `bun:"min_value_base,notnull"`
	RewardBase        int64   `bun:"reward_base,notnull"`
	DurationBaseHours int     `bun:"duration_base_hours,notnull"`
	VariancePct       float64 `bun:"variance_pct,notnull,default:20"`
	IsActive          bool    `bun:"is_active,notnull,default:true"`
}

// MissionRarityScaling is the per-rarity multiplier row of a template.
// SuccessRate is the base percentage compared against the success roll.
type MissionRarityScaling struct {
	bun.BaseModel `bun:"table:mission_rarity_scaling,alias:mrs"`

	ID                    int64   `bun:"id,pk,autoincrement"`
	TemplateID            int64   `bun:"mission_template_id,notnull"`
	Rarity                Rarity  `bun:"rarity,notnull"`
	RequirementMultiplier float64 `bun:"requirement_multiplier,notnull,default:1"`
	RewardMultiplier      float64 `bun:"reward_multiplier,notnull,default:1"`
	DurationMultiplier    float64 `bun:"duration_multiplier,notnull,default:1"`
	SuccessRate           float64 `bun:"success_rate,notnull,default:50"`
}

// ActiveMission is one spawned mission moving through the
// pending -> accepted -> started -> resolved lifecycle. SuccessRoll and
// SuccessRate are both frozen at start time; resolution only compares them.
type ActiveMission struct {
	bun.BaseModel `bun:"table:active_missions,alias:am"`

	ID         int64  `bun:"id,pk,autoincrement"`
	TemplateID int64  `bun:"mission_template_id,notnull"`
	GuildID    string `bun:"guild_id,notnull"`
	DeckID     int64  `bun:"deck_id,notnull"`
	ChannelID  string `bun:"channel_id,notnull"`
	MessageID  string `bun:"message_id,nullzero"`

	Status              MissionStatus `bun:"status,notnull"`
	RarityRolled        Rarity        `bun:"rarity_rolled,notnull"`
	RequirementRolled   float64       `bun:"requirement_rolled,notnull"`
	RewardRolled        int64         `bun:"reward_rolled,notnull"`
	DurationRolledHours int           `bun:"duration_rolled_hours,notnull"`

	AcceptedBy     string  `bun:"accepted_by,nullzero"`
	CardInstanceID int64   `bun:"card_instance_id,nullzero"`
	SuccessRoll    float64 `bun:"success_roll,nullzero"`
	SuccessRate    float64 `bun:"success_rate,nullzero"`

	SpawnedAt         time.Time `bun:"spawned_at,notnull,default:current_timestamp"`
	ReactionExpiresAt time.Time `bun:"reaction_expires_at,notnull"`
	AcceptedAt        time.Time `bun:"accepted_at,nullzero"`
	StartedAt         time.Time `bun:"started_at,nullzero"`
	ExpiresAt         time.Time `bun:"expires_at,nullzero"`
	CompletedAt       time.Time `bun:"completed_at,nullzero"`

	Template *MissionTemplate `bun:"rel:belongs-to,join:mission_template_id=id"`
}

// Accepted reports whether a player has claimed the mission.
func (m *ActiveMission) Accepted() bool {
	return m.AcceptedBy != ""
}

// Started reports whether a card has been committed and the roll frozen.
func (m *ActiveMission) Started() bool {
	return !m.StartedAt.IsZero()
}

// AcceptanceCost is the non-refundable up-front cost, 5% of the rolled reward.
func (m *ActiveMission) AcceptanceCost() int64 {
	return int64(float64(m.RewardRolled) * 0.05)
}

// UserMissionCooldown tracks the last mission acceptance per (player, guild).
// A fixed interval applies between acceptances regardless of outcome.
type UserMissionCooldown struct {
	bun.BaseModel `bun:"table:user_mission_cooldowns,alias:umc"`

	ID             int64     `bun:"id,pk,autoincrement"`
	UserID         string    `bun:"user_id,notnull"`
	GuildID        string    `bun:"guild_id,notnull"`
	LastAcceptTime time.Time `bun:"last_accept_time,notnull"`
}

// ServerMissionSettings is the per-guild mission configuration.
type ServerMissionSettings struct {
	bun.BaseModel `bun:"table:server_mission_settings,alias:sms"`

	ID               int64     `bun:"id,pk,autoincrement"`
	GuildID          string    `bun:"guild_id,notnull,unique"`
	MissionsEnabled  bool      `bun:"missions_enabled,notnull,default:false"`
	MissionChannelID string    `bun:"mission_channel_id,nullzero"`
	LastMissionSpawn time.Time `bun:"last_mission_spawn,nullzero"`
}
