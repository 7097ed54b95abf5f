package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/deckforge/deckforge/deckforge/database/models"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
)

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	// Probe reachability before handing the address to the pool, retrying a
	// few times so a restarting database does not kill startup.
	var conn net.Conn
	var err error

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	for i := 0; i < defaultMaxRetries; i++ {
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			break
		}
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}
	conn.Close()

	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{pool: pool, bunDB: newBunDB(cfg)}, nil
}

func buildConnString(cfg DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}

func newBunDB(cfg DBConfig) *bun.DB {
	sslMode := os.Getenv("PG_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (db *DB) GetPool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return db.pool.Ping(ctx)
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
	if db.bunDB != nil {
		db.bunDB.Close()
	}
}

func (db *DB) ExecWithLog(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	start := time.Now()
	result, err := db.pool.Exec(ctx, sql, args...)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("operation", "exec"),
			slog.String("query", sql),
			slog.Duration("took", duration),
			slog.Any("error", err),
		)
		return result, err
	}

	slog.Info("Query executed",
		slog.String("type", "db"),
		slog.String("operation", "exec"),
		slog.String("query", sql),
		slog.Duration("took", duration),
		slog.Int64("affected_rows", result.RowsAffected()),
	)
	return result, nil
}

// InitializeSchema creates all required database tables and indexes.
func (db *DB) InitializeSchema(ctx context.Context) error {
	// Tables in dependency order.
	tables := []interface{}{
		(*models.Deck)(nil),
		(*models.ServerDeck)(nil),
		(*models.RarityRate)(nil),
		(*models.DeckMergePerk)(nil),
		(*models.Card)(nil),
		(*models.CardTemplateField)(nil),
		(*models.Player)(nil),
		(*models.CardInstance)(nil),
		(*models.CardPerk)(nil),
		(*models.InstanceFieldBoost)(nil),
		(*models.UserPack)(nil),
		(*models.Trade)(nil),
		(*models.TradeItem)(nil),
		(*models.MissionTemplate)(nil),
		(*models.MissionRarityScaling)(nil),
		(*models.ActiveMission)(nil),
		(*models.UserMissionCooldown)(nil),
		(*models.ServerMissionSettings)(nil),
	}

	for _, model := range tables {
		_, err := db.bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_cards_deck_id ON cards(deck_id);",
		"CREATE INDEX IF NOT EXISTS idx_cards_deck_name ON cards(deck_id, name);",
		"CREATE INDEX IF NOT EXISTS idx_template_fields_card ON card_template_fields(card_id);",
		"CREATE INDEX IF NOT EXISTS idx_instances_owner ON card_instances(user_id) WHERE recycled_at IS NULL;",
		"CREATE INDEX IF NOT EXISTS idx_instances_owner_card ON card_instances(user_id, card_id, merge_level, acquired_at) WHERE recycled_at IS NULL;",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_field_boosts_instance_field ON instance_field_boosts(instance_id, field_name);",
		"CREATE INDEX IF NOT EXISTS idx_user_packs_user ON user_packs(user_id);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_user_packs_user_type ON user_packs(user_id, pack_type);",
		// At most one live trade per side of the table. The engine also
		// checks both parties up front; these back that check with a hard
		// constraint per role.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_live_initiator ON trades(initiator_id) WHERE status NOT IN ('completed', 'cancelled', 'expired');",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_live_responder ON trades(responder_id) WHERE status NOT IN ('completed', 'cancelled', 'expired');",
		"CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status, expires_at);",
		"CREATE INDEX IF NOT EXISTS idx_trade_items_trade ON trade_items(trade_id);",
		"CREATE INDEX IF NOT EXISTS idx_active_missions_guild ON active_missions(guild_id, status);",
		"CREATE INDEX IF NOT EXISTS idx_active_missions_message ON active_missions(message_id);",
		"CREATE INDEX IF NOT EXISTS idx_active_missions_due ON active_missions(expires_at) WHERE status = 'active';",
		"CREATE INDEX IF NOT EXISTS idx_active_missions_instance ON active_missions(card_instance_id) WHERE status = 'active';",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_mission_cooldowns_user_guild ON user_mission_cooldowns(user_id, guild_id);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_rarity_rates_deck_rarity ON rarity_rates(deck_id, rarity);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_merge_perks_deck_name ON deck_merge_perks(deck_id, perk_name);",
	}

	for _, idx := range indexes {
		if _, err := db.ExecWithLog(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
