package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// SQLStore persists settings in a relational database. It is the backend
// selected when DB_DSN is set; the schema is applied by Migrate and is
// idempotent. The observable contract matches FileStore, including the
// tolerant Load.
type SQLStore struct {
	db *sql.DB
}

// Connect opens a Postgres connection using DB_DSN.
func Connect() (*sql.DB, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN not set")
	}
	return sql.Open("pgx", dsn)
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate applies idempotent schema changes for the settings tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			ping_channel_id BIGINT DEFAULT 0,
			welcome_channel_ids TEXT DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS registered_users (
			guild_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			login TEXT NOT NULL,
			UNIQUE (guild_id, member_id, login)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_registered_users_login ON registered_users (login)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate settings schema: %w", err)
		}
	}
	return nil
}

// Load assembles the full document from the settings tables. Row-level
// corruption (an unreadable welcome channel list) is logged and that field
// degrades to empty, mirroring the file store's tolerance.
func (s *SQLStore) Load(ctx context.Context) (*Document, error) {
	doc := NewDocument()

	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, ping_channel_id, welcome_channel_ids FROM guild_settings`)
	if err != nil {
		slog.Error("settings query failed, starting empty", slog.Any("err", err))
		return NewDocument(), nil
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, welcome string
		var ping int64
		if err := rows.Scan(&id, &ping, &welcome); err != nil {
			slog.Error("settings row unreadable, skipping", slog.Any("err", err))
			continue
		}
		g := doc.guild(id)
		g.PingChannelID = ping
		if welcome != "" {
			if err := json.Unmarshal([]byte(welcome), &g.WelcomeChannelIDs); err != nil {
				slog.Error("welcome channel list corrupt, resetting", slog.String("guild", id), slog.Any("err", err))
				g.WelcomeChannelIDs = nil
			}
		}
	}
	if err := rows.Err(); err != nil {
		slog.Error("settings rows failed, starting empty", slog.Any("err", err))
		return NewDocument(), nil
	}

	urows, err := s.db.QueryContext(ctx, `SELECT guild_id, member_id, login FROM registered_users`)
	if err != nil {
		slog.Error("registered users query failed", slog.Any("err", err))
		return doc, nil
	}
	defer func() { _ = urows.Close() }()
	for urows.Next() {
		var guildID, memberID, login string
		if err := urows.Scan(&guildID, &memberID, &login); err != nil {
			slog.Error("registered user row unreadable, skipping", slog.Any("err", err))
			continue
		}
		g := doc.guild(guildID)
		g.Users[memberID] = append(g.Users[memberID], login)
	}
	if err := urows.Err(); err != nil {
		slog.Error("registered users rows failed", slog.Any("err", err))
	}
	return doc, nil
}

// Save replaces the stored state with the given document in one transaction.
func (s *SQLStore) Save(ctx context.Context, doc *Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM guild_settings`); err != nil {
		return fmt.Errorf("clear guild settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM registered_users`); err != nil {
		return fmt.Errorf("clear registered users: %w", err)
	}
	for id, g := range doc.Servers {
		if g == nil {
			continue
		}
		welcome, err := json.Marshal(g.WelcomeChannelIDs)
		if err != nil {
			return fmt.Errorf("encode welcome channels: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO guild_settings (guild_id, ping_channel_id, welcome_channel_ids) VALUES ($1, $2, $3)`,
			id, g.PingChannelID, string(welcome)); err != nil {
			return fmt.Errorf("insert guild settings: %w", err)
		}
		for memberID, logins := range g.Users {
			for _, login := range logins {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO registered_users (guild_id, member_id, login) VALUES ($1, $2, $3)`,
					id, memberID, login); err != nil {
					return fmt.Errorf("insert registered user: %w", err)
				}
			}
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GuildConfig(ctx context.Context, guildID string) (*GuildConfig, error) {
	g := &GuildConfig{Users: make(map[string][]string)}

	var welcome string
	err := s.db.QueryRowContext(ctx,
		`SELECT ping_channel_id, welcome_channel_ids FROM guild_settings WHERE guild_id=$1`, guildID).
		Scan(&g.PingChannelID, &welcome)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query guild settings: %w", err)
	}
	if welcome != "" && welcome != "null" {
		if err := json.Unmarshal([]byte(welcome), &g.WelcomeChannelIDs); err != nil {
			slog.Error("welcome channel list corrupt, resetting", slog.String("guild", guildID), slog.Any("err", err))
			g.WelcomeChannelIDs = nil
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, login FROM registered_users WHERE guild_id=$1`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query registered users: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var memberID, login string
		if err := rows.Scan(&memberID, &login); err != nil {
			return nil, fmt.Errorf("scan registered user: %w", err)
		}
		g.Users[memberID] = append(g.Users[memberID], login)
	}
	return g, rows.Err()
}

func (s *SQLStore) SetPingChannel(ctx context.Context, guildID string, channelID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, ping_channel_id) VALUES ($1, $2)
		 ON CONFLICT (guild_id) DO UPDATE SET ping_channel_id=$2`,
		guildID, channelID)
	if err != nil {
		return fmt.Errorf("set ping channel: %w", err)
	}
	return nil
}

func (s *SQLStore) AddWelcomeChannel(ctx context.Context, guildID string, channelID int64) error {
	g, err := s.GuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	g.addWelcomeChannel(channelID)
	return s.saveWelcomeChannels(ctx, guildID, g)
}

func (s *SQLStore) RemoveWelcomeChannel(ctx context.Context, guildID string, channelID int64) error {
	g, err := s.GuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	if err := g.removeWelcomeChannel(channelID); err != nil {
		return err
	}
	return s.saveWelcomeChannels(ctx, guildID, g)
}

func (s *SQLStore) saveWelcomeChannels(ctx context.Context, guildID string, g *GuildConfig) error {
	welcome, err := json.Marshal(g.WelcomeChannelIDs)
	if err != nil {
		return fmt.Errorf("encode welcome channels: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, welcome_channel_ids) VALUES ($1, $2)
		 ON CONFLICT (guild_id) DO UPDATE SET welcome_channel_ids=$2`,
		guildID, string(welcome))
	if err != nil {
		return fmt.Errorf("save welcome channels: %w", err)
	}
	return nil
}

func (s *SQLStore) RegisterUser(ctx context.Context, guildID, memberID, login string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registered_users WHERE guild_id=$1 AND member_id=$2 AND LOWER(login)=LOWER($3)`,
		guildID, memberID, login).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check registration: %w", err)
	}
	if exists > 0 {
		return ErrAlreadyRegistered
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO registered_users (guild_id, member_id, login) VALUES ($1, $2, $3)`,
		guildID, memberID, login); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

func (s *SQLStore) UnregisterUser(ctx context.Context, guildID, memberID, login string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM registered_users WHERE guild_id=$1 AND member_id=$2 AND LOWER(login)=LOWER($3)`,
		guildID, memberID, login)
	if err != nil {
		return fmt.Errorf("unregister user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unregister user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GuildsForLogin(ctx context.Context, login string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT guild_id FROM registered_users WHERE LOWER(login)=LOWER($1) ORDER BY guild_id`, login)
	if err != nil {
		return nil, fmt.Errorf("query guilds for login: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var guilds []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan guild id: %w", err)
		}
		guilds = append(guilds, id)
	}
	return guilds, rows.Err()
}

func (s *SQLStore) AllLogins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT LOWER(login) FROM registered_users ORDER BY LOWER(login)`)
	if err != nil {
		return nil, fmt.Errorf("query logins: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var logins []string
	for rows.Next() {
		var login string
		if err := rows.Scan(&login); err != nil {
			return nil, fmt.Errorf("scan login: %w", err)
		}
		logins = append(logins, login)
	}
	return logins, rows.Err()
}
