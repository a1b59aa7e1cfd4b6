package database

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the part of a connection repositories use.
// Both *pgxpool.Conn and pgx.Tx implement it; Begin on a pgx.Tx opens a savepoint.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// RealmScope wraps a connection with guild context and ensures cleanup.
// The connection has app.current_guild_id set for RLS policy evaluation,
// unless it was acquired with WithoutRealm.
type RealmScope struct {
	// Conn is the pooled connection, or the open transaction inside InTx.
	Conn Querier

	// GuildID is the realm the scope is restricted to. Zero when unrestricted.
	GuildID int64

	pooled *pgxpool.Conn
	inTx   bool
}

// Restricted reports whether RLS limits the scope to one guild.
func (s *RealmScope) Restricted() bool {
	return s.GuildID != 0
}

// InTx reports whether Conn is a transaction.
func (s *RealmScope) InTx() bool {
	return s.inTx
}

// Close resets guild context and releases connection to pool.
// This MUST be called to prevent guild context from leaking to the next caller.
func (s *RealmScope) Close() {
	if s.pooled == nil {
		return
	}
	if s.Restricted() {
		_, _ = s.pooled.Exec(context.Background(), "RESET app.current_guild_id")
	}
	s.pooled.Release()
	s.pooled = nil
}

// WithRealm acquires a connection and sets the guild context for RLS.
// The returned RealmScope MUST be closed with defer scope.Close().
func (db *DB) WithRealm(ctx context.Context, guildID int64) (*RealmScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_guild_id', $1, false)", strconv.FormatInt(guildID, 10))
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &RealmScope{Conn: conn, GuildID: guildID, pooled: conn}, nil
}

// WithoutRealm acquires a connection without guild context.
// Use this for cross-guild work such as the hive tick.
// The returned RealmScope MUST be closed with defer scope.Close().
func (db *DB) WithoutRealm(ctx context.Context) (*RealmScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &RealmScope{Conn: conn, pooled: conn}, nil
}
