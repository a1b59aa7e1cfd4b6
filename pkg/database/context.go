package database

import (
	"context"
	"errors"
	"fmt"
)

type contextKey string

const (
	// RealmScopeKey is the context key for storing the guild-scoped database connection.
	RealmScopeKey contextKey = "realmScope"
)

// ErrNoScope is returned when an operation needs a scope the context lacks.
var ErrNoScope = errors.New("no realm scope in context")

// GetRealmScope retrieves the guild-scoped database connection from context.
// Returns nil and false if not present.
func GetRealmScope(ctx context.Context) (*RealmScope, bool) {
	scope, ok := ctx.Value(RealmScopeKey).(*RealmScope)
	return scope, ok
}

// SetRealmScope stores the guild-scoped database connection in context.
func SetRealmScope(ctx context.Context, scope *RealmScope) context.Context {
	return context.WithValue(ctx, RealmScopeKey, scope)
}

// ScopeProvider runs callbacks with a realm scope, and optionally a
// transaction, stored in their context.
type ScopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for the given database.
func NewScopeProvider(db *DB) *ScopeProvider {
	return &ScopeProvider{db: db}
}

// WithRealm runs fn with a connection restricted to guildID. An existing
// scope in ctx is reused when it is unrestricted or already for guildID, so
// nested service calls share one connection and transaction.
func (p *ScopeProvider) WithRealm(ctx context.Context, guildID int64, fn func(ctx context.Context) error) error {
	if scope, ok := GetRealmScope(ctx); ok && (!scope.Restricted() || scope.GuildID == guildID) {
		return fn(ctx)
	}

	scope, err := p.db.WithRealm(ctx, guildID)
	if err != nil {
		return fmt.Errorf("acquire realm connection: %w", err)
	}
	defer scope.Close()

	return fn(SetRealmScope(ctx, scope))
}

// WithoutRealm runs fn with an unrestricted connection. An existing
// unrestricted scope in ctx is reused.
func (p *ScopeProvider) WithoutRealm(ctx context.Context, fn func(ctx context.Context) error) error {
	if scope, ok := GetRealmScope(ctx); ok && !scope.Restricted() {
		return fn(ctx)
	}

	scope, err := p.db.WithoutRealm(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer scope.Close()

	return fn(SetRealmScope(ctx, scope))
}

// InTx runs fn inside a transaction on the scope already in ctx. Nested
// calls open a savepoint. The transaction commits when fn returns nil and
// rolls back otherwise.
func (p *ScopeProvider) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return InTx(ctx, fn)
}

// InTx is ScopeProvider.InTx without a provider, for callers that only hold ctx.
func InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetRealmScope(ctx)
	if !ok {
		return ErrNoScope
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txScope := &RealmScope{Conn: tx, GuildID: scope.GuildID, inTx: true}
	if err := fn(SetRealmScope(ctx, txScope)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
