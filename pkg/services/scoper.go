package services

import (
	"context"

	"github.com/ekaya-inc/apiary-engine/pkg/database"
)

// Scoper runs work with a database scope stored in the context.
// Repositories read the scope back with database.GetRealmScope.
type Scoper interface {
	// WithRealm confines fn to one guild's rows.
	WithRealm(ctx context.Context, guildID int64, fn func(ctx context.Context) error) error
	// WithoutRealm gives fn access to every guild. Used by the tick.
	WithoutRealm(ctx context.Context, fn func(ctx context.Context) error) error
	// InTx wraps fn in a transaction on the scope already in ctx.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Scoper = (*database.ScopeProvider)(nil)

// inRealmTx runs fn in one transaction confined to guildID.
func inRealmTx(ctx context.Context, s Scoper, guildID int64, fn func(ctx context.Context) error) error {
	return s.WithRealm(ctx, guildID, func(ctx context.Context) error {
		return s.InTx(ctx, fn)
	})
}
