// Package testhelpers provides utilities for testing apiary-engine components.
package testhelpers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ekaya-inc/apiary-engine/pkg/models"
)

var realmSeq atomic.Int64

// NewRealm returns a guild and user pair no other test in the run uses.
func NewRealm() models.Realm {
	base := time.Now().UnixNano() / 1000
	n := realmSeq.Add(1)
	return models.Realm{GuildID: base + n, UserID: 1000 + n}
}

// CleanupGuild removes every row belonging to guildID. Registered with
// t.Cleanup so tests sharing the container stay independent.
func (e *EngineDB) CleanupGuild(t *testing.T, guildID int64) {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		for _, table := range []string{
			"apiary_discovered_combinations",
			"apiary_user_inventory",
			"apiary_hive_inventory",
			"apiary_bees",
			"apiary_hives",
		} {
			if _, err := e.Admin.Pool.Exec(ctx, "DELETE FROM "+table+" WHERE guild_id = $1", guildID); err != nil {
				t.Logf("cleanup %s for guild %d: %v", table, guildID, err)
			}
		}
	})
}
