//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestEngineDB_MigrationsApplied(t *testing.T) {
	engineDB := GetEngineDB(t)
	ctx := context.Background()

	for _, table := range []string{
		"apiary_bees",
		"apiary_hives",
		"apiary_hive_inventory",
		"apiary_user_inventory",
		"apiary_discovered_combinations",
	} {
		var rlsEnabled, rlsForced bool
		err := engineDB.Admin.Pool.QueryRow(ctx, `
			SELECT relrowsecurity, relforcerowsecurity
			FROM pg_class
			WHERE relname = $1`, table).Scan(&rlsEnabled, &rlsForced)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
		if !rlsEnabled || !rlsForced {
			t.Errorf("expected forced row level security on %s", table)
		}
	}
}

func TestEngineDB_ConnectsAsAppRole(t *testing.T) {
	engineDB := GetEngineDB(t)
	ctx := context.Background()

	var user string
	var superuser bool
	err := engineDB.DB.Pool.QueryRow(ctx,
		"SELECT current_user, usesuper FROM pg_user WHERE usename = current_user").
		Scan(&user, &superuser)
	if err != nil {
		t.Fatalf("failed to query current user: %v", err)
	}
	if user != AppRole {
		t.Errorf("expected engine to connect as %s, got %s", AppRole, user)
	}
	if superuser {
		t.Error("app role must not be a superuser")
	}
}

func TestNewRealm_Unique(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		r := NewRealm()
		if seen[r.GuildID] {
			t.Fatalf("duplicate guild id %d", r.GuildID)
		}
		seen[r.GuildID] = true
	}
}
