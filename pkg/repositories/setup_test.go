//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/ekaya-inc/apiary-engine/pkg/database"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/testhelpers"
)

// repoTestContext holds test dependencies shared by the repository tests.
type repoTestContext struct {
	t        *testing.T
	engineDB *testhelpers.EngineDB
	realm    models.Realm
	bees     BeeRepository
	hives    HiveRepository
	items    InventoryRepository
	combos   CombinationRepository
}

func setupRepoTest(t *testing.T) *repoTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	realm := testhelpers.NewRealm()
	engineDB.CleanupGuild(t, realm.GuildID)

	return &repoTestContext{
		t:        t,
		engineDB: engineDB,
		realm:    realm,
		bees:     NewBeeRepository(),
		hives:    NewHiveRepository(),
		items:    NewInventoryRepository(),
		combos:   NewCombinationRepository(),
	}
}

// realmContext returns a context scoped to the test realm.
func (tc *repoTestContext) realmContext() context.Context {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.engineDB.DB.WithRealm(ctx, tc.realm.GuildID)
	if err != nil {
		tc.t.Fatalf("failed to create realm scope: %v", err)
	}
	tc.t.Cleanup(scope.Close)
	return database.SetRealmScope(ctx, scope)
}

// globalContext returns an unrestricted context, as the tick uses.
func (tc *repoTestContext) globalContext() context.Context {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.engineDB.DB.WithoutRealm(ctx)
	if err != nil {
		tc.t.Fatalf("failed to create scope: %v", err)
	}
	tc.t.Cleanup(scope.Close)
	return database.SetRealmScope(ctx, scope)
}

func (tc *repoTestContext) createHive(ctx context.Context, index int) *models.Hive {
	tc.t.Helper()
	hive := &models.Hive{GuildID: tc.realm.GuildID, OwnerID: tc.realm.UserID, Index: index}
	if err := tc.hives.Create(ctx, hive); err != nil {
		tc.t.Fatalf("failed to create hive: %v", err)
	}
	return hive
}

func (tc *repoTestContext) createBee(ctx context.Context, name, caste string) *models.Bee {
	tc.t.Helper()
	owner := tc.realm.UserID
	bee := &models.Bee{
		GuildID:   tc.realm.GuildID,
		OwnerID:   &owner,
		Name:      name,
		Type:      "forest",
		Caste:     caste,
		Speed:     10,
		Fertility: 1,
		Lifetime:  120,
	}
	if err := tc.bees.Create(ctx, bee); err != nil {
		tc.t.Fatalf("failed to create bee: %v", err)
	}
	return bee
}
