//go:build integration

package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
)

func TestInventoryRepository_AddToHiveIsAdditive(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := tc.realmContext()
	hive := tc.createHive(ctx, 0)

	deposit := models.HiveDeposit{GuildID: tc.realm.GuildID, HiveID: hive.ID, Item: "Honey Comb", Quantity: 2}
	require.NoError(t, tc.items.AddToHive(ctx, []models.HiveDeposit{deposit, deposit}))
	require.NoError(t, tc.items.AddToHive(ctx, []models.HiveDeposit{{
		GuildID: tc.realm.GuildID, HiveID: hive.ID, Item: "Frozen Comb", Quantity: 1,
	}}))

	inv, err := tc.items.GetHive(ctx, hive.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, inv.Get("Honey Comb"))
	assert.Equal(t, 1, inv.Get("Frozen Comb"))
	assert.Equal(t, 0, inv.Get("Mossy Comb"))
}

func TestInventoryRepository_TransferConservesTotal(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := tc.realmContext()
	hive := tc.createHive(ctx, 0)

	require.NoError(t, tc.items.AddToUser(ctx, tc.realm, models.Inventory{"Honey Comb": 3}))
	require.NoError(t, tc.items.AddToHive(ctx, []models.HiveDeposit{
		{GuildID: tc.realm.GuildID, HiveID: hive.ID, Item: "Honey Comb", Quantity: 5},
		{GuildID: tc.realm.GuildID, HiveID: hive.ID, Item: "Wet Comb", Quantity: 2},
	}))

	before, err := tc.items.GetUser(ctx, tc.realm)
	require.NoError(t, err)
	hiveBefore, err := tc.items.GetHive(ctx, hive.ID)
	require.NoError(t, err)

	moved, err := tc.items.TransferHiveToUser(ctx, hive)
	require.NoError(t, err)
	assert.Equal(t, hiveBefore, moved)

	after, err := tc.items.GetUser(ctx, tc.realm)
	require.NoError(t, err)
	assert.Equal(t, hiveBefore.Total(), after.Total()-before.Total())
	assert.Equal(t, 8, after.Get("Honey Comb"))
	assert.Equal(t, 2, after.Get("Wet Comb"))

	hiveAfter, err := tc.items.GetHive(ctx, hive.ID)
	require.NoError(t, err)
	assert.True(t, hiveAfter.IsEmpty())
}

func TestInventoryRepository_RemoveFromUser(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := tc.realmContext()

	require.NoError(t, tc.items.AddToUser(ctx, tc.realm, models.Inventory{"Honey Comb": 3}))

	require.NoError(t, tc.items.RemoveFromUser(ctx, tc.realm, "Honey Comb", 2))

	err := tc.items.RemoveFromUser(ctx, tc.realm, "Honey Comb", 2)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientQuantity)

	err = tc.items.RemoveFromUser(ctx, tc.realm, "Rocky Comb", 1)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientQuantity)

	inv, err := tc.items.GetUser(ctx, tc.realm)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Get("Honey Comb"))
}
