package models

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombItemName(t *testing.T) {
	assert.Equal(t, "Honey Comb", CombItemName("honey"))
	assert.Equal(t, "Dripping Comb", CombItemName("DRIPPING"))
	assert.Equal(t, "", CombItemName(""))
	assert.Equal(t, "Éclair Comb", CombItemName("éclair"))
	assert.Equal(t, "Ølby Comb", CombItemName(" ØLBY "))
}

func TestCombItemName_RoundTripsMultiByteCombs(t *testing.T) {
	item := CombItemName("ámbar")
	assert.True(t, utf8.ValidString(item))

	comb, ok := CombFromItemName(item)
	require.True(t, ok)
	assert.Equal(t, "ámbar", comb)
}

func TestCombFromItemName(t *testing.T) {
	comb, ok := CombFromItemName("Silky Comb")
	require.True(t, ok)
	assert.Equal(t, "silky", comb)

	_, ok = CombFromItemName(CurrencyItem)
	assert.False(t, ok)

	_, ok = CombFromItemName(" Comb")
	assert.False(t, ok)
}

func TestInventory_GetMissingReadsZeroWithoutMaterializing(t *testing.T) {
	inv := Inventory{"Honey Comb": 3}

	assert.Equal(t, 0, inv.Get("Frozen Comb"))
	assert.Equal(t, 0, inv.Get("Frozen Comb"))
	assert.Len(t, inv, 1)
	_, present := inv["Frozen Comb"]
	assert.False(t, present)

	var empty Inventory
	assert.Equal(t, 0, empty.Get("anything"))
	assert.True(t, empty.IsEmpty())
}

func TestInventory_AddRejectsNegative(t *testing.T) {
	inv := Inventory{}

	require.NoError(t, inv.Add("Honey Comb", 2))
	require.NoError(t, inv.Add("Honey Comb", 0))
	assert.Error(t, inv.Add("Honey Comb", -1))
	assert.Equal(t, 2, inv.Get("Honey Comb"))
	assert.Len(t, inv, 1)
}

func TestInventory_MergeConservesTotal(t *testing.T) {
	user := Inventory{"Honey Comb": 1, CurrencyItem: 10}
	hive := Inventory{"Honey Comb": 4, "Wet Comb": 2, "Mossy Comb": 0}

	before := user.Total()
	user.Merge(hive)

	assert.Equal(t, before+hive.Total(), user.Total())
	assert.Equal(t, 5, user.Get("Honey Comb"))
	assert.Equal(t, 2, user.Get("Wet Comb"))
	_, present := user["Mossy Comb"]
	assert.False(t, present)
}

func TestInventory_ItemsSkipsZeroAndSorts(t *testing.T) {
	inv := Inventory{"Wet Comb": 2, "Honey Comb": 1, "Rocky Comb": 0}

	assert.Equal(t, []Item{
		{Name: "Honey Comb", Quantity: 1},
		{Name: "Wet Comb", Quantity: 2},
	}, inv.Items())
}
