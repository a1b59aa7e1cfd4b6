package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
)

// HiveNames are the display names of an owner's hives, indexed by slot.
var HiveNames = [...]string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel", "India",
	"Juliet", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa", "Quebec", "Romeo",
	"Sierra", "Tango", "Uniform", "Victor", "Whiskey", "Xray", "Yankee", "Zulu",
}

// MaxHivesPerOwner is the number of hive slots an owner can fill.
const MaxHivesPerOwner = len(HiveNames)

// Hive is a container owned by one user in one guild.
// Residents are found by their hive_id; the hive keeps no bee references.
type Hive struct {
	ID        uuid.UUID `json:"id"`
	Index     int       `json:"index"`
	GuildID   int64     `json:"guild_id"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Name is the display name derived from the slot index.
func (h *Hive) Name() string {
	if h.Index < 0 || h.Index >= len(HiveNames) {
		return fmt.Sprintf("Hive %d", h.Index)
	}
	return HiveNames[h.Index]
}

// IsOwnedBy reports whether the hive belongs to the realm's user.
func (h *Hive) IsOwnedBy(realm Realm) bool {
	return h.OwnerID == realm.UserID && h.GuildID == realm.GuildID
}

// HiveDetails is a hive together with its residents and stock.
type HiveDetails struct {
	Hive      *Hive     `json:"hive"`
	Bees      []*Bee    `json:"bees"`
	Inventory Inventory `json:"inventory"`
}

// Queen returns the resident queen, or nil if the slot is empty.
func (d *HiveDetails) Queen() *Bee {
	for _, b := range d.Bees {
		if b.IsQueen() {
			return b
		}
	}
	return nil
}

// ParseHiveName resolves a hive name to its slot index, ignoring case.
// Unknown names return ErrNotFound, mentioning the closest name when one is
// near enough to be a typo.
func ParseHiveName(name string) (int, error) {
	input := strings.ToLower(strings.TrimSpace(name))
	for i, n := range HiveNames {
		if strings.ToLower(n) == input {
			return i, nil
		}
	}

	if best, ok := genetics.Closest(input, HiveNames[:]); ok {
		return -1, fmt.Errorf("hive %q (did you mean %q?): %w", name, best, apperrors.ErrNotFound)
	}
	return -1, fmt.Errorf("hive %q: %w", name, apperrors.ErrNotFound)
}
