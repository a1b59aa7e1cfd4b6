package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
)

// Caste constants for a bee's role in the colony.
const (
	CasteDrone    = "Drone"
	CastePrincess = "Princess"
	CasteQueen    = "Queen"
)

// ValidCastes contains all valid caste values.
var ValidCastes = []string{CasteDrone, CastePrincess, CasteQueen}

// IsValidCaste checks if the given caste is valid.
func IsValidCaste(caste string) bool {
	for _, c := range ValidCastes {
		if c == caste {
			return true
		}
	}
	return false
}

// Bee represents one bee. A nil OwnerID means the bee was released or has
// died; the row is kept so lineage can still be followed.
type Bee struct {
	ID            uuid.UUID   `json:"id"`
	ParentIDs     []uuid.UUID `json:"parent_ids"`
	GuildID       int64       `json:"guild_id"`
	OwnerID       *int64      `json:"owner_id,omitempty"`
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	Caste         string      `json:"caste"`
	Speed         int         `json:"speed"`
	Fertility     int         `json:"fertility"`
	Lifetime      int         `json:"lifetime"`
	LivedLifetime int         `json:"lived_lifetime"`
	HiveID        *uuid.UUID  `json:"hive_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// DisplayName is the bee's name, or its ID when unnamed.
func (b *Bee) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID.String()
}

// IsOwnedBy reports whether the bee currently belongs to the realm's user.
func (b *Bee) IsOwnedBy(realm Realm) bool {
	return b.OwnerID != nil && *b.OwnerID == realm.UserID && b.GuildID == realm.GuildID
}

// IsHoused reports whether the bee sits in a hive.
func (b *Bee) IsHoused() bool {
	return b.HiveID != nil
}

// IsQueen reports whether the bee is a queen.
func (b *Bee) IsQueen() bool {
	return b.Caste == CasteQueen
}

// IsExpired reports whether a queen has used up her lifetime.
func (b *Bee) IsExpired() bool {
	return b.LivedLifetime >= b.Lifetime
}

// Disown clears ownership and hive together, keeping the row for lineage.
func (b *Bee) Disown() {
	b.OwnerID = nil
	b.HiveID = nil
}

// MaxBeeNameLength is the longest name a player may give a bee, in runes.
const MaxBeeNameLength = 32

// NormalizeBeeName trims name and checks it is printable and short enough.
func NormalizeBeeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty name: %w", apperrors.ErrInvalidName)
	}
	if n := utf8.RuneCountInString(name); n > MaxBeeNameLength {
		return "", fmt.Errorf("name is %d characters, at most %d allowed: %w", n, MaxBeeNameLength, apperrors.ErrInvalidName)
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("name contains unprintable characters: %w", apperrors.ErrInvalidName)
		}
	}
	return name, nil
}
