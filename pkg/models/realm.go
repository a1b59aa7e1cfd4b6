// Package models contains domain types for apiary-engine.
package models

// Realm identifies who is acting and in which guild. The Command Surface
// supplies it on every call; all bee, hive and inventory data is scoped to
// the guild.
type Realm struct {
	GuildID int64 `json:"guild_id"`
	UserID  int64 `json:"user_id"`
}
