package models

import "time"

// DiscoveredCombination records a breeding outcome a user has observed.
// Left and Right are stored in lexical order so each unordered pair has one row.
type DiscoveredCombination struct {
	GuildID      int64     `json:"guild_id"`
	OwnerID      int64     `json:"owner_id"`
	LeftType     string    `json:"left_type"`
	RightType    string    `json:"right_type"`
	ResultType   string    `json:"result_type"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// NewDiscoveredCombination normalizes the parent order.
func NewDiscoveredCombination(realm Realm, left, right, result string) *DiscoveredCombination {
	if right < left {
		left, right = right, left
	}
	return &DiscoveredCombination{
		GuildID:    realm.GuildID,
		OwnerID:    realm.UserID,
		LeftType:   left,
		RightType:  right,
		ResultType: result,
	}
}

// CombinationEdge is one possible breeding outcome, flagged with whether the
// user has already seen it. Used to render a discovery map.
type CombinationEdge struct {
	LeftType   string `json:"left_type"`
	RightType  string `json:"right_type"`
	ResultType string `json:"result_type"`
	Discovered bool   `json:"discovered"`
}
