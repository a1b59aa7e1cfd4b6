package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ekaya-inc/apiary-engine/pkg/database"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
)

// CombinationRepository stores the breeding outcomes each user has seen.
type CombinationRepository interface {
	// Record inserts the combination unless the user already has a row for
	// the same unordered pair. Reports whether a row was inserted.
	Record(ctx context.Context, combo *models.DiscoveredCombination) (bool, error)

	// ListByOwner returns the user's discoveries, oldest first.
	ListByOwner(ctx context.Context, realm models.Realm) ([]*models.DiscoveredCombination, error)
}

type combinationRepository struct{}

// NewCombinationRepository creates a new CombinationRepository.
func NewCombinationRepository() CombinationRepository {
	return &combinationRepository{}
}

func (r *combinationRepository) Record(ctx context.Context, combo *models.DiscoveredCombination) (bool, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return false, fmt.Errorf("no realm scope in context")
	}

	left, right := combo.LeftType, combo.RightType
	if right < left {
		left, right = right, left
	}
	combo.LeftType, combo.RightType = left, right
	if combo.DiscoveredAt.IsZero() {
		combo.DiscoveredAt = time.Now()
	}

	tag, err := scope.Conn.Exec(ctx, `
		INSERT INTO apiary_discovered_combinations
			(guild_id, owner_id, left_type, right_type, result_type, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guild_id, owner_id, left_type, right_type) DO NOTHING`,
		combo.GuildID, combo.OwnerID, combo.LeftType, combo.RightType, combo.ResultType, combo.DiscoveredAt)
	if err != nil {
		return false, fmt.Errorf("failed to record combination: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *combinationRepository) ListByOwner(ctx context.Context, realm models.Realm) ([]*models.DiscoveredCombination, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT guild_id, owner_id, left_type, right_type, result_type, discovered_at
		FROM apiary_discovered_combinations
		WHERE guild_id = $1 AND owner_id = $2
		ORDER BY discovered_at, left_type, right_type`, realm.GuildID, realm.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list combinations: %w", err)
	}
	defer rows.Close()

	combos := make([]*models.DiscoveredCombination, 0)
	for rows.Next() {
		var c models.DiscoveredCombination
		if err := rows.Scan(&c.GuildID, &c.OwnerID, &c.LeftType, &c.RightType, &c.ResultType, &c.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan combination: %w", err)
		}
		combos = append(combos, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating combinations: %w", err)
	}
	return combos, nil
}

var _ CombinationRepository = (*combinationRepository)(nil)
