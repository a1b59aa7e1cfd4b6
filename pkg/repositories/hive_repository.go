package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/apiary-engine/pkg/database"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
)

// HiveRepository defines the interface for hive data access.
type HiveRepository interface {
	// Create inserts a hive. A taken (guild, owner, index) slot returns ErrConflict.
	Create(ctx context.Context, hive *models.Hive) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Hive, error)
	// GetByIDForUpdate locks the hive row until the transaction ends.
	// Anything that changes who lives in a hive takes this lock first.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Hive, error)
	// ListByOwner returns the user's hives ordered by index.
	ListByOwner(ctx context.Context, realm models.Realm) ([]*models.Hive, error)
}

type hiveRepository struct{}

// NewHiveRepository creates a new HiveRepository.
func NewHiveRepository() HiveRepository {
	return &hiveRepository{}
}

func (r *hiveRepository) Create(ctx context.Context, hive *models.Hive) error {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return fmt.Errorf("no realm scope in context")
	}

	if hive.ID == uuid.Nil {
		hive.ID = uuid.New()
	}
	hive.CreatedAt = time.Now()

	query := `
		INSERT INTO apiary_hives (id, guild_id, owner_id, hive_index, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := scope.Conn.Exec(ctx, query, hive.ID, hive.GuildID, hive.OwnerID, hive.Index, hive.CreatedAt)
	if err != nil {
		return translateError(err, "create hive")
	}
	return nil
}

func (r *hiveRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Hive, error) {
	return r.get(ctx, id, "")
}

func (r *hiveRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Hive, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *hiveRepository) get(ctx context.Context, id uuid.UUID, lock string) (*models.Hive, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	query := `
		SELECT id, guild_id, owner_id, hive_index, created_at
		FROM apiary_hives
		WHERE id = $1` + lock

	hive, err := scanHive(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "get hive")
	}
	return hive, nil
}

func (r *hiveRepository) ListByOwner(ctx context.Context, realm models.Realm) ([]*models.Hive, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	query := `
		SELECT id, guild_id, owner_id, hive_index, created_at
		FROM apiary_hives
		WHERE guild_id = $1 AND owner_id = $2
		ORDER BY hive_index`

	rows, err := scope.Conn.Query(ctx, query, realm.GuildID, realm.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hives: %w", err)
	}
	defer rows.Close()

	hives := make([]*models.Hive, 0)
	for rows.Next() {
		h, err := scanHive(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hive: %w", err)
		}
		hives = append(hives, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hives: %w", err)
	}
	return hives, nil
}

func scanHive(row pgx.Row) (*models.Hive, error) {
	var h models.Hive
	if err := row.Scan(&h.ID, &h.GuildID, &h.OwnerID, &h.Index, &h.CreatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

var _ HiveRepository = (*hiveRepository)(nil)
