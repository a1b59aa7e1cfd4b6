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

// BeeRepository defines the interface for bee data access.
type BeeRepository interface {
	// Create inserts a bee, assigning an ID if it has none.
	Create(ctx context.Context, bee *models.Bee) error

	// CreateBatch inserts several bees in one round trip.
	CreateBatch(ctx context.Context, bees []*models.Bee) error

	// Update writes every mutable column of the bee, keyed by ID.
	Update(ctx context.Context, bee *models.Bee) error

	// GetByID retrieves a bee regardless of owner.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bee, error)

	// GetByIDForUpdate is GetByID holding the row lock until the
	// transaction ends. Callers that read a bee and write it back must use it.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Bee, error)

	// ListByOwner returns the user's bees ordered by creation.
	ListByOwner(ctx context.Context, realm models.Realm) ([]*models.Bee, error)

	// ListByHive returns the bees resident in a hive.
	ListByHive(ctx context.Context, hiveID uuid.UUID) ([]*models.Bee, error)

	// FindByName looks up one of the user's bees by name, ignoring case.
	FindByName(ctx context.Context, realm models.Realm, name string) (*models.Bee, error)

	// AgeHousedQueens adds one tick to every housed queen that is still
	// growing and returns the updated rows.
	AgeHousedQueens(ctx context.Context) ([]*models.Bee, error)

	// ListExpiredQueens returns housed queens whose lifetime is used up.
	ListExpiredQueens(ctx context.Context) ([]*models.Bee, error)

	// EvictHive clears the hive of every resident and returns how many left.
	EvictHive(ctx context.Context, hiveID uuid.UUID) (int, error)
}

type beeRepository struct{}

// NewBeeRepository creates a new BeeRepository.
func NewBeeRepository() BeeRepository {
	return &beeRepository{}
}

const beeColumns = `id, parent_ids, guild_id, owner_id, name, bee_type, caste,
	speed, fertility, lifetime, lived_lifetime, hive_id, created_at, updated_at`

const insertBeeQuery = `
	INSERT INTO apiary_bees (` + beeColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func prepareBee(bee *models.Bee, now time.Time) []any {
	if bee.ID == uuid.Nil {
		bee.ID = uuid.New()
	}
	if bee.ParentIDs == nil {
		bee.ParentIDs = []uuid.UUID{}
	}
	bee.CreatedAt = now
	bee.UpdatedAt = now

	return []any{
		bee.ID, bee.ParentIDs, bee.GuildID, bee.OwnerID, bee.Name, bee.Type, bee.Caste,
		bee.Speed, bee.Fertility, bee.Lifetime, bee.LivedLifetime, bee.HiveID,
		bee.CreatedAt, bee.UpdatedAt,
	}
}

func (r *beeRepository) Create(ctx context.Context, bee *models.Bee) error {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return fmt.Errorf("no realm scope in context")
	}

	_, err := scope.Conn.Exec(ctx, insertBeeQuery, prepareBee(bee, time.Now())...)
	if err != nil {
		return translateError(err, "create bee")
	}
	return nil
}

func (r *beeRepository) CreateBatch(ctx context.Context, bees []*models.Bee) error {
	if len(bees) == 0 {
		return nil
	}

	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return fmt.Errorf("no realm scope in context")
	}

	now := time.Now()
	batch := &pgx.Batch{}
	for _, bee := range bees {
		batch.Queue(insertBeeQuery, prepareBee(bee, now)...)
	}

	br := scope.Conn.SendBatch(ctx, batch)
	defer br.Close()

	for range bees {
		if _, err := br.Exec(); err != nil {
			return translateError(err, "batch insert bee")
		}
	}

	return nil
}

func (r *beeRepository) Update(ctx context.Context, bee *models.Bee) error {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return fmt.Errorf("no realm scope in context")
	}

	query := `
		UPDATE apiary_bees
		SET owner_id = $2, name = $3, bee_type = $4, caste = $5,
		    speed = $6, fertility = $7, lifetime = $8, lived_lifetime = $9, hive_id = $10
		WHERE id = $1
		RETURNING updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		bee.ID, bee.OwnerID, bee.Name, bee.Type, bee.Caste,
		bee.Speed, bee.Fertility, bee.Lifetime, bee.LivedLifetime, bee.HiveID,
	).Scan(&bee.UpdatedAt)
	if err != nil {
		return translateError(err, "update bee")
	}

	return nil
}

func (r *beeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bee, error) {
	return r.get(ctx, id, "")
}

func (r *beeRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Bee, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *beeRepository) get(ctx context.Context, id uuid.UUID, lock string) (*models.Bee, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	query := `SELECT ` + beeColumns + ` FROM apiary_bees WHERE id = $1` + lock

	bee, err := scanBee(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "get bee")
	}
	return bee, nil
}

func (r *beeRepository) ListByOwner(ctx context.Context, realm models.Realm) ([]*models.Bee, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	query := `
		SELECT ` + beeColumns + `
		FROM apiary_bees
		WHERE guild_id = $1 AND owner_id = $2
		ORDER BY created_at, id`

	rows, err := scope.Conn.Query(ctx, query, realm.GuildID, realm.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bees: %w", err)
	}
	return scanBeeRows(rows)
}

func (r *beeRepository) ListByHive(ctx context.Context, hiveID uuid.UUID) ([]*models.Bee, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	// Queen first, then brood.
	query := `
		SELECT ` + beeColumns + `
		FROM apiary_bees
		WHERE hive_id = $1
		ORDER BY (caste = 'Queen') DESC, (caste = 'Princess') DESC, created_at, id`

	rows, err := scope.Conn.Query(ctx, query, hiveID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hive bees: %w", err)
	}
	return scanBeeRows(rows)
}

func (r *beeRepository) FindByName(ctx context.Context, realm models.Realm, name string) (*models.Bee, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	query := `
		SELECT ` + beeColumns + `
		FROM apiary_bees
		WHERE guild_id = $1 AND owner_id = $2 AND LOWER(name) = LOWER($3)`

	bee, err := scanBee(scope.Conn.QueryRow(ctx, query, realm.GuildID, realm.UserID, name))
	if err != nil {
		return nil, translateError(err, "find bee by name")
	}
	return bee, nil
}

func (r *beeRepository) AgeHousedQueens(ctx context.Context) ([]*models.Bee, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	query := `
		UPDATE apiary_bees
		SET lived_lifetime = lived_lifetime + 1
		WHERE hive_id IS NOT NULL
		  AND owner_id IS NOT NULL
		  AND caste = 'Queen'
		  AND lived_lifetime < lifetime
		RETURNING ` + beeColumns

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to age queens: %w", err)
	}
	return scanBeeRows(rows)
}

func (r *beeRepository) ListExpiredQueens(ctx context.Context) ([]*models.Bee, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	query := `
		SELECT ` + beeColumns + `
		FROM apiary_bees
		WHERE hive_id IS NOT NULL
		  AND owner_id IS NOT NULL
		  AND caste = 'Queen'
		  AND lived_lifetime >= lifetime
		ORDER BY guild_id, owner_id, id`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired queens: %w", err)
	}
	return scanBeeRows(rows)
}

func (r *beeRepository) EvictHive(ctx context.Context, hiveID uuid.UUID) (int, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no realm scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `UPDATE apiary_bees SET hive_id = NULL WHERE hive_id = $1`, hiveID)
	if err != nil {
		return 0, fmt.Errorf("failed to evict hive: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanBee(row pgx.Row) (*models.Bee, error) {
	var b models.Bee
	err := row.Scan(
		&b.ID, &b.ParentIDs, &b.GuildID, &b.OwnerID, &b.Name, &b.Type, &b.Caste,
		&b.Speed, &b.Fertility, &b.Lifetime, &b.LivedLifetime, &b.HiveID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBeeRows(rows pgx.Rows) ([]*models.Bee, error) {
	defer rows.Close()

	bees := make([]*models.Bee, 0)
	for rows.Next() {
		b, err := scanBee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bee: %w", err)
		}
		bees = append(bees, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bees: %w", err)
	}
	return bees, nil
}

// Ensure beeRepository implements BeeRepository at compile time.
var _ BeeRepository = (*beeRepository)(nil)
