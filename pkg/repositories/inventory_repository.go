package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
	"github.com/ekaya-inc/apiary-engine/pkg/database"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
)

// InventoryRepository defines data access for hive and user inventories.
// Absent rows read as zero quantity.
type InventoryRepository interface {
	// AddToHive applies additive deposits in one batch.
	AddToHive(ctx context.Context, deposits []models.HiveDeposit) error

	// GetHive returns a hive's non-zero stock.
	GetHive(ctx context.Context, hiveID uuid.UUID) (models.Inventory, error)

	// GetUser returns the user's non-zero stock.
	GetUser(ctx context.Context, realm models.Realm) (models.Inventory, error)

	// AddToUser merges items into the user's inventory.
	AddToUser(ctx context.Context, realm models.Realm, items models.Inventory) error

	// RemoveFromUser takes quantity of item from the user, failing with
	// ErrInsufficientQuantity when they hold less.
	RemoveFromUser(ctx context.Context, realm models.Realm, item string, quantity int) error

	// TransferHiveToUser moves a hive's whole stock into the owner's
	// inventory and returns what was moved. Atomic.
	TransferHiveToUser(ctx context.Context, hive *models.Hive) (models.Inventory, error)
}

type inventoryRepository struct{}

// NewInventoryRepository creates a new InventoryRepository.
func NewInventoryRepository() InventoryRepository {
	return &inventoryRepository{}
}

func (r *inventoryRepository) AddToHive(ctx context.Context, deposits []models.HiveDeposit) error {
	if len(deposits) == 0 {
		return nil
	}

	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return fmt.Errorf("no realm scope in context")
	}

	query := `
		INSERT INTO apiary_hive_inventory (hive_id, guild_id, item_name, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hive_id, item_name)
		DO UPDATE SET quantity = apiary_hive_inventory.quantity + EXCLUDED.quantity`

	batch := &pgx.Batch{}
	queued := 0
	for _, d := range deposits {
		if d.Quantity < 0 {
			return fmt.Errorf("negative deposit of %q into hive %s", d.Item, d.HiveID)
		}
		if d.Quantity == 0 {
			continue
		}
		batch.Queue(query, d.HiveID, d.GuildID, d.Item, d.Quantity)
		queued++
	}
	if queued == 0 {
		return nil
	}

	br := scope.Conn.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to deposit into hive: %w", err)
		}
	}
	return nil
}

func (r *inventoryRepository) GetHive(ctx context.Context, hiveID uuid.UUID) (models.Inventory, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT item_name, quantity
		FROM apiary_hive_inventory
		WHERE hive_id = $1 AND quantity > 0`, hiveID)
	if err != nil {
		return nil, fmt.Errorf("failed to get hive inventory: %w", err)
	}
	return scanInventory(rows)
}

func (r *inventoryRepository) GetUser(ctx context.Context, realm models.Realm) (models.Inventory, error) {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no realm scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT item_name, quantity
		FROM apiary_user_inventory
		WHERE guild_id = $1 AND user_id = $2 AND quantity > 0`, realm.GuildID, realm.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user inventory: %w", err)
	}
	return scanInventory(rows)
}

func (r *inventoryRepository) AddToUser(ctx context.Context, realm models.Realm, items models.Inventory) error {
	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return fmt.Errorf("no realm scope in context")
	}
	return addToUser(ctx, scope.Conn, realm, items)
}

func addToUser(ctx context.Context, conn database.Querier, realm models.Realm, items models.Inventory) error {
	query := `
		INSERT INTO apiary_user_inventory (guild_id, user_id, item_name, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, user_id, item_name)
		DO UPDATE SET quantity = apiary_user_inventory.quantity + EXCLUDED.quantity`

	batch := &pgx.Batch{}
	for _, item := range items.Items() {
		batch.Queue(query, realm.GuildID, realm.UserID, item.Name, item.Quantity)
	}
	if batch.Len() == 0 {
		return nil
	}

	br := conn.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to add to user inventory: %w", err)
		}
	}
	return nil
}

func (r *inventoryRepository) RemoveFromUser(ctx context.Context, realm models.Realm, item string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	scope, ok := database.GetRealmScope(ctx)
	if !ok {
		return fmt.Errorf("no realm scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE apiary_user_inventory
		SET quantity = quantity - $4
		WHERE guild_id = $1 AND user_id = $2 AND item_name = $3 AND quantity >= $4`,
		realm.GuildID, realm.UserID, item, quantity)
	if err != nil {
		return fmt.Errorf("failed to remove from user inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%d of %q: %w", quantity, item, apperrors.ErrInsufficientQuantity)
	}
	return nil
}

func (r *inventoryRepository) TransferHiveToUser(ctx context.Context, hive *models.Hive) (models.Inventory, error) {
	var moved models.Inventory

	err := database.InTx(ctx, func(ctx context.Context) error {
		scope, _ := database.GetRealmScope(ctx)

		rows, err := scope.Conn.Query(ctx, `
			DELETE FROM apiary_hive_inventory
			WHERE hive_id = $1
			RETURNING item_name, quantity`, hive.ID)
		if err != nil {
			return fmt.Errorf("failed to empty hive inventory: %w", err)
		}
		moved, err = scanInventory(rows)
		if err != nil {
			return err
		}

		owner := models.Realm{GuildID: hive.GuildID, UserID: hive.OwnerID}
		return addToUser(ctx, scope.Conn, owner, moved)
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func scanInventory(rows pgx.Rows) (models.Inventory, error) {
	defer rows.Close()

	inv := models.Inventory{}
	for rows.Next() {
		var item string
		var qty int
		if err := rows.Scan(&item, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan inventory row: %w", err)
		}
		if err := inv.Add(item, qty); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory: %w", err)
	}
	return inv, nil
}

var _ InventoryRepository = (*inventoryRepository)(nil)
