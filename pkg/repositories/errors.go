package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// Constraint names that map to domain errors.
const (
	beeOwnerNameUnique = "apiary_bees_owner_name_unique"
	beeHiveQueenUnique = "apiary_bees_hive_queen_unique"
)

// translateError maps PostgreSQL errors to apperrors sentinels. Other errors
// are wrapped with op.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			switch pgErr.ConstraintName {
			case beeOwnerNameUnique:
				return fmt.Errorf("%s: %w", op, apperrors.ErrDuplicateName)
			case beeHiveQueenUnique:
				return fmt.Errorf("%s: %w", op, apperrors.ErrSlotOccupied)
			}
			return fmt.Errorf("%s: %w", op, apperrors.ErrConflict)
		case pgCheckViolation:
			return fmt.Errorf("%s: constraint %s: %w", op, pgErr.ConstraintName, apperrors.ErrConflict)
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}
