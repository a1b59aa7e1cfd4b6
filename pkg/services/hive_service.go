package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/repositories"
)

// ClearResult reports what clearing a hive moved.
type ClearResult struct {
	BeeCount int              `json:"bee_count"`
	Items    models.Inventory `json:"items"`
}

// HiveService manages hives, their residents and their stock.
type HiveService interface {
	// EnsureFirstHive gives a new player hive Alpha and returns all of the
	// user's hives.
	EnsureFirstHive(ctx context.Context, realm models.Realm) ([]*models.Hive, error)

	// Create opens the user's lowest free hive slot.
	Create(ctx context.Context, realm models.Realm) (*models.Hive, error)

	// List returns each of the user's hives with its bees and stock,
	// creating the first hive if the user has none.
	List(ctx context.Context, realm models.Realm) ([]*models.HiveDetails, error)

	// Get returns one hive with its bees and stock.
	Get(ctx context.Context, realm models.Realm, hiveID uuid.UUID) (*models.HiveDetails, error)

	// GetByName resolves a hive by its display name ("alpha", "Bravo").
	GetByName(ctx context.Context, realm models.Realm, name string) (*models.HiveDetails, error)

	// Place houses a queen in an empty hive.
	Place(ctx context.Context, realm models.Realm, beeID, hiveID uuid.UUID) error

	// Clear evicts every resident and moves the hive's stock to the owner.
	Clear(ctx context.Context, realm models.Realm, hiveID uuid.UUID) (*ClearResult, error)
}

type hiveService struct {
	scoper   Scoper
	hiveRepo repositories.HiveRepository
	beeRepo  repositories.BeeRepository
	invRepo  repositories.InventoryRepository
	logger   *zap.Logger
}

// NewHiveService creates a HiveService.
func NewHiveService(
	scoper Scoper,
	hiveRepo repositories.HiveRepository,
	beeRepo repositories.BeeRepository,
	invRepo repositories.InventoryRepository,
	logger *zap.Logger,
) HiveService {
	return &hiveService{
		scoper:   scoper,
		hiveRepo: hiveRepo,
		beeRepo:  beeRepo,
		invRepo:  invRepo,
		logger:   logger.Named("hive-service"),
	}
}

var _ HiveService = (*hiveService)(nil)

func (s *hiveService) EnsureFirstHive(ctx context.Context, realm models.Realm) ([]*models.Hive, error) {
	var hives []*models.Hive
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		var err error
		hives, err = s.ensureFirstHive(ctx, realm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hives, nil
}

func (s *hiveService) ensureFirstHive(ctx context.Context, realm models.Realm) ([]*models.Hive, error) {
	hives, err := s.hiveRepo.ListByOwner(ctx, realm)
	if err != nil {
		return nil, err
	}
	if len(hives) > 0 {
		return hives, nil
	}

	hive := &models.Hive{Index: 0, GuildID: realm.GuildID, OwnerID: realm.UserID}
	err = s.hiveRepo.Create(ctx, hive)
	switch {
	case err == nil:
		s.logger.Info("First hive created",
			zap.Int64("guild_id", realm.GuildID),
			zap.Int64("user_id", realm.UserID),
			zap.String("hive_id", hive.ID.String()))
		return []*models.Hive{hive}, nil
	case errors.Is(err, apperrors.ErrConflict):
		// Another request created it first.
		return s.hiveRepo.ListByOwner(ctx, realm)
	default:
		return nil, err
	}
}

func (s *hiveService) Create(ctx context.Context, realm models.Realm) (*models.Hive, error) {
	var hive *models.Hive
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		hives, err := s.hiveRepo.ListByOwner(ctx, realm)
		if err != nil {
			return err
		}

		index, ok := lowestFreeIndex(hives)
		if !ok {
			return fmt.Errorf("%d hives: %w", len(hives), apperrors.ErrHiveLimitReached)
		}

		hive = &models.Hive{Index: index, GuildID: realm.GuildID, OwnerID: realm.UserID}
		return s.hiveRepo.Create(ctx, hive)
	})
	if err != nil {
		return nil, fmt.Errorf("create hive: %w", err)
	}

	s.logger.Info("Hive created",
		zap.Int64("guild_id", realm.GuildID),
		zap.Int64("user_id", realm.UserID),
		zap.String("hive", hive.Name()))
	return hive, nil
}

func lowestFreeIndex(hives []*models.Hive) (int, bool) {
	used := make(map[int]bool, len(hives))
	for _, h := range hives {
		used[h.Index] = true
	}
	for i := 0; i < models.MaxHivesPerOwner; i++ {
		if !used[i] {
			return i, true
		}
	}
	return 0, false
}

func (s *hiveService) List(ctx context.Context, realm models.Realm) ([]*models.HiveDetails, error) {
	var details []*models.HiveDetails
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		hives, err := s.ensureFirstHive(ctx, realm)
		if err != nil {
			return err
		}

		details = make([]*models.HiveDetails, 0, len(hives))
		for _, h := range hives {
			d, err := s.details(ctx, h)
			if err != nil {
				return err
			}
			details = append(details, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list hives: %w", err)
	}
	return details, nil
}

func (s *hiveService) Get(ctx context.Context, realm models.Realm, hiveID uuid.UUID) (*models.HiveDetails, error) {
	var d *models.HiveDetails
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		hive, err := s.ownedHive(ctx, realm, hiveID)
		if err != nil {
			return err
		}
		d, err = s.details(ctx, hive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *hiveService) GetByName(ctx context.Context, realm models.Realm, name string) (*models.HiveDetails, error) {
	index, err := models.ParseHiveName(name)
	if err != nil {
		return nil, err
	}

	var d *models.HiveDetails
	err = s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		hives, err := s.hiveRepo.ListByOwner(ctx, realm)
		if err != nil {
			return err
		}
		for _, h := range hives {
			if h.Index == index {
				d, err = s.details(ctx, h)
				return err
			}
		}
		return fmt.Errorf("hive %s: %w", models.HiveNames[index], apperrors.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *hiveService) Place(ctx context.Context, realm models.Realm, beeID, hiveID uuid.UUID) error {
	var hive *models.Hive
	err := inRealmTx(ctx, s.scoper, realm.GuildID, func(ctx context.Context) error {
		var err error
		hive, err = s.lockOwnedHive(ctx, realm, hiveID)
		if err != nil {
			return err
		}

		bee, err := s.beeRepo.GetByIDForUpdate(ctx, beeID)
		if err != nil {
			return err
		}
		if !bee.IsOwnedBy(realm) {
			return fmt.Errorf("bee %s: %w", beeID, apperrors.ErrNotFound)
		}

		if !bee.IsQueen() {
			return fmt.Errorf("%s is a %s: %w", bee.DisplayName(), bee.Caste, apperrors.ErrInvalidCaste)
		}
		if bee.IsHoused() {
			return apperrors.ErrAlreadyHoused
		}

		residents, err := s.beeRepo.ListByHive(ctx, hive.ID)
		if err != nil {
			return err
		}
		for _, r := range residents {
			if r.IsQueen() {
				return fmt.Errorf("hive %s: %w", hive.Name(), apperrors.ErrSlotOccupied)
			}
		}

		bee.HiveID = &hive.ID
		return s.beeRepo.Update(ctx, bee)
	})
	if err != nil {
		return fmt.Errorf("place bee: %w", err)
	}

	s.logger.Info("Queen placed",
		zap.Int64("guild_id", realm.GuildID),
		zap.Int64("user_id", realm.UserID),
		zap.String("bee_id", beeID.String()),
		zap.String("hive", hive.Name()))
	return nil
}

func (s *hiveService) Clear(ctx context.Context, realm models.Realm, hiveID uuid.UUID) (*ClearResult, error) {
	result := &ClearResult{}
	err := inRealmTx(ctx, s.scoper, realm.GuildID, func(ctx context.Context) error {
		hive, err := s.lockOwnedHive(ctx, realm, hiveID)
		if err != nil {
			return err
		}

		result.BeeCount, err = s.beeRepo.EvictHive(ctx, hive.ID)
		if err != nil {
			return err
		}

		result.Items, err = s.invRepo.TransferHiveToUser(ctx, hive)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("clear hive: %w", err)
	}

	s.logger.Info("Hive cleared",
		zap.Int64("guild_id", realm.GuildID),
		zap.Int64("user_id", realm.UserID),
		zap.String("hive_id", hiveID.String()),
		zap.Int("bees", result.BeeCount),
		zap.Int("items", result.Items.Total()))
	return result, nil
}

func (s *hiveService) ownedHive(ctx context.Context, realm models.Realm, hiveID uuid.UUID) (*models.Hive, error) {
	hive, err := s.hiveRepo.GetByID(ctx, hiveID)
	if err != nil {
		return nil, err
	}
	if !hive.IsOwnedBy(realm) {
		return nil, fmt.Errorf("hive %s: %w", hiveID, apperrors.ErrNotFound)
	}
	return hive, nil
}

// lockOwnedHive is ownedHive holding the hive's row lock. Take it before
// locking any bee in the same transaction.
func (s *hiveService) lockOwnedHive(ctx context.Context, realm models.Realm, hiveID uuid.UUID) (*models.Hive, error) {
	hive, err := s.hiveRepo.GetByIDForUpdate(ctx, hiveID)
	if err != nil {
		return nil, err
	}
	if !hive.IsOwnedBy(realm) {
		return nil, fmt.Errorf("hive %s: %w", hiveID, apperrors.ErrNotFound)
	}
	return hive, nil
}

func (s *hiveService) details(ctx context.Context, hive *models.Hive) (*models.HiveDetails, error) {
	bees, err := s.beeRepo.ListByHive(ctx, hive.ID)
	if err != nil {
		return nil, err
	}
	inv, err := s.invRepo.GetHive(ctx, hive.ID)
	if err != nil {
		return nil, err
	}
	return &models.HiveDetails{Hive: hive, Bees: bees, Inventory: inv}, nil
}
