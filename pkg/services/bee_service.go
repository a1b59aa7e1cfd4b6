package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
	"github.com/ekaya-inc/apiary-engine/pkg/logging"
	"github.com/ekaya-inc/apiary-engine/pkg/metrics"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/names"
	"github.com/ekaya-inc/apiary-engine/pkg/repositories"
)

// catchAttempts bounds retries when a freshly picked name collides with a
// concurrent insert for the same owner.
const catchAttempts = 3

// BeeService owns the bee lifecycle: catching, breeding, death and the
// small management operations the Command Surface offers.
type BeeService interface {
	// Catch adds a wild bee of a random mundane type to the user.
	// An empty caste catches a Drone.
	Catch(ctx context.Context, realm models.Realm, caste string) (*models.Bee, error)

	// Get returns one of the user's bees. Bees owned by anyone else, or by
	// no one, are reported as not found.
	Get(ctx context.Context, realm models.Realm, beeID uuid.UUID) (*models.Bee, error)

	// List returns every bee the user owns, oldest first.
	List(ctx context.Context, realm models.Realm) ([]*models.Bee, error)

	// Find resolves a bee by ID or, failing that, by case-insensitive name.
	Find(ctx context.Context, realm models.Realm, idOrName string) (*models.Bee, error)

	// Rename changes a bee's name. Names are unique per owner.
	Rename(ctx context.Context, realm models.Realm, beeID uuid.UUID, name string) (*models.Bee, error)

	// Release gives a bee back to the wild. The row is kept for lineage.
	Release(ctx context.Context, realm models.Realm, beeID uuid.UUID) error

	// Breed combines a princess and a drone into a new queen. Both parents
	// leave the user and the pairing is recorded as discovered.
	Breed(ctx context.Context, realm models.Realm, beeA, beeB uuid.UUID) (*models.Bee, error)

	// Die ends a queen's life, leaving a princess and Fertility drones in
	// her hive plus one comb of her type. Returns the brood.
	// Runs unrestricted since the tick calls it across guilds.
	Die(ctx context.Context, beeID uuid.UUID) ([]*models.Bee, error)
}

type beeService struct {
	scoper    Scoper
	beeRepo   repositories.BeeRepository
	hiveRepo  repositories.HiveRepository
	comboRepo repositories.CombinationRepository
	invRepo   repositories.InventoryRepository
	catalog   *genetics.Catalog
	namer     *names.Generator
	dice      genetics.Dice
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewBeeService creates a BeeService.
func NewBeeService(
	scoper Scoper,
	beeRepo repositories.BeeRepository,
	hiveRepo repositories.HiveRepository,
	comboRepo repositories.CombinationRepository,
	invRepo repositories.InventoryRepository,
	catalog *genetics.Catalog,
	namer *names.Generator,
	dice genetics.Dice,
	m *metrics.Metrics,
	logger *zap.Logger,
) BeeService {
	return &beeService{
		scoper:    scoper,
		beeRepo:   beeRepo,
		hiveRepo:  hiveRepo,
		comboRepo: comboRepo,
		invRepo:   invRepo,
		catalog:   catalog,
		namer:     namer,
		dice:      dice,
		metrics:   m,
		logger:    logger.Named("bee-service"),
	}
}

var _ BeeService = (*beeService)(nil)

func (s *beeService) Catch(ctx context.Context, realm models.Realm, caste string) (*models.Bee, error) {
	if caste == "" {
		caste = models.CasteDrone
	}
	if !models.IsValidCaste(caste) {
		return nil, fmt.Errorf("caste %q: %w", caste, apperrors.ErrInvalidCaste)
	}

	mundane := s.catalog.Mundane()
	bt := mundane[s.dice.IntN(len(mundane))]

	var bee *models.Bee
	var err error
	for attempt := 1; attempt <= catchAttempts; attempt++ {
		err = s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
			taken, err := s.takenNames(ctx, realm)
			if err != nil {
				return err
			}

			owner := realm.UserID
			bee = &models.Bee{
				GuildID:   realm.GuildID,
				OwnerID:   &owner,
				Name:      s.namer.Pick(s.dice, taken),
				Type:      bt.Name,
				Caste:     caste,
				Speed:     genetics.WildStats.Speed,
				Fertility: genetics.WildStats.Fertility,
				Lifetime:  genetics.WildStats.Lifetime,
			}
			return s.beeRepo.Create(ctx, bee)
		})
		if !errors.Is(err, apperrors.ErrDuplicateName) {
			break
		}
		s.logger.Debug("Wild bee name collided, picking another",
			zap.Int64("guild_id", realm.GuildID),
			zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, fmt.Errorf("catch bee: %w", err)
	}

	s.logger.Info("Bee caught",
		zap.Int64("guild_id", realm.GuildID),
		zap.Int64("user_id", realm.UserID),
		zap.String("bee_id", bee.ID.String()),
		zap.String("type", bee.Type),
		zap.String("caste", bee.Caste))
	return bee, nil
}

func (s *beeService) Get(ctx context.Context, realm models.Realm, beeID uuid.UUID) (*models.Bee, error) {
	var bee *models.Bee
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		var err error
		bee, err = s.ownedBee(ctx, realm, beeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bee, nil
}

func (s *beeService) List(ctx context.Context, realm models.Realm) ([]*models.Bee, error) {
	var bees []*models.Bee
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		var err error
		bees, err = s.beeRepo.ListByOwner(ctx, realm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bees, nil
}

func (s *beeService) Find(ctx context.Context, realm models.Realm, idOrName string) (*models.Bee, error) {
	idOrName = strings.TrimSpace(idOrName)
	if id, err := uuid.Parse(idOrName); err == nil {
		bee, err := s.Get(ctx, realm, id)
		if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
			return bee, err
		}
	}

	var bee *models.Bee
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		var err error
		bee, err = s.beeRepo.FindByName(ctx, realm, idOrName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bee %q: %w", logging.SanitizeName(idOrName), err)
	}
	return bee, nil
}

func (s *beeService) Rename(ctx context.Context, realm models.Realm, beeID uuid.UUID, name string) (*models.Bee, error) {
	name, err := models.NormalizeBeeName(name)
	if err != nil {
		return nil, err
	}

	var bee *models.Bee
	err = inRealmTx(ctx, s.scoper, realm.GuildID, func(ctx context.Context) error {
		var err error
		bee, err = s.lockOwnedBee(ctx, realm, beeID)
		if err != nil {
			return err
		}
		bee.Name = name
		return s.beeRepo.Update(ctx, bee)
	})
	if err != nil {
		return nil, fmt.Errorf("rename bee: %w", err)
	}
	return bee, nil
}

func (s *beeService) Release(ctx context.Context, realm models.Realm, beeID uuid.UUID) error {
	err := inRealmTx(ctx, s.scoper, realm.GuildID, func(ctx context.Context) error {
		bee, err := s.lockOwnedBee(ctx, realm, beeID)
		if err != nil {
			return err
		}
		bee.Disown()
		return s.beeRepo.Update(ctx, bee)
	})
	if err != nil {
		return fmt.Errorf("release bee: %w", err)
	}

	s.logger.Info("Bee released",
		zap.Int64("guild_id", realm.GuildID),
		zap.Int64("user_id", realm.UserID),
		zap.String("bee_id", beeID.String()))
	return nil
}

func (s *beeService) Breed(ctx context.Context, realm models.Realm, beeA, beeB uuid.UUID) (*models.Bee, error) {
	if beeA == beeB {
		return nil, apperrors.ErrInvalidCastePairing
	}

	var queen *models.Bee
	err := inRealmTx(ctx, s.scoper, realm.GuildID, func(ctx context.Context) error {
		a, b, err := s.lockOwnedPair(ctx, realm, beeA, beeB)
		if err != nil {
			return err
		}

		princess, drone, ok := breedingPair(a, b)
		if !ok {
			return apperrors.ErrInvalidCastePairing
		}

		princessType, err := s.beeType(princess)
		if err != nil {
			return err
		}
		droneType, err := s.beeType(drone)
		if err != nil {
			return err
		}

		child := s.catalog.Resolve(princessType, droneType, s.dice)
		stats := genetics.InheritStats(beeStats(princess), beeStats(drone), s.dice)

		// Parents leave first so the queen can take the princess's name.
		for _, parent := range []*models.Bee{princess, drone} {
			parent.Disown()
			if err := s.beeRepo.Update(ctx, parent); err != nil {
				return err
			}
		}

		owner := realm.UserID
		queen = &models.Bee{
			ParentIDs: []uuid.UUID{princess.ID, drone.ID},
			GuildID:   realm.GuildID,
			OwnerID:   &owner,
			Name:      princess.Name,
			Type:      child.Name,
			Caste:     models.CasteQueen,
			Speed:     stats.Speed,
			Fertility: stats.Fertility,
			Lifetime:  stats.Lifetime,
		}
		if err := s.beeRepo.Create(ctx, queen); err != nil {
			return err
		}

		combo := models.NewDiscoveredCombination(realm, princessType.Name, droneType.Name, child.Name)
		if _, err := s.comboRepo.Record(ctx, combo); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("breed bees: %w", err)
	}

	s.metrics.Breeds.WithLabelValues(queen.Type).Inc()
	s.logger.Info("Queen bred",
		zap.Int64("guild_id", realm.GuildID),
		zap.Int64("user_id", realm.UserID),
		zap.String("bee_id", queen.ID.String()),
		zap.String("type", queen.Type),
		zap.Int("speed", queen.Speed),
		zap.Int("fertility", queen.Fertility),
		zap.Int("lifetime", queen.Lifetime))
	return queen, nil
}

func (s *beeService) Die(ctx context.Context, beeID uuid.UUID) ([]*models.Bee, error) {
	var queen *models.Bee
	var brood []*models.Bee

	err := s.scoper.WithoutRealm(ctx, func(ctx context.Context) error {
		return s.scoper.InTx(ctx, func(ctx context.Context) error {
			var err error
			queen, err = s.lockQueen(ctx, beeID)
			if err != nil {
				return err
			}
			brood, err = s.die(ctx, queen)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bee %s death: %w", beeID, err)
	}

	s.metrics.QueenDeaths.Inc()
	s.logger.Info("Queen died",
		zap.Int64("guild_id", queen.GuildID),
		zap.String("bee_id", queen.ID.String()),
		zap.String("type", queen.Type),
		zap.Int("brood", len(brood)))
	return brood, nil
}

// die applies a queen's death inside the caller's transaction. queen is
// left disowned.
func (s *beeService) die(ctx context.Context, queen *models.Bee) ([]*models.Bee, error) {
	if !queen.IsQueen() {
		return nil, fmt.Errorf("%s is a %s: %w", queen.ID, queen.Caste, apperrors.ErrInvalidCaste)
	}
	if queen.OwnerID == nil {
		return nil, fmt.Errorf("queen %s has already died or been released: %w", queen.ID, apperrors.ErrNotFound)
	}

	bt, err := s.beeType(queen)
	if err != nil {
		return nil, err
	}

	owner := models.Realm{GuildID: queen.GuildID, UserID: *queen.OwnerID}
	taken, err := s.takenNames(ctx, owner)
	if err != nil {
		return nil, err
	}

	parent := beeStats(queen)
	brood := make([]*models.Bee, 0, 1+queen.Fertility)
	for i := 0; i <= queen.Fertility; i++ {
		caste, name := models.CasteDrone, ""
		if i == 0 {
			caste, name = models.CastePrincess, queen.Name
		} else {
			name = s.namer.Pick(s.dice, taken)
		}

		stats := genetics.InheritStats(parent, parent, s.dice)
		ownerID := owner.UserID
		brood = append(brood, &models.Bee{
			ParentIDs: []uuid.UUID{queen.ID},
			GuildID:   queen.GuildID,
			OwnerID:   &ownerID,
			Name:      name,
			Type:      queen.Type,
			Caste:     caste,
			Speed:     stats.Speed,
			Fertility: stats.Fertility,
			Lifetime:  stats.Lifetime,
			HiveID:    queen.HiveID,
		})
	}

	hiveID := queen.HiveID
	queen.Disown()
	if err := s.beeRepo.Update(ctx, queen); err != nil {
		return nil, err
	}
	if err := s.beeRepo.CreateBatch(ctx, brood); err != nil {
		return nil, err
	}

	if hiveID != nil {
		deposit := models.HiveDeposit{
			GuildID:  queen.GuildID,
			HiveID:   *hiveID,
			Item:     models.CombItemName(s.catalog.Comb(bt)),
			Quantity: 1,
		}
		if err := s.invRepo.AddToHive(ctx, []models.HiveDeposit{deposit}); err != nil {
			return nil, err
		}
	}

	return brood, nil
}

// ownedBee loads a bee and hides it unless the realm's user owns it.
func (s *beeService) ownedBee(ctx context.Context, realm models.Realm, beeID uuid.UUID) (*models.Bee, error) {
	bee, err := s.beeRepo.GetByID(ctx, beeID)
	if err != nil {
		return nil, err
	}
	if !bee.IsOwnedBy(realm) {
		return nil, fmt.Errorf("bee %s: %w", beeID, apperrors.ErrNotFound)
	}
	return bee, nil
}

// lockOwnedBee is ownedBee holding the bee's row lock.
func (s *beeService) lockOwnedBee(ctx context.Context, realm models.Realm, beeID uuid.UUID) (*models.Bee, error) {
	bee, err := s.beeRepo.GetByIDForUpdate(ctx, beeID)
	if err != nil {
		return nil, err
	}
	if !bee.IsOwnedBy(realm) {
		return nil, fmt.Errorf("bee %s: %w", beeID, apperrors.ErrNotFound)
	}
	return bee, nil
}

// lockOwnedPair locks two bees in ID order and returns them in argument
// order.
func (s *beeService) lockOwnedPair(ctx context.Context, realm models.Realm, idA, idB uuid.UUID) (*models.Bee, *models.Bee, error) {
	first, second := idA, idB
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}

	x, err := s.lockOwnedBee(ctx, realm, first)
	if err != nil {
		return nil, nil, err
	}
	y, err := s.lockOwnedBee(ctx, realm, second)
	if err != nil {
		return nil, nil, err
	}
	if x.ID != idA {
		x, y = y, x
	}
	return x, y, nil
}

// lockQueen locks a queen for death. Hive locks come before bee locks, so a
// housed queen's hive is locked first and the queen re-read under her own
// lock. If she moved in between, the caller gets ErrConflict and the next
// tick tries again.
func (s *beeService) lockQueen(ctx context.Context, beeID uuid.UUID) (*models.Bee, error) {
	peek, err := s.beeRepo.GetByID(ctx, beeID)
	if err != nil {
		return nil, err
	}
	if peek.HiveID != nil {
		if _, err := s.hiveRepo.GetByIDForUpdate(ctx, *peek.HiveID); err != nil {
			return nil, err
		}
	}

	queen, err := s.beeRepo.GetByIDForUpdate(ctx, beeID)
	if err != nil {
		return nil, err
	}
	if queen.HiveID != nil && (peek.HiveID == nil || *queen.HiveID != *peek.HiveID) {
		return nil, fmt.Errorf("queen %s changed hive while locking: %w", beeID, apperrors.ErrConflict)
	}
	return queen, nil
}

func (s *beeService) beeType(bee *models.Bee) (genetics.BeeType, error) {
	bt, ok := s.catalog.Get(bee.Type)
	if !ok {
		return genetics.BeeType{}, fmt.Errorf("bee type %q: %w", bee.Type, apperrors.ErrNotFound)
	}
	return bt, nil
}

func (s *beeService) takenNames(ctx context.Context, realm models.Realm) (names.Taken, error) {
	bees, err := s.beeRepo.ListByOwner(ctx, realm)
	if err != nil {
		return nil, err
	}
	taken := names.NewTaken()
	for _, b := range bees {
		taken.Add(b.Name)
	}
	return taken, nil
}

// breedingPair orders two bees as (princess, drone) when they form one.
func breedingPair(a, b *models.Bee) (princess, drone *models.Bee, ok bool) {
	switch {
	case a.Caste == models.CastePrincess && b.Caste == models.CasteDrone:
		return a, b, true
	case a.Caste == models.CasteDrone && b.Caste == models.CastePrincess:
		return b, a, true
	}
	return nil, nil, false
}

func beeStats(b *models.Bee) genetics.Stats {
	return genetics.Stats{Speed: b.Speed, Fertility: b.Fertility, Lifetime: b.Lifetime}
}
