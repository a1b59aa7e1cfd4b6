package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/repositories"
)

// DiscoveryService reports which breeding outcomes a user has found.
type DiscoveryService interface {
	// List returns the user's discovered combinations.
	List(ctx context.Context, realm models.Realm) ([]*models.DiscoveredCombination, error)

	// Map returns every outcome the catalog allows for two distinct parent
	// types, each flagged with whether the user has seen it.
	Map(ctx context.Context, realm models.Realm) ([]models.CombinationEdge, error)
}

type discoveryService struct {
	scoper    Scoper
	comboRepo repositories.CombinationRepository
	catalog   *genetics.Catalog
	logger    *zap.Logger
}

// NewDiscoveryService creates a DiscoveryService.
func NewDiscoveryService(scoper Scoper, comboRepo repositories.CombinationRepository, catalog *genetics.Catalog, logger *zap.Logger) DiscoveryService {
	return &discoveryService{
		scoper:    scoper,
		comboRepo: comboRepo,
		catalog:   catalog,
		logger:    logger.Named("discovery-service"),
	}
}

var _ DiscoveryService = (*discoveryService)(nil)

func (s *discoveryService) List(ctx context.Context, realm models.Realm) ([]*models.DiscoveredCombination, error) {
	var combos []*models.DiscoveredCombination
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		var err error
		combos, err = s.comboRepo.ListByOwner(ctx, realm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return combos, nil
}

func (s *discoveryService) Map(ctx context.Context, realm models.Realm) ([]models.CombinationEdge, error) {
	discovered, err := s.List(ctx, realm)
	if err != nil {
		return nil, err
	}

	seen := make(map[[3]string]bool, len(discovered))
	for _, d := range discovered {
		seen[[3]string{d.LeftType, d.RightType, d.ResultType}] = true
	}

	types := s.catalog.All()
	var edges []models.CombinationEdge
	for i, a := range types {
		for _, b := range types[i+1:] {
			if !s.catalog.IsTableMatch(a, b) {
				continue
			}
			left, right := a.Name, b.Name
			if right < left {
				left, right = right, left
			}
			for _, result := range s.catalog.ResolveAll(a, b) {
				edges = append(edges, models.CombinationEdge{
					LeftType:   left,
					RightType:  right,
					ResultType: result.Name,
					Discovered: seen[[3]string{left, right, result.Name}],
				})
			}
		}
	}

	s.logger.Debug("Discovery map built",
		zap.Int64("guild_id", realm.GuildID),
		zap.Int64("user_id", realm.UserID),
		zap.Int("edges", len(edges)),
		zap.Int("discovered", len(discovered)))
	return edges, nil
}
