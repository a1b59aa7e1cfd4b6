package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/repositories"
)

// Sale is the outcome of one market sale.
type Sale struct {
	Item      string `json:"item"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
	Earned    int    `json:"earned"`
}

// MarketService buys combs from players for honey.
type MarketService interface {
	// Price is what one unit of item sells for. Only combs are sellable.
	Price(item string) (int, error)

	// Sell removes quantity of item from the user and credits honey.
	Sell(ctx context.Context, realm models.Realm, item string, quantity int) (*Sale, error)

	// Inventory lists the user's non-zero items.
	Inventory(ctx context.Context, realm models.Realm) ([]models.Item, error)
}

type marketService struct {
	scoper  Scoper
	invRepo repositories.InventoryRepository
	catalog *genetics.Catalog
	logger  *zap.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(scoper Scoper, invRepo repositories.InventoryRepository, catalog *genetics.Catalog, logger *zap.Logger) MarketService {
	return &marketService{
		scoper:  scoper,
		invRepo: invRepo,
		catalog: catalog,
		logger:  logger.Named("market-service"),
	}
}

var _ MarketService = (*marketService)(nil)

func (s *marketService) Price(item string) (int, error) {
	comb, ok := models.CombFromItemName(item)
	if !ok {
		return 0, fmt.Errorf("%q: %w", item, apperrors.ErrNotSellable)
	}
	value, ok := s.catalog.CombValue(comb)
	if !ok {
		return 0, fmt.Errorf("%q: %w", item, apperrors.ErrNotSellable)
	}
	return value, nil
}

func (s *marketService) Sell(ctx context.Context, realm models.Realm, item string, quantity int) (*Sale, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("sell %d of %q: %w", quantity, item, apperrors.ErrInsufficientQuantity)
	}
	price, err := s.Price(item)
	if err != nil {
		return nil, err
	}

	sale := &Sale{Item: item, Quantity: quantity, UnitPrice: price, Earned: price * quantity}
	err = inRealmTx(ctx, s.scoper, realm.GuildID, func(ctx context.Context) error {
		if err := s.invRepo.RemoveFromUser(ctx, realm, item, quantity); err != nil {
			return err
		}
		return s.invRepo.AddToUser(ctx, realm, models.Inventory{models.CurrencyItem: sale.Earned})
	})
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}

	s.logger.Info("Items sold",
		zap.Int64("guild_id", realm.GuildID),
		zap.Int64("user_id", realm.UserID),
		zap.String("item", item),
		zap.Int("quantity", quantity),
		zap.Int("earned", sale.Earned))
	return sale, nil
}

func (s *marketService) Inventory(ctx context.Context, realm models.Realm) ([]models.Item, error) {
	var inv models.Inventory
	err := s.scoper.WithRealm(ctx, realm.GuildID, func(ctx context.Context) error {
		var err error
		inv, err = s.invRepo.GetUser(ctx, realm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv.Items(), nil
}
