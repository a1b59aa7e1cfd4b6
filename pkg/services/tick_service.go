package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
	"github.com/ekaya-inc/apiary-engine/pkg/metrics"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/notify"
	"github.com/ekaya-inc/apiary-engine/pkg/repositories"
)

// TickReport summarizes one tick.
type TickReport struct {
	Aged     int `json:"aged"`
	Produced int `json:"produced"`
	Deaths   int `json:"deaths"`
	Broods   int `json:"broods"`
}

// IsIdle reports whether the tick changed nothing.
func (r *TickReport) IsIdle() bool {
	return r.Aged == 0 && r.Deaths == 0
}

// TickService advances every housed queen by one tick.
type TickService interface {
	// Tick ages housed queens, lets growing queens produce combs, and turns
	// expired queens into brood. Aging and production share one
	// transaction; each death runs in its own.
	Tick(ctx context.Context) (*TickReport, error)

	// RunScheduler starts a background goroutine that ticks on the given
	// interval. It ticks immediately on startup. Cancel the context to stop.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type tickService struct {
	scoper   Scoper
	beeRepo  repositories.BeeRepository
	hiveRepo repositories.HiveRepository
	invRepo  repositories.InventoryRepository
	bees     BeeService
	catalog  *genetics.Catalog
	dice     genetics.Dice
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewTickService creates a TickService. Deaths go through bees.Die.
func NewTickService(
	scoper Scoper,
	beeRepo repositories.BeeRepository,
	hiveRepo repositories.HiveRepository,
	invRepo repositories.InventoryRepository,
	bees BeeService,
	catalog *genetics.Catalog,
	dice genetics.Dice,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) TickService {
	return &tickService{
		scoper:   scoper,
		beeRepo:  beeRepo,
		hiveRepo: hiveRepo,
		invRepo:  invRepo,
		bees:     bees,
		catalog:  catalog,
		dice:     dice,
		notifier: notifier,
		metrics:  m,
		logger:   logger.Named("tick-service"),
	}
}

var _ TickService = (*tickService)(nil)

func (s *tickService) Tick(ctx context.Context) (*TickReport, error) {
	start := time.Now()
	report, err := s.tick(ctx)
	s.metrics.ObserveTick(time.Since(start), err)
	return report, err
}

func (s *tickService) tick(ctx context.Context) (*TickReport, error) {
	report := &TickReport{}

	err := s.scoper.WithoutRealm(ctx, func(ctx context.Context) error {
		err := s.scoper.InTx(ctx, func(ctx context.Context) error {
			aged, err := s.beeRepo.AgeHousedQueens(ctx)
			if err != nil {
				return err
			}
			report.Aged = len(aged)

			deposits := s.production(aged)
			if err := s.invRepo.AddToHive(ctx, deposits); err != nil {
				return err
			}
			for _, d := range deposits {
				report.Produced += d.Quantity
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("age queens: %w", err)
		}

		s.metrics.QueensAged.Add(float64(report.Aged))

		expired, err := s.beeRepo.ListExpiredQueens(ctx)
		if err != nil {
			return fmt.Errorf("list expired queens: %w", err)
		}

		for _, queen := range expired {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			brood, err := s.bees.Die(ctx, queen.ID)
			if err != nil {
				// The queen stays housed and expired, so the next tick retries.
				s.metrics.DeathFailures.Inc()
				s.logger.Error("Queen death failed",
					zap.String("bee_id", queen.ID.String()),
					zap.Int64("guild_id", queen.GuildID),
					zap.Error(err))
				continue
			}
			report.Deaths++
			report.Broods += len(brood)

			s.notifyDeath(ctx, queen, len(brood))
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

// production rolls each still-growing queen's output for this tick. A queen
// produces with probability min(speed, 100)%; speeds above 100 raise the
// batch size instead.
func (s *tickService) production(aged []*models.Bee) []models.HiveDeposit {
	deposits := make([]models.HiveDeposit, 0, len(aged))
	for _, queen := range aged {
		if queen.IsExpired() || queen.HiveID == nil {
			continue
		}

		bt, ok := s.catalog.Get(queen.Type)
		if !ok {
			s.logger.Warn("Skipping production for unknown bee type",
				zap.String("bee_id", queen.ID.String()),
				zap.String("type", queen.Type))
			continue
		}

		chance := float64(min(queen.Speed, 100)) / 100
		if s.dice.Float64() >= chance {
			continue
		}

		item := models.CombItemName(s.catalog.Comb(bt))
		qty := 1 + s.dice.IntN(queen.Speed/100+1)
		deposits = append(deposits, models.HiveDeposit{
			GuildID:  queen.GuildID,
			HiveID:   *queen.HiveID,
			Item:     item,
			Quantity: qty,
		})
		s.metrics.CombsProduced.WithLabelValues(item).Add(float64(qty))
	}
	return deposits
}

// notifyDeath tells the owner their queen died. Failures are logged only.
func (s *tickService) notifyDeath(ctx context.Context, queen *models.Bee, broodCount int) {
	if queen.OwnerID == nil || queen.HiveID == nil {
		return
	}

	event := notify.Event{
		Type:       notify.EventQueenDied,
		GuildID:    queen.GuildID,
		UserID:     *queen.OwnerID,
		HiveID:     *queen.HiveID,
		BeeID:      queen.ID,
		BeeName:    queen.DisplayName(),
		BroodCount: broodCount,
		OccurredAt: time.Now().UTC(),
	}

	if hive, err := s.hiveRepo.GetByID(ctx, *queen.HiveID); err != nil {
		s.logger.Warn("Failed to look up hive for notification",
			zap.String("hive_id", queen.HiveID.String()),
			zap.Error(err))
	} else {
		event.HiveName = hive.Name()
	}

	if err := s.notifier.Notify(ctx, event); err != nil {
		s.metrics.Notifications.WithLabelValues("failed").Inc()
		s.logger.Warn("Failed to notify queen death",
			zap.Int64("user_id", event.UserID),
			zap.String("bee_id", queen.ID.String()),
			zap.Error(err))
		return
	}
	s.metrics.Notifications.WithLabelValues("sent").Inc()
}

func (s *tickService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Tick scheduler started", zap.Duration("interval", interval))

		// Run immediately on startup, then at each interval
		s.runTick(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Tick scheduler stopped")
				return
			case <-ticker.C:
				s.runTick(ctx)
			}
		}
	}()
}

func (s *tickService) runTick(ctx context.Context) {
	report, err := s.Tick(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Tick failed", zap.Error(err))
		return
	}
	if report.IsIdle() {
		return
	}
	s.logger.Debug("Tick completed",
		zap.Int("aged", report.Aged),
		zap.Int("produced", report.Produced),
		zap.Int("deaths", report.Deaths),
		zap.Int("broods", report.Broods))
}
