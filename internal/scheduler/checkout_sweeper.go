package scheduler

import (
	"context"
	"time"

	"github.com/nexe/nexe-backend/internal/app/service"
	"github.com/nexe/nexe-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

const sweepTimeout = time.Minute

// CheckoutSweeper deletes checkout confirmation records past their retention.
type CheckoutSweeper struct {
	cron            *cron.Cron
	checkoutService service.CheckoutService
	schedule        string
	retention       time.Duration
}

func NewCheckoutSweeper(checkoutService service.CheckoutService, schedule string, retention time.Duration) *CheckoutSweeper {
	return &CheckoutSweeper{
		cron:            cron.New(),
		checkoutService: checkoutService,
		schedule:        schedule,
		retention:       retention,
	}
}

func (s *CheckoutSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		logger.Error("Failed to add cron job for checkout sweep", err, map[string]interface{}{
			"schedule": s.schedule,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Checkout sweeper started", map[string]interface{}{
		"schedule":  s.schedule,
		"retention": s.retention.String(),
	})
	return nil
}

// Sweep runs one pass. Exposed for the cron job and for tests.
func (s *CheckoutSweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	deleted, err := s.checkoutService.SweepConfirmations(ctx, s.retention)
	if err != nil {
		logger.Error("Checkout sweep failed", err)
		return
	}
	logger.Info("Checkout sweep finished", map[string]interface{}{
		"deleted": deleted,
	})
}

// Stop waits for a running sweep to finish.
func (s *CheckoutSweeper) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Checkout sweeper stopped")
}
