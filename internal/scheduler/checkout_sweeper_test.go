package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/app/service"
	"github.com/stretchr/testify/assert"
)

type fakeCheckoutService struct {
	sweeps    atomic.Int32
	retention atomic.Int64
	err       error
}

func (f *fakeCheckoutService) Complete(context.Context, model.Identity, string) (*service.CheckoutResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeCheckoutService) SweepConfirmations(_ context.Context, retention time.Duration) (int64, error) {
	f.sweeps.Add(1)
	f.retention.Store(int64(retention))
	return 3, f.err
}

func TestCheckoutSweeper_Sweep(t *testing.T) {
	svc := &fakeCheckoutService{}
	sweeper := NewCheckoutSweeper(svc, "0 4 * * *", 48*time.Hour)

	sweeper.Sweep()
	assert.Equal(t, int32(1), svc.sweeps.Load())
	assert.Equal(t, int64(48*time.Hour), svc.retention.Load())

	svc.err = errors.New("db down")
	assert.NotPanics(t, sweeper.Sweep)
}

func TestCheckoutSweeper_StartRejectsBadSchedule(t *testing.T) {
	sweeper := NewCheckoutSweeper(&fakeCheckoutService{}, "not a schedule", time.Hour)
	assert.Error(t, sweeper.Start())
}

func TestCheckoutSweeper_StartStop(t *testing.T) {
	sweeper := NewCheckoutSweeper(&fakeCheckoutService{}, "@every 1h", time.Hour)
	assert.NoError(t, sweeper.Start())
	sweeper.Stop()
}
