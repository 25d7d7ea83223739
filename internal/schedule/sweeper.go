package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/confirmly/confirmation-engine/internal/clock"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/queue"
)

// Cron patterns for the repeating sweeps.
const (
	patternDispatchDue = "* * * * *"
	patternOrderSync   = "*/15 * * * *"
	patternAutoCancel  = "0 * * * *"
	patternReConfirm   = "0 */6 * * *"
)

const sweepTimeout = 2 * time.Minute

type JobStore interface {
	Schedule(ctx context.Context, orderID, merchantID, kind string, runAt time.Time) error
	ListDue(ctx context.Context, now time.Time) ([]Job, error)
	MarkDispatched(ctx context.Context, jobKey string) error
}

type MerchantLister interface {
	List(ctx context.Context) ([]merchants.Merchant, error)
}

type OrderLister interface {
	ListPendingOlderThan(ctx context.Context, merchantID string, cutoff time.Time) ([]orders.Order, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, payload interface{}, attributes map[string]string) error
}

// Sweeper owns the repeating jobs: moving due one-shot timers onto the
// automation lane and re-scanning merchants for orders the timers missed.
// Registration is deduplicated by job key so re-registration on restart
// never doubles a schedule.
type Sweeper struct {
	cron       *cron.Cron
	registered map[string]cron.EntryID

	jobs        JobStore
	merchants   MerchantLister
	orders      OrderLister
	automationQ Enqueuer
	clock       clock.Clock
}

func NewSweeper(jobs JobStore, ml MerchantLister, ol OrderLister, automationQ Enqueuer, clk clock.Clock) *Sweeper {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Sweeper{
		cron:        cron.New(),
		registered:  map[string]cron.EntryID{},
		jobs:        jobs,
		merchants:   ml,
		orders:      ol,
		automationQ: automationQ,
		clock:       clk,
	}
}

// RegisterAll installs the standing sweeps and starts the cron runner.
func (s *Sweeper) RegisterAll() error {
	if err := s.register(patternDispatchDue, queue.SweepDispatchDueJob, s.DispatchDue); err != nil {
		return err
	}
	if err := s.register(patternOrderSync, queue.SweepOrderSync, s.OrderSync); err != nil {
		return err
	}
	if err := s.register(patternAutoCancel, queue.SweepAutoCancel, s.AutoCancelCheck); err != nil {
		return err
	}
	if err := s.register(patternReConfirm, queue.SweepReConfirm, s.ReConfirmCheck); err != nil {
		return err
	}
	return nil
}

func (s *Sweeper) register(pattern, key string, run func(context.Context)) error {
	if _, ok := s.registered[key]; ok {
		return nil
	}
	id, err := s.cron.AddFunc(pattern, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		run(ctx)
	})
	if err != nil {
		return err
	}
	s.registered[key] = id
	return nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling and waits for in-flight sweeps.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// DispatchDue claims due one-shot jobs and puts them on the automation
// lane. The conditional claim means concurrent sweepers dispatch each job
// once.
func (s *Sweeper) DispatchDue(ctx context.Context) {
	jobs, err := s.jobs.ListDue(ctx, s.clock.Now())
	if err != nil {
		logger.Error("list due jobs failed", "err", err)
		return
	}
	for _, job := range jobs {
		if err := s.jobs.MarkDispatched(ctx, job.JobKey); err != nil {
			if err != ErrAlreadyDispatched {
				logger.Warn("claim job failed", "job_key", job.JobKey, "err", err)
			}
			continue
		}
		if err := s.automationQ.Enqueue(ctx, queue.AutomationJob{
			OrderID:    job.OrderID,
			MerchantID: job.MerchantID,
			Type:       job.Kind,
		}, map[string]string{"kind": job.Kind}); err != nil {
			logger.Error("enqueue automation job failed", "job_key", job.JobKey, "err", err)
		}
	}
}

// OrderSync reconciles timers for pending orders. An order created while
// the scheduling write failed, or imported out of band, gets its
// auto-cancel and re-confirm timers here; the dedupe key makes repeated
// passes free.
func (s *Sweeper) OrderSync(ctx context.Context) {
	s.eachMerchant(ctx, func(m merchants.Merchant) {
		pending, err := s.orders.ListPendingOlderThan(ctx, m.MerchantID, s.clock.Now())
		if err != nil {
			logger.Warn("list pending failed", "merchant_id", m.MerchantID, "err", err)
			return
		}
		for _, o := range pending {
			if m.Settings.AutoCancelUnconfirmed {
				runAt := o.CreatedAt.Add(m.Settings.ConfirmWindow())
				if err := s.jobs.Schedule(ctx, o.OrderID, m.MerchantID, orders.ActionAutoCancel, runAt); err != nil {
					logger.Warn("schedule auto-cancel failed", "order_id", o.OrderID, "err", err)
				}
			}
			if m.Settings.ReConfirmEnabled {
				runAt := o.CreatedAt.Add(m.Settings.ReConfirmWindow())
				if err := s.jobs.Schedule(ctx, o.OrderID, m.MerchantID, orders.ActionReConfirm, runAt); err != nil {
					logger.Warn("schedule re-confirm failed", "order_id", o.OrderID, "err", err)
				}
			}
		}
	})
}

// AutoCancelCheck is the hourly safety net behind the per-order timers.
// The engine re-checks every gate, so over-enqueueing here is harmless.
func (s *Sweeper) AutoCancelCheck(ctx context.Context) {
	s.eachMerchant(ctx, func(m merchants.Merchant) {
		if !m.Settings.AutoCancelUnconfirmed {
			return
		}
		cutoff := s.clock.Now().Add(-m.Settings.ConfirmWindow())
		expired, err := s.orders.ListPendingOlderThan(ctx, m.MerchantID, cutoff)
		if err != nil {
			logger.Warn("list expired failed", "merchant_id", m.MerchantID, "err", err)
			return
		}
		for _, o := range expired {
			if err := s.automationQ.Enqueue(ctx, queue.AutomationJob{
				OrderID:    o.OrderID,
				MerchantID: m.MerchantID,
				Type:       orders.ActionAutoCancel,
			}, map[string]string{"kind": orders.ActionAutoCancel}); err != nil {
				logger.Error("enqueue auto-cancel failed", "order_id", o.OrderID, "err", err)
			}
		}
	})
}

// ReConfirmCheck schedules nudges for orders that went quiet. Going
// through the job store (not straight to the queue) keeps the
// one-nudge-per-order guarantee.
func (s *Sweeper) ReConfirmCheck(ctx context.Context) {
	s.eachMerchant(ctx, func(m merchants.Merchant) {
		if !m.Settings.ReConfirmEnabled {
			return
		}
		cutoff := s.clock.Now().Add(-m.Settings.ReConfirmWindow())
		quiet, err := s.orders.ListPendingOlderThan(ctx, m.MerchantID, cutoff)
		if err != nil {
			logger.Warn("list quiet orders failed", "merchant_id", m.MerchantID, "err", err)
			return
		}
		for _, o := range quiet {
			if err := s.jobs.Schedule(ctx, o.OrderID, m.MerchantID, orders.ActionReConfirm, s.clock.Now()); err != nil {
				logger.Warn("schedule re-confirm failed", "order_id", o.OrderID, "err", err)
			}
		}
	})
}

func (s *Sweeper) eachMerchant(ctx context.Context, fn func(merchants.Merchant)) {
	all, err := s.merchants.List(ctx)
	if err != nil {
		logger.Error("list merchants failed", "err", err)
		return
	}
	for _, m := range all {
		fn(m)
	}
}
