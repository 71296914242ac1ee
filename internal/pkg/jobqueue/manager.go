package jobqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
	"github.com/ManuelReschke/EduPortal/internal/pkg/metrics"
)

const (
	sweepExpiry  = "expiry_sweep"
	sweepRenewal = "renewal_sweep"

	sweepLockPrefix = "eduportal:scheduler_lock:"
)

// ErrSweepSkipped is returned when another instance holds the sweep lock.
var ErrSweepSkipped = errors.New("sweep already running on another instance")

// Sweeper is the batch side of billing.Service.
type Sweeper interface {
	CheckExpiredMemberships(ctx context.Context) (int, error)
	ProcessDueRenewals(ctx context.Context, window time.Duration) (billing.RenewalSummary, error)
}

// Config controls the periodic sweeps.
type Config struct {
	Enabled         bool
	ExpiryInterval  time.Duration
	RenewalInterval time.Duration
	RenewalWindow   time.Duration
	SweepTimeout    time.Duration
	Workers         int
}

// ConfigFromEnv reads SCHEDULER_ENABLED, EXPIRY_SWEEP_INTERVAL,
// RENEWAL_SWEEP_INTERVAL, RENEWAL_WINDOW and JOB_QUEUE_WORKERS.
func ConfigFromEnv() Config {
	return Config{
		Enabled:         env.GetEnvBool("SCHEDULER_ENABLED", false),
		ExpiryInterval:  env.GetEnvDuration("EXPIRY_SWEEP_INTERVAL", 15*time.Minute),
		RenewalInterval: env.GetEnvDuration("RENEWAL_SWEEP_INTERVAL", time.Hour),
		RenewalWindow:   env.GetEnvDuration("RENEWAL_WINDOW", 24*time.Hour),
		SweepTimeout:    env.GetEnvDuration("SWEEP_TIMEOUT", 10*time.Minute),
		Workers:         env.GetEnvInt("JOB_QUEUE_WORKERS", DefaultWorkers),
	}
}

// Manager owns the job queue and the membership sweeps.
type Manager struct {
	cfg           Config
	sweeper       Sweeper
	queue         *Queue
	rs            *redsync.Redsync
	expiryTicker  *time.Ticker
	renewalTicker *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager builds a manager. queue and client may be nil; without a client
// sweeps run without the cross-instance lock.
func NewManager(cfg Config, sweeper Sweeper, queue *Queue, client *redis.Client) *Manager {
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = 15 * time.Minute
	}
	if cfg.RenewalInterval <= 0 {
		cfg.RenewalInterval = time.Hour
	}
	if cfg.RenewalWindow <= 0 {
		cfg.RenewalWindow = 24 * time.Hour
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 10 * time.Minute
	}
	m := &Manager{
		cfg:     cfg,
		sweeper: sweeper,
		queue:   queue,
		stopCh:  make(chan struct{}),
	}
	if client != nil {
		m.rs = redsync.New(goredis.NewPool(client))
	}
	return m
}

// GetQueue returns the managed job queue, nil when Redis is unavailable.
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the queue workers and, when enabled, the sweep tickers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// a fresh channel per start cycle so the manager can be restarted
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting job queue and background tasks")

	if m.queue != nil {
		m.queue.Start()
	}

	if !m.cfg.Enabled {
		log.Info("[Scheduler] Sweeps disabled (SCHEDULER_ENABLED=false)")
		return
	}

	m.expiryTicker = time.NewTicker(m.cfg.ExpiryInterval)
	m.wg.Add(1)
	go m.loop(sweepExpiry, m.expiryTicker, func(ctx context.Context) {
		_, _ = m.RunExpirySweep(ctx)
	})

	m.renewalTicker = time.NewTicker(m.cfg.RenewalInterval)
	m.wg.Add(1)
	go m.loop(sweepRenewal, m.renewalTicker, func(ctx context.Context) {
		_, _ = m.RunRenewalSweep(ctx)
	})

	log.Infof("[Scheduler] Started (expiry every %s, renewals every %s, window %s)",
		m.cfg.ExpiryInterval, m.cfg.RenewalInterval, m.cfg.RenewalWindow)
}

// Stop stops the tickers, waits for in-flight sweeps and stops the queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	log.Info("[Scheduler] Stopping background tasks...")
	if m.expiryTicker != nil {
		m.expiryTicker.Stop()
	}
	if m.renewalTicker != nil {
		m.renewalTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	if m.queue != nil {
		m.queue.Stop()
	}
	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) loop(name string, ticker *time.Ticker, run func(ctx context.Context)) {
	defer m.wg.Done()
	stop := m.stopCh
	for {
		select {
		case <-stop:
			log.Debugf("[Scheduler] %s worker stopping", name)
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SweepTimeout)
			run(ctx)
			cancel()
		}
	}
}

// RunExpirySweep expires lapsed memberships once.
func (m *Manager) RunExpirySweep(ctx context.Context) (int, error) {
	var n int
	err := m.withSweepLock(ctx, sweepExpiry, func(ctx context.Context) error {
		var err error
		n, err = m.sweeper.CheckExpiredMemberships(ctx)
		return err
	})
	m.record(sweepExpiry, err)
	if err == nil && n > 0 {
		log.Infof("[Scheduler] Expired %d memberships", n)
	}
	return n, err
}

// RunRenewalSweep renews memberships expiring within the configured window once.
func (m *Manager) RunRenewalSweep(ctx context.Context) (billing.RenewalSummary, error) {
	var summary billing.RenewalSummary
	err := m.withSweepLock(ctx, sweepRenewal, func(ctx context.Context) error {
		var err error
		summary, err = m.sweeper.ProcessDueRenewals(ctx, m.cfg.RenewalWindow)
		return err
	})
	m.record(sweepRenewal, err)
	if err == nil && summary.Attempted > 0 {
		log.Infof("[Scheduler] Renewal sweep: attempted=%d renewed=%d failed=%d skipped=%d",
			summary.Attempted, summary.Renewed, summary.Failed, summary.Skipped)
	}
	return summary, err
}

func (m *Manager) record(job string, err error) {
	switch {
	case err == nil:
		metrics.ObserveSweep(job, "ok")
	case errors.Is(err, ErrSweepSkipped):
		log.Debugf("[Scheduler] %s skipped: lock held elsewhere", job)
		metrics.ObserveSweep(job, "skipped")
	default:
		log.Errorf("[Scheduler] %s failed: %v", job, err)
		metrics.ObserveSweep(job, "error")
	}
}

// withSweepLock runs fn while holding a single-try redsync mutex so only one
// instance sweeps at a time.
func (m *Manager) withSweepLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if m.rs == nil {
		return fn(ctx)
	}
	mutex := m.rs.NewMutex(sweepLockPrefix+name,
		redsync.WithExpiry(m.cfg.SweepTimeout+time.Minute),
		redsync.WithTries(1),
	)
	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return ErrSweepSkipped
		}
		return err
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.Background()); err != nil || !ok {
			log.Warnf("[Scheduler] failed to release %s lock: ok=%v err=%v", name, ok, err)
		}
	}()
	return fn(ctx)
}
