package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/superapp/partnerauth/pkg/logger"
)

const (
	defaultOTPSpec   = "@every 15m"
	defaultCacheSpec = "@hourly"
)

// OTPSweeper removes expired and retained-past-audit OTP records.
type OTPSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// CacheSweeper removes expired cache entries such as rate limit windows.
type CacheSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance: sweeping OTP records and expired cache entries.
type Cleaner struct {
	otp   OTPSweeper
	cache CacheSweeper
	cron  *cron.Cron
	log   *zap.Logger

	otpSchedule   string
	cacheSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithOTPSchedule overrides the cron specification for the OTP sweep.
func WithOTPSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.otpSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache cleanup.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil sweeper disables the corresponding job.
func NewCleaner(otp OTPSweeper, cache CacheSweeper, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		otp:           otp,
		cache:         cache,
		otpSchedule:   defaultOTPSpec,
		cacheSchedule: defaultCacheSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if c.otp == nil && c.cache == nil {
		return nil
	}

	if c.otp != nil {
		if _, err := c.cron.AddFunc(c.otpSchedule, func() {
			if _, err := c.sweepOTPs(context.Background()); err != nil {
				c.log.Warn("otp sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule otp sweep: %w", err)
		}
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if _, err := c.sweepCache(context.Background()); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.otp != nil {
		if _, err := c.sweepOTPs(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.cache != nil {
		if _, err := c.sweepCache(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) sweepOTPs(ctx context.Context) (int64, error) {
	removed, err := c.otp.SweepExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep otp records: %w", err)
	}
	if removed > 0 {
		c.log.Info("swept otp records", zap.Int64("removed", removed))
	}
	return removed, nil
}

func (c *Cleaner) sweepCache(ctx context.Context) (int64, error) {
	removed, err := c.cache.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	if removed > 0 {
		c.log.Debug("deleted expired cache entries", zap.Int64("removed", removed))
	}
	return removed, nil
}
