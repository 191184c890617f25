// Package engine runs the enabled strategies under one roof: staggered
// startup, panic isolation, and a bounded graceful shutdown.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner is one strategy loop the coordinator drives.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Flusher closes the durable store once every runner has stopped.
type Flusher interface {
	Close() error
}

type Config struct {
	// StartupDelay is the upper bound of the randomized per-runner stagger.
	StartupDelay time.Duration
	// ShutdownGrace bounds how long in-flight cycles may run after cancel.
	ShutdownGrace time.Duration
}

// Coordinator owns the runner goroutines and the store's final flush.
type Coordinator struct {
	cfg     Config
	runners []Runner
	store   Flusher
	logger  *logrus.Logger
	rng     *rand.Rand
	now     func() time.Time
}

func New(cfg Config, runners []Runner, store Flusher, logger *logrus.Logger) *Coordinator {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	return &Coordinator{
		cfg:     cfg,
		runners: runners,
		store:   store,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// SetSeed makes the startup stagger deterministic. Test hook.
func (c *Coordinator) SetSeed(seed int64) {
	c.rng = rand.New(rand.NewSource(seed))
}

// Run launches every runner and blocks until the context is canceled and
// all runners have drained (or the grace period lapses). The store is
// flushed exactly once on the way out.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.runners) == 0 {
		return fmt.Errorf("no strategies enabled")
	}

	staggers := make([]time.Duration, len(c.runners))
	for i := range staggers {
		if c.cfg.StartupDelay > 0 {
			staggers[i] = time.Duration(c.rng.Int63n(int64(c.cfg.StartupDelay)))
		}
	}

	var wg sync.WaitGroup
	for i, r := range c.runners {
		wg.Add(1)
		go func(r Runner, stagger time.Duration) {
			defer wg.Done()
			c.drive(ctx, r, stagger)
		}(r, staggers[i])
	}

	<-ctx.Done()
	c.logger.Info("shutdown requested, draining strategy runners")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownGrace):
		c.logger.WithField("grace", c.cfg.ShutdownGrace).
			Warn("shutdown grace elapsed with runners still draining")
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			return fmt.Errorf("flushing store: %w", err)
		}
	}
	return nil
}

// drive runs one runner to completion, absorbing panics so a failed
// strategy never takes the others down.
func (c *Coordinator) drive(ctx context.Context, r Runner, stagger time.Duration) {
	log := c.logger.WithField("indicator", r.Name())
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(logrus.Fields{
				"panic": rec,
				"stack": string(debug.Stack()),
			}).Error("strategy runner panicked")
		}
	}()

	if stagger > 0 {
		log.WithField("stagger", stagger).Debug("delaying strategy start")
		select {
		case <-ctx.Done():
			return
		case <-time.After(stagger):
		}
	}

	log.Info("strategy runner starting")
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("strategy runner stopped with error")
		return
	}
	log.Info("strategy runner stopped")
}
