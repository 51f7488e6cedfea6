/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hyperledger/aries-framework-go/component/log"
)

var logger = log.New("aries-framework/protocol/registry")

// DefaultSweepInterval is how often expired machines are looked for.
const DefaultSweepInterval = 5 * time.Second

// SweepJob sweeps the expired machines of one protocol service.
type SweepJob interface {
	Name() string
	SweepExpired(now time.Time) int
}

// SweeperOpt configures the sweeper.
type SweeperOpt func(*Sweeper)

// WithSweepInterval sets the sweep interval.
func WithSweepInterval(d time.Duration) SweeperOpt {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock sets the time source used for deadlines.
func WithClock(now func() time.Time) SweeperOpt {
	return func(s *Sweeper) {
		s.now = now
	}
}

// Sweeper periodically applies the timeout transition to expired machines.
type Sweeper struct {
	interval  time.Duration
	now       func() time.Time
	scheduler *gocron.Scheduler

	mu   sync.Mutex
	jobs []SweepJob
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(opts ...SweeperOpt) *Sweeper {
	s := &Sweeper{
		interval:  DefaultSweepInterval,
		now:       time.Now,
		scheduler: gocron.NewScheduler(time.UTC),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add registers a job.
func (s *Sweeper) Add(jobs ...SweepJob) {
	s.mu.Lock()
	s.jobs = append(s.jobs, jobs...)
	s.mu.Unlock()
}

// Start schedules the sweep and returns immediately.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.SweepOnce)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.scheduler.StartAsync()

	return nil
}

// Stop stops the sweep.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// SweepOnce runs every job once and returns the number of machines timed out.
func (s *Sweeper) SweepOnce() int {
	s.mu.Lock()
	jobs := append([]SweepJob(nil), s.jobs...)
	s.mu.Unlock()

	now := s.now()
	total := 0

	for _, job := range jobs {
		n := job.SweepExpired(now)
		if n > 0 {
			logger.Infof("timed out %d %s machines", n, job.Name())
		}

		total += n
	}

	return total
}
