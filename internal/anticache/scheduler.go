package anticache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskindex/taskindex/pkg/logger"
)

// Scheduler drives the two background loops -- TTL sweep and consistency
// audit -- off a single timer wheel, so no component in this core starts
// its own goroutine ticker.
type Scheduler struct {
	cron          *cron.Cron
	mgr           *Manager
	log           logger.Logger
	sweepInterval time.Duration
	auditInterval time.Duration
}

// NewScheduler builds a Scheduler bound to mgr. sweepInterval/auditInterval
// default to 5 minutes / 24 hours when non-positive.
func NewScheduler(mgr *Manager, sweepInterval, auditInterval time.Duration, log logger.Logger) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	if auditInterval <= 0 {
		auditInterval = 24 * time.Hour
	}
	if log == nil {
		log = logger.FromContext(context.Background())
	}
	return &Scheduler{cron: cron.New(), mgr: mgr, log: log, sweepInterval: sweepInterval, auditInterval: auditInterval}
}

// Start registers the TTL sweep and consistency audit loops and starts
// the underlying timer wheel.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(everySpec(s.sweepInterval), s.runSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(everySpec(s.auditInterval), s.runAudit); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d.String())
}

// Stop halts the timer wheel, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runSweep() {
	evicted, freed := s.mgr.Cleanup()
	s.log.Info("ttl sweep complete", "evicted", evicted, "freed_bytes", freed)
}

func (s *Scheduler) runAudit() {
	evicted := s.mgr.ConsistencyAudit()
	s.log.Info("consistency audit complete", "evicted", evicted)
}
