// Package app is the composition root: it constructs every owned
// singleton exactly once and wires components in the dependency order
// A -> B -> C -> D, with the anti-leak cache manager gating derived
// allocations from A/C/D/F. No package-level mutable state lives here or
// anywhere else in the module; every component is an explicit value owned
// by an *App built by New.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/taskindex/taskindex/internal/anticache"
	"github.com/taskindex/taskindex/internal/core"
	"github.com/taskindex/taskindex/internal/hierarchy"
	"github.com/taskindex/taskindex/internal/indexqueue"
	"github.com/taskindex/taskindex/internal/radix"
	"github.com/taskindex/taskindex/internal/skeleton"
	"github.com/taskindex/taskindex/pkg/config"
	"github.com/taskindex/taskindex/pkg/logger"
)

// App owns every CORE component, built once by New. Methods on App are
// the only way any of this module's operations are invoked.
type App struct {
	Config *config.Config
	Log    logger.Logger
	FS     afero.Fs
	Clock  core.Clock

	Store     *skeleton.Store
	Scanner   *skeleton.Scanner
	Skeletons *skeleton.Service

	Index *radix.Index

	Hierarchy *hierarchy.Engine

	Cache     *anticache.Manager
	scheduler *anticache.Scheduler

	Queue *indexqueue.Queue
}

// Registerer is the subset of prometheus.Registerer New needs; callers
// pass a real *prometheus.Registry or nil to skip metric registration.
type Registerer = prometheus.Registerer

// New builds the composition root from cfg, wiring A -> B -> C -> D with
// E gating A/C/D/F allocations and F consuming A/D output. fs and clock
// default to the production filesystem and wall clock when nil; reg may
// be nil to skip metrics registration (e.g. in tests).
func New(cfg *config.Config, fs afero.Fs, clock core.Clock, log logger.Logger, reg Registerer) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if clock == nil {
		clock = core.SystemClock
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}
	if err := (config.NewService()).Validate(cfg); err != nil {
		return nil, fmt.Errorf("build composition root: %w", err)
	}

	metrics := anticache.NewMetrics()
	if reg != nil {
		if err := metrics.Register(reg); err != nil {
			return nil, fmt.Errorf("register anti-leak metrics: %w", err)
		}
	}
	cache := anticache.NewManager(cfg.AntiLeak.CeilingGB, cfg.AntiLeak.AlertThresholdGB, cfg.AntiLeak.Enabled, clock, log.With("component", "anticache"), metrics)
	scheduler := anticache.NewScheduler(cache, cfg.AntiLeak.TTLSweepInterval, cfg.AntiLeak.ConsistencyAuditInterval, log.With("component", "anticache-scheduler"))

	queue := indexqueue.New(clock, log.With("component", "indexqueue"))
	queue.SetEnabled(cfg.Queue.Enabled)

	store := skeleton.NewStore(fs, clock, log.With("component", "skeleton-store"))
	scanner := skeleton.NewScanner(fs, clock)
	skeletons := skeleton.NewService(fs, store, scanner, queue, cfg.Storage.WorkspaceRootOverride)

	index := radix.New()

	engine := hierarchy.New(fs, store, index, cfg.Hierarchy.PrefixLength, clock, log.With("component", "hierarchy"))

	return &App{
		Config: cfg, Log: log, FS: fs, Clock: clock,
		Store: store, Scanner: scanner, Skeletons: skeletons,
		Index: index, Hierarchy: engine,
		Cache: cache, scheduler: scheduler, Queue: queue,
	}, nil
}

// StartBackgroundLoops starts the anti-leak TTL sweep and consistency
// audit timer wheel. Callers that only want a single scan + reconstruction
// pass (e.g. cmd/taskindexd) do not need to call this.
func (a *App) StartBackgroundLoops() error {
	return a.scheduler.Start()
}

// StopBackgroundLoops halts the timer wheel started by StartBackgroundLoops.
func (a *App) StopBackgroundLoops() {
	a.scheduler.Stop()
}

// RunOnce drives one full pass: scan every discovered storage location,
// then reconstruct the hierarchy over whatever is now in memory. This is
// the operation cmd/taskindexd invokes before exiting.
func (a *App) RunOnce(ctx context.Context, opts skeleton.ScanOptions) (skeleton.ScanReport, hierarchy.Report) {
	scanReport := a.Skeletons.Scan(ctx, opts)
	a.Log.Info("scan complete", "built", scanReport.Built, "skipped", scanReport.Skipped,
		"invalid", scanReport.Invalid, "errors", len(scanReport.Errors))

	recReport := a.Hierarchy.Reconstruct(ctx, a.Config.Hierarchy.ReconstructionDeadline)
	a.Log.Info("reconstruction complete", "resolved", recReport.Phase2Resolved,
		"unresolved", recReport.Phase2Unresolved, "timeout", recReport.TimeoutReached)

	for _, taskID := range recReport.ResolvedTaskIDs {
		a.Queue.Enqueue(taskID)
	}
	return scanReport, recReport
}

// CachedParentCandidates looks up candidate parent task IDs for
// openingText, serving a recent answer from the anti-leak cache when one
// is present and falling back to a fresh radix.ExactLookup otherwise. This
// is the concrete instance of "E gates every memory allocation performed
// by ... C": the derived candidate-ID slice the radix index computes is
// itself a cached artifact bounded by the same ceiling as everything else.
func (a *App) CachedParentCandidates(openingText string) []core.TaskId {
	key := cacheKeyForLookup(openingText)
	if payload, _, ok := a.Cache.Get(key); ok {
		if ids, ok := payload.([]core.TaskId); ok {
			return ids
		}
	}
	ids := a.Index.ExactLookup(openingText, a.Config.Hierarchy.PrefixLength)
	size := int64(len(ids)) * 32
	_ = a.Cache.Store(key, ids, size, anticache.Moderate, 10*time.Minute)
	return ids
}

func cacheKeyForLookup(openingText string) string {
	var b strings.Builder
	b.WriteString("lookup:")
	b.WriteString(openingText)
	return b.String()
}
