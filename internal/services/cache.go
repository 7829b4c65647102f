// Package services aggregates tool probe results for a tracked set of
// services behind a staleness-bounded cache.
package services

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/devkeep/internal/probe"
)

// DefaultStaleness is the cache age beyond which a status read re-probes.
const DefaultStaleness = 60 * time.Second

// maxParallelProbes bounds the refresh fan-out.
const maxParallelProbes = 8

// Overall summarizes tracked-service health.
type Overall string

const (
	// OverallAvailable means every tracked service is installed.
	OverallAvailable Overall = "available"
	// OverallDegraded means at least one, but not all, are installed.
	OverallDegraded Overall = "degraded"
	// OverallUnavailable means none are installed.
	OverallUnavailable Overall = "unavailable"
	// OverallUnknown means there is nothing to aggregate yet.
	OverallUnknown Overall = "unknown"
)

// Service names a tracked tool and how to ask it for a version.
type Service struct {
	Name       string `json:"name"`
	VersionArg string `json:"versionArg,omitempty"`
}

// DefaultServices is the tracked set used when no override is configured.
func DefaultServices() []Service {
	return []Service{
		{Name: "brew"},
		{Name: "git"},
		{Name: "swift"},
		{Name: "node"},
		{Name: "docker"},
	}
}

// Snapshot is one aggregated status. Snapshots are immutable; the cache
// hands out copies, never its internal state.
type Snapshot struct {
	PerService  map[string]probe.Result `json:"perService"`
	Overall     Overall                 `json:"overall"`
	RefreshedAt time.Time               `json:"refreshedAt"`
}

func (s Snapshot) clone() Snapshot {
	per := make(map[string]probe.Result, len(s.PerService))
	for k, v := range s.PerService {
		per[k] = v
	}
	s.PerService = per
	return s
}

type settings struct {
	services  []Service
	staleness time.Duration
}

// Cache holds the latest aggregated status and refreshes it when stale or
// forced. All state is replaced atomically as a whole; a refresh in flight
// never exposes a mix of old and new per-service results.
type Cache struct {
	prober   probe.Prober
	settings atomic.Pointer[settings]
	current  atomic.Pointer[Snapshot]
}

// NewCache returns a cache tracking the given services. A staleness of zero
// means DefaultStaleness.
func NewCache(prober probe.Prober, svcs []Service, staleness time.Duration) *Cache {
	c := &Cache{prober: prober}
	c.Reconfigure(svcs, staleness)
	return c
}

// Reconfigure replaces the tracked-service list and staleness threshold.
// The cached snapshot is kept; it simply ages out against the new threshold.
func (c *Cache) Reconfigure(svcs []Service, staleness time.Duration) {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	s := &settings{
		services:  append([]Service(nil), svcs...),
		staleness: staleness,
	}
	c.settings.Store(s)
}

// Status returns the aggregated service status. Within the staleness window
// the cached snapshot is returned unmodified and no probing occurs, unless
// forceFresh is set. A refresh probes every tracked service independently
// and publishes the new snapshot only after all probes finish. Individual
// probe failures degrade that service to not-installed; they never fail the
// status read.
func (c *Cache) Status(ctx context.Context, forceFresh bool) Snapshot {
	set := c.settings.Load()

	if !forceFresh {
		if cur := c.current.Load(); cur != nil && time.Since(cur.RefreshedAt) < set.staleness {
			return cur.clone()
		}
	}
	return c.refresh(ctx, set)
}

func (c *Cache) refresh(ctx context.Context, set *settings) Snapshot {
	results := make([]probe.Result, len(set.services))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)
	for i, svc := range set.services {
		i, svc := i, svc
		g.Go(func() error {
			results[i] = c.prober.Probe(gctx, svc.Name, svc.VersionArg)
			return nil
		})
	}
	g.Wait()

	snap := Snapshot{
		PerService:  make(map[string]probe.Result, len(results)),
		RefreshedAt: time.Now(),
	}
	for _, res := range results {
		snap.PerService[res.Tool] = res
	}
	snap.Overall = aggregate(results)

	// A refresh cut short by context cancellation reports what it has but
	// must not poison the cache with bogus not-installed results.
	if ctx.Err() == nil {
		published := snap.clone()
		c.current.Store(&published)
	}
	return snap
}

func aggregate(results []probe.Result) Overall {
	if len(results) == 0 {
		return OverallUnknown
	}
	installed := 0
	for _, res := range results {
		if res.Installed {
			installed++
		}
	}
	switch installed {
	case len(results):
		return OverallAvailable
	case 0:
		return OverallUnavailable
	default:
		return OverallDegraded
	}
}
