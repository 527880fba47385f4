// Package maintenance runs the background housekeeping loops: daily
// database pruning and TTL eviction of stale cache entries.
package maintenance

import (
	"context"
	"time"

	"github.com/smartx-rfid/smartx/pkg/pipeline"
	"github.com/smartx-rfid/smartx/pkg/util"
)

// pruneZone is the fixed offset the daily prune schedule runs in,
// regardless of the host timezone.
var pruneZone = time.FixedZone("UTC-3", -3*60*60)

// idleRecheck is how often the eviction loop re-reads its interval while
// disabled.
const idleRecheck = time.Minute

// Pruner deletes rows older than the retention window.
type Pruner interface {
	Prune(days int)
}

// Janitor owns the housekeeping loops. The accessor funcs are read every
// cycle so a set_actions reload takes effect without a restart.
type Janitor struct {
	Store func() Pruner        // current database engine, nil when unconfigured
	Days  func() int           // retention in days, <= 0 disables pruning
	TTL   func() time.Duration // tag eviction age, <= 0 idles
	Cache *pipeline.TagCache
}

// NextMidnight returns the next midnight in the prune zone.
func NextMidnight(now time.Time) time.Time {
	local := now.In(pruneZone)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, pruneZone).AddDate(0, 0, 1)
}

// RunPrune sleeps until each midnight and prunes both tables.
func (j *Janitor) RunPrune(ctx context.Context) {
	for {
		wait := time.Until(NextMidnight(time.Now()))
		select {
		case <-time.After(wait):
			j.pruneOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) pruneOnce() {
	days := j.Days()
	if days <= 0 {
		util.Debugf("pruning disabled")
		return
	}
	store := j.Store()
	if store == nil {
		return
	}
	util.Infof("pruning rows older than %d days", days)
	store.Prune(days)
}

// RunEviction drops cache entries not re-detected within the configured
// interval. While the interval is unset the loop idles.
func (j *Janitor) RunEviction(ctx context.Context) {
	for {
		ttl := j.TTL()
		if ttl <= 0 {
			select {
			case <-time.After(idleRecheck):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(ttl):
			if n := j.Cache.EvictOlderThan(ttl); n > 0 {
				util.Infof("evicted %d stale tags", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
