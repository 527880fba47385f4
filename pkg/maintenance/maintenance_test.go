package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/smartx-rfid/smartx/pkg/pipeline"
	"github.com/smartx-rfid/smartx/pkg/tag"
)

type fakePruner struct {
	calls []int
}

func (f *fakePruner) Prune(days int) { f.calls = append(f.calls, days) }

func TestNextMidnight(t *testing.T) {
	cases := []struct {
		now  string
		want string
	}{
		// 02:59 UTC is still the previous day in UTC-3
		{"2026-08-24T02:59:00Z", "2026-08-24T03:00:00Z"},
		{"2026-08-24T03:00:00Z", "2026-08-25T03:00:00Z"},
		{"2026-08-24T15:30:00Z", "2026-08-25T03:00:00Z"},
		{"2026-12-31T23:00:00Z", "2027-01-01T03:00:00Z"},
	}
	for _, tc := range cases {
		now, err := time.Parse(time.RFC3339, tc.now)
		if err != nil {
			t.Fatal(err)
		}
		want, _ := time.Parse(time.RFC3339, tc.want)
		if got := NextMidnight(now); !got.Equal(want) {
			t.Errorf("NextMidnight(%s) = %s, want %s", tc.now, got.UTC().Format(time.RFC3339), tc.want)
		}
	}
}

func TestPruneOnce(t *testing.T) {
	pruner := &fakePruner{}
	j := &Janitor{
		Store: func() Pruner { return pruner },
		Days:  func() int { return 7 },
	}
	j.pruneOnce()
	if len(pruner.calls) != 1 || pruner.calls[0] != 7 {
		t.Errorf("prune calls = %v", pruner.calls)
	}
}

func TestPruneDisabled(t *testing.T) {
	pruner := &fakePruner{}
	j := &Janitor{
		Store: func() Pruner { return pruner },
		Days:  func() int { return 0 },
	}
	j.pruneOnce()
	if len(pruner.calls) != 0 {
		t.Errorf("disabled prune still ran: %v", pruner.calls)
	}
}

func TestPruneWithoutStore(t *testing.T) {
	j := &Janitor{
		Store: func() Pruner { return nil },
		Days:  func() int { return 7 },
	}
	j.pruneOnce()
}

func TestEvictionLoop(t *testing.T) {
	cache := pipeline.NewTagCache()
	rssi := -40
	cache.Upsert(tag.Reading{Device: "GATE1", EPC: "3074257bf7194e4000001a85", Ant: 1, RSSI: &rssi})

	j := &Janitor{
		TTL:   func() time.Duration { return 20 * time.Millisecond },
		Cache: cache,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.RunEviction(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for cache.Count() > 0 {
		select {
		case <-deadline:
			t.Fatal("stale tag was never evicted")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
