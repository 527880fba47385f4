package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartx-rfid/smartx/pkg/sink"
	"github.com/smartx-rfid/smartx/pkg/tag"
)

func intp(v int) *int { return &v }

// recordingSink collects every published event and signals arrival.
type recordingSink struct {
	mu     sync.Mutex
	events []tag.Event
	seen   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seen: make(chan struct{}, 64)}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(e tag.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	s.seen <- struct{}{}
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) wait(t *testing.T, n int) []tag.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tag.Event, len(s.events))
	copy(out, s.events)
	return out
}

type failingSink struct{}

func (failingSink) Name() string              { return "failing" }
func (failingSink) Publish(e tag.Event) error { return errors.New("endpoint down") }
func (failingSink) Close() error              { return nil }

func TestDedupConcurrent(t *testing.T) {
	p := New()
	const n = 10

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.OnTag(tag.Reading{Device: "D1", EPC: "a1b2c3d4e5f60718293a4b5c", Ant: 1})
		}()
	}
	wg.Wait()

	tags := p.Cache().Snapshot()
	if len(tags) != 1 {
		t.Fatalf("cache has %d entries, want 1", len(tags))
	}
	if tags[0].Count != n {
		t.Errorf("count = %d, want %d", tags[0].Count, n)
	}
}

func TestRSSIStrongerWins(t *testing.T) {
	p := New()
	epc := "a1b2c3d4e5f60718293a4b5c"

	p.OnTag(tag.Reading{Device: "D1", EPC: epc, Ant: 1, RSSI: intp(70)})
	p.OnTag(tag.Reading{Device: "D1", EPC: epc, Ant: 2, RSSI: intp(80)})

	got := p.Cache().Snapshot()[0]
	if got.RSSI == nil || *got.RSSI != -70 || got.Ant != 1 {
		t.Errorf("weaker reading overwrote: rssi=%v ant=%d, want -70/1", got.RSSI, got.Ant)
	}
	if got.Count != 2 {
		t.Errorf("count = %d, want 2", got.Count)
	}

	p.OnTag(tag.Reading{Device: "D1", EPC: epc, Ant: 3, RSSI: intp(60)})
	got = p.Cache().Snapshot()[0]
	if got.RSSI == nil || *got.RSSI != -60 || got.Ant != 3 {
		t.Errorf("stronger reading not stored: rssi=%v ant=%d, want -60/3", got.RSSI, got.Ant)
	}
}

func TestClearScope(t *testing.T) {
	p := New()
	p.OnTag(tag.Reading{Device: "D1", EPC: "a1b2c3d4e5f60718293a4b5c"})
	p.OnTag(tag.Reading{Device: "D2", EPC: "ffeeddccbbaa998877665544"})

	if n := p.ClearTags("D1"); n != 1 {
		t.Fatalf("ClearTags(D1) = %d, want 1", n)
	}
	tags := p.Cache().Snapshot()
	if len(tags) != 1 || tags[0].Device != "D2" {
		t.Fatalf("wrong survivor: %+v", tags)
	}

	if n := p.ClearTags(""); n != 1 {
		t.Fatalf("ClearTags(all) = %d, want 1", n)
	}
	if p.Cache().Count() != 0 {
		t.Error("cache not empty after full clear")
	}
}

func TestGTINEnrichment(t *testing.T) {
	p := New()
	p.OnTag(tag.Reading{Device: "D1", EPC: "3074257bf7194e4000001a85"})
	p.OnTag(tag.Reading{Device: "D1", EPC: "ffeeddccbbaa998877665544"})

	counts := p.Cache().GTINCounts()
	if counts["80614141123458"] != 1 {
		t.Errorf("GTINCounts = %v, want 80614141123458:1", counts)
	}
	if len(counts) != 1 {
		t.Errorf("undecodable EPC leaked into histogram: %v", counts)
	}
}

func TestInvalidReadingDropped(t *testing.T) {
	p := New()
	p.OnTag(tag.Reading{Device: "D1", EPC: "not-hex"})
	p.OnTag(tag.Reading{Device: "D1", EPC: "a1b2"})
	if p.Cache().Count() != 0 {
		t.Error("invalid readings must not enter the cache")
	}
}

func TestRedetectionDoesNotRepublish(t *testing.T) {
	p := New()
	rec := newRecordingSink()
	p.SetSinks([]sink.Sink{rec})

	p.OnTag(tag.Reading{Device: "D1", EPC: "a1b2c3d4e5f60718293a4b5c"})
	p.OnTag(tag.Reading{Device: "D1", EPC: "a1b2c3d4e5f60718293a4b5c"})
	p.OnTag(tag.Reading{Device: "D1", EPC: "ffeeddccbbaa998877665544"})

	events := rec.wait(t, 2)
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.EventType != tag.EventTypeTag {
			t.Errorf("event type = %q, want tag", e.EventType)
		}
	}
}

func TestSinkIsolation(t *testing.T) {
	p := New()
	rec := newRecordingSink()
	p.SetSinks([]sink.Sink{failingSink{}, rec})

	for i := 0; i < 5; i++ {
		p.OnEvent("D1", "status", i)
	}
	if got := rec.wait(t, 5); len(got) != 5 {
		t.Fatalf("healthy sink saw %d events, want 5", len(got))
	}
}

func TestOnStartClearsAndRecords(t *testing.T) {
	p := New()
	p.OnTag(tag.Reading{Device: "D1", EPC: "a1b2c3d4e5f60718293a4b5c"})

	p.OnStart("D1")

	if p.Cache().Count() != 0 {
		t.Error("OnStart must clear the device's tags")
	}
	events := p.Ring().Snapshot()
	if len(events) == 0 || events[0].EventType != tag.EventTypeInventory || events[0].EventData != true {
		t.Fatalf("ring head = %+v, want inventory=true", events)
	}

	p.OnStop("D1")
	events = p.Ring().Snapshot()
	if events[0].EventData != false {
		t.Errorf("ring head after stop = %+v, want inventory=false", events[0])
	}
}

func TestConnectionEvents(t *testing.T) {
	p := New()
	p.OnConnect("D1")
	p.OnDisconnect("D1")

	events := p.Ring().Snapshot()
	if len(events) != 2 {
		t.Fatalf("ring has %d events, want 2", len(events))
	}
	if events[0].EventType != tag.EventTypeConnection || events[0].EventData != false {
		t.Errorf("newest = %+v, want connection_event=false", events[0])
	}
	if events[1].EventData != true {
		t.Errorf("oldest = %+v, want connection_event=true", events[1])
	}
}

func TestEventRingBounded(t *testing.T) {
	r := NewEventRing(DefaultRingSize)
	for i := 0; i < 25; i++ {
		r.Push(tag.Event{Device: "D1", EventType: "seq", EventData: i})
	}
	events := r.Snapshot()
	if len(events) != DefaultRingSize {
		t.Fatalf("ring holds %d, want %d", len(events), DefaultRingSize)
	}
	if events[0].EventData != 24 || events[DefaultRingSize-1].EventData != 5 {
		t.Errorf("ring order wrong: head=%v tail=%v", events[0].EventData, events[len(events)-1].EventData)
	}
}

func TestTagEventRoutesThroughCache(t *testing.T) {
	p := New()
	p.OnEvent("D1", tag.EventTypeTag, tag.Reading{EPC: "a1b2c3d4e5f60718293a4b5c"})

	tags := p.Cache().Snapshot()
	if len(tags) != 1 || tags[0].Device != "D1" {
		t.Fatalf("tag event not folded into cache: %+v", tags)
	}
	if len(p.Ring().Snapshot()) != 0 {
		t.Error("tag readings must not enter the event ring")
	}
}

func TestEvictOlderThan(t *testing.T) {
	c := NewTagCache()
	for i := 0; i < 3; i++ {
		c.Upsert(tag.Reading{Device: "D1", EPC: fmt.Sprintf("%024x", i), Ant: 1})
	}
	c.tags["000000000000000000000000"].Timestamp = time.Now().Add(-time.Hour)

	if n := c.EvictOlderThan(30 * time.Minute); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if c.Count() != 2 {
		t.Errorf("cache has %d entries, want 2", c.Count())
	}
}
