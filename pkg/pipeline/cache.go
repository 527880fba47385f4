package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/smartx-rfid/smartx/pkg/tag"
)

// TagCache deduplicates tag detections by EPC. The event pipeline is the
// only writer; the control surface and sinks read snapshots.
type TagCache struct {
	mu   sync.RWMutex
	tags map[string]*tag.Tag
}

// NewTagCache returns an empty cache.
func NewTagCache() *TagCache {
	return &TagCache{tags: make(map[string]*tag.Tag)}
}

// Upsert folds a validated reading into the cache and returns the stored
// tag plus whether the EPC was new. On re-detection the timestamp always
// advances and count increments, but RSSI and antenna are replaced only
// when the new signal is stronger (closer to zero) than the stored one.
func (c *TagCache) Upsert(r tag.Reading) (tag.Tag, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tags[r.EPC]; ok {
		t.Timestamp = now
		t.Count++
		if t.TID == "" && r.TID != "" {
			t.TID = r.TID
		}
		if stronger(r.RSSI, t.RSSI) {
			t.RSSI = r.RSSI
			t.Ant = r.Ant
		}
		return *t, false
	}

	t := &tag.Tag{
		Timestamp: now,
		Device:    r.Device,
		EPC:       r.EPC,
		TID:       r.TID,
		Ant:       r.Ant,
		RSSI:      r.RSSI,
		GTIN:      tag.DecodeGTIN(r.EPC),
		Count:     1,
	}
	c.tags[r.EPC] = t
	return *t, true
}

// stronger reports whether candidate beats stored. A missing candidate
// never wins; a missing stored value always loses.
func stronger(candidate, stored *int) bool {
	if candidate == nil {
		return false
	}
	if stored == nil {
		return true
	}
	return *candidate > *stored
}

// Snapshot returns a copy of all cached tags, newest first.
func (c *TagCache) Snapshot() []tag.Tag {
	c.mu.RLock()
	out := make([]tag.Tag, 0, len(c.tags))
	for _, t := range c.tags {
		out = append(out, *t)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Count returns the number of distinct EPCs cached.
func (c *TagCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tags)
}

// EPCs returns the cached EPCs, sorted.
func (c *TagCache) EPCs() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.tags))
	for epc := range c.tags {
		out = append(out, epc)
	}
	c.mu.RUnlock()

	sort.Strings(out)
	return out
}

// GTINCounts returns a histogram of decoded GTINs. Tags without a decodable
// GTIN are omitted.
func (c *TagCache) GTINCounts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int)
	for _, t := range c.tags {
		if t.GTIN != "" {
			out[t.GTIN]++
		}
	}
	return out
}

// TIDForEPC returns the cached TID for an EPC seen on a device, or "" when
// unknown.
func (c *TagCache) TIDForEPC(device, epc string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if t, ok := c.tags[epc]; ok && t.Device == device {
		return t.TID
	}
	return ""
}

// Clear evicts all tags seen by the named device, or everything when the
// device is empty. Returns the number of evicted entries.
func (c *TagCache) Clear(device string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if device == "" {
		n := len(c.tags)
		c.tags = make(map[string]*tag.Tag)
		return n
	}
	n := 0
	for epc, t := range c.tags {
		if t.Device == device {
			delete(c.tags, epc)
			n++
		}
	}
	return n
}

// EvictOlderThan removes tags last seen more than maxAge ago and returns
// how many were removed.
func (c *TagCache) EvictOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for epc, t := range c.tags {
		if t.Timestamp.Before(cutoff) {
			delete(c.tags, epc)
			n++
		}
	}
	return n
}
