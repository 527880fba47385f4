// Package pipeline is the single funnel all driver events flow through:
// validation, per-EPC dedup, GTIN enrichment, the event ring, and fan-out
// to the configured sinks.
package pipeline

import (
	"sync"
	"time"

	"github.com/smartx-rfid/smartx/pkg/sink"
	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

// Pipeline implements the driver event callbacks. It owns the TagCache and
// EventRing; sinks are replaceable at runtime when the actions config is
// rewritten.
type Pipeline struct {
	cache *TagCache
	ring  *EventRing

	mu    sync.RWMutex
	sinks []sink.Sink
}

// New builds a pipeline with an empty cache and ring.
func New() *Pipeline {
	return &Pipeline{
		cache: NewTagCache(),
		ring:  NewEventRing(DefaultRingSize),
	}
}

// Cache exposes the tag cache for the control surface.
func (p *Pipeline) Cache() *TagCache { return p.cache }

// Ring exposes the event ring for the control surface.
func (p *Pipeline) Ring() *EventRing { return p.ring }

// SetSinks replaces the fan-out targets, closing the previous set.
func (p *Pipeline) SetSinks(sinks []sink.Sink) {
	p.mu.Lock()
	old := p.sinks
	p.sinks = sinks
	p.mu.Unlock()

	for _, s := range old {
		if err := s.Close(); err != nil {
			util.WithSink(s.Name()).Warnf("close: %v", err)
		}
	}
}

// Close shuts down the current sink set.
func (p *Pipeline) Close() {
	p.SetSinks(nil)
}

// OnTag validates a reading and folds it into the cache. Only the first
// detection of an EPC fans out to sinks; re-detections just refresh the
// cached entry.
func (p *Pipeline) OnTag(r tag.Reading) {
	if err := r.Validate(); err != nil {
		util.WithDevice(r.Device).Warnf("dropping invalid tag: %v", err)
		return
	}

	stored, isNew := p.cache.Upsert(r)
	if !isNew {
		return
	}
	util.WithDevice(r.Device).Debugf("new tag %s ant=%d", stored.EPC, stored.Ant)
	p.publish(tag.Event{
		Timestamp: stored.Timestamp,
		Device:    stored.Device,
		EventType: tag.EventTypeTag,
		EventData: stored,
	})
}

// OnEvent records a non-tag event in the ring and fans it out. Events of
// type "tag" are routed through OnTag when the payload is a reading.
func (p *Pipeline) OnEvent(device, eventType string, data interface{}) {
	if eventType == tag.EventTypeTag {
		switch r := data.(type) {
		case tag.Reading:
			r.Device = device
			p.OnTag(r)
			return
		case *tag.Reading:
			rr := *r
			rr.Device = device
			p.OnTag(rr)
			return
		}
	}

	e := tag.Event{
		Timestamp: time.Now(),
		Device:    device,
		EventType: eventType,
		EventData: data,
	}
	p.ring.Push(e)
	p.publish(e)
}

// OnStart clears the device's tags and records the inventory start.
func (p *Pipeline) OnStart(device string) {
	p.ClearTags(device)
	p.OnEvent(device, tag.EventTypeInventory, true)
}

// OnStop records the inventory stop.
func (p *Pipeline) OnStop(device string) {
	p.OnEvent(device, tag.EventTypeInventory, false)
}

// OnConnect records the connection coming up.
func (p *Pipeline) OnConnect(device string) {
	util.WithDevice(device).Info("connected")
	p.OnEvent(device, tag.EventTypeConnection, true)
}

// OnDisconnect records the connection going down.
func (p *Pipeline) OnDisconnect(device string) {
	util.WithDevice(device).Info("disconnected")
	p.OnEvent(device, tag.EventTypeConnection, false)
}

// TIDForEPC resolves a cached TID so write paths can promote an EPC
// selector.
func (p *Pipeline) TIDForEPC(device, epc string) string {
	return p.cache.TIDForEPC(device, epc)
}

// ClearTags evicts the device's tags ("" clears everything).
func (p *Pipeline) ClearTags(device string) int {
	n := p.cache.Clear(device)
	if n > 0 {
		util.WithDevice(device).Debugf("cleared %d tags", n)
	}
	return n
}

// publish fans an event out to every sink, one goroutine per sink so a
// slow or failing sink never blocks the pipeline or its peers.
func (p *Pipeline) publish(e tag.Event) {
	p.mu.RLock()
	sinks := p.sinks
	p.mu.RUnlock()

	for _, s := range sinks {
		go func(s sink.Sink) {
			if err := s.Publish(e); err != nil {
				util.WithSink(s.Name()).Warnf("publish failed: %v", err)
			}
		}(s)
	}
}
