// Package testutil provides the shared test fakes: an event recorder
// implementing the driver callback surface and a scriptable line server
// for exercising TCP drivers against a real socket.
package testutil

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/smartx-rfid/smartx/pkg/tag"
)

// EventRecorder captures every driver callback for later assertions.
type EventRecorder struct {
	mu          sync.Mutex
	tags        []tag.Reading
	events      []RecordedEvent
	starts      int
	stops       int
	connects    int
	disconnects int
	tids        map[string]string
}

// RecordedEvent is one OnEvent invocation.
type RecordedEvent struct {
	Device    string
	EventType string
	Data      interface{}
}

// NewEventRecorder builds an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{tids: map[string]string{}}
}

func (r *EventRecorder) OnConnect(device string) {
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()
}

func (r *EventRecorder) OnDisconnect(device string) {
	r.mu.Lock()
	r.disconnects++
	r.mu.Unlock()
}

func (r *EventRecorder) OnStart(device string) {
	r.mu.Lock()
	r.starts++
	r.mu.Unlock()
}

func (r *EventRecorder) OnStop(device string) {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

func (r *EventRecorder) OnTag(reading tag.Reading) {
	r.mu.Lock()
	r.tags = append(r.tags, reading)
	r.mu.Unlock()
}

func (r *EventRecorder) OnEvent(device, eventType string, data interface{}) {
	r.mu.Lock()
	r.events = append(r.events, RecordedEvent{Device: device, EventType: eventType, Data: data})
	r.mu.Unlock()
}

func (r *EventRecorder) TIDForEPC(device, epc string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tids[epc]
}

// SetTID seeds the EPC to TID lookup used by write promotion.
func (r *EventRecorder) SetTID(epc, tid string) {
	r.mu.Lock()
	r.tids[epc] = tid
	r.mu.Unlock()
}

// Tags returns a copy of the recorded readings.
func (r *EventRecorder) Tags() []tag.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tag.Reading(nil), r.tags...)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// Counts returns the connect/disconnect/start/stop totals.
func (r *EventRecorder) Counts() (connects, disconnects, starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, r.disconnects, r.starts, r.stops
}

// ServeLines starts a TCP listener that writes the given lines to the
// first connection and then closes it. Returns the listen port.
func ServeLines(t *testing.T, lines []string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for _, line := range lines {
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				return
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// WaitFor polls cond until it holds or the deadline passes.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
