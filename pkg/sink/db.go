package sink

import (
	"github.com/smartx-rfid/smartx/pkg/tag"
)

// Recorder is the persistence surface the DB sink writes through. The
// store package implements it.
type Recorder interface {
	SaveTag(t tag.Tag) error
	SaveEvent(e tag.Event) error
}

// DBSink persists tag reads and events through a Recorder.
type DBSink struct {
	rec Recorder
}

// NewDB wraps a Recorder as a sink.
func NewDB(rec Recorder) *DBSink {
	return &DBSink{rec: rec}
}

func (s *DBSink) Name() string { return "database" }

func (s *DBSink) Publish(e tag.Event) error {
	if e.EventType == tag.EventTypeTag {
		if t, ok := e.EventData.(tag.Tag); ok {
			return s.rec.SaveTag(t)
		}
	}
	return s.rec.SaveEvent(e)
}

func (s *DBSink) Close() error { return nil }
