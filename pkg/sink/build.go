package sink

import (
	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/util"
)

// Build assembles the sink set for an actions config. A nil Recorder skips
// the database sink even when DATABASE_URL is set (the engine failed to
// initialize); misconfigured sinks are logged and skipped so one bad URL
// never takes the others down.
func Build(a *config.Actions, rec Recorder) []Sink {
	var sinks []Sink

	if rec != nil {
		sinks = append(sinks, NewDB(rec))
	}
	if a.HTTPPost != "" {
		sinks = append(sinks, NewHTTP(a.HTTPPost))
	}
	if a.MQTTURL != "" {
		if s, err := NewMQTT(a.MQTTURL); err != nil {
			util.WithSink("mqtt").Errorf("disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if a.XTrackURL != "" {
		sinks = append(sinks, NewXTrack(a.XTrackURL))
	}
	if a.RedisURL != "" {
		if s, err := NewRedis(a.RedisURL); err != nil {
			util.WithSink("redis").Errorf("disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if a.Beep {
		sinks = append(sinks, NewBeep())
	}
	return sinks
}
