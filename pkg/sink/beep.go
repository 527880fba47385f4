package sink

import (
	"io"
	"os"

	"github.com/smartx-rfid/smartx/pkg/tag"
)

// BeepSink rings the terminal bell on each new tag read. Useful on the
// machines operators run next to a dock door.
type BeepSink struct {
	out io.Writer
}

// NewBeep returns a bell sink writing to stdout.
func NewBeep() *BeepSink {
	return &BeepSink{out: os.Stdout}
}

func (s *BeepSink) Name() string { return "beep" }

func (s *BeepSink) Publish(e tag.Event) error {
	if e.EventType != tag.EventTypeTag {
		return nil
	}
	_, err := s.out.Write([]byte{0x07})
	return err
}

func (s *BeepSink) Close() error { return nil }
