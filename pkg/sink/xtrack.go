package sink

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

// xtrackTemplate is the fixed ReportRead message the XTrack gateway expects.
const xtrackTemplate = `<msg><command>ReportRead</command>
  <data>EVENT=|DEVICENAME=%s|ANTENNANAME=%d|TAGID=%s|</data>
  <cmpl>STATE=|DATA1=|DATA2=|DATA3=|DATA4=|DATA5=|</cmpl></msg>`

// XTrackSink posts tag reads to an XTrack gateway as XML. Non-tag events
// are ignored.
type XTrackSink struct {
	url    string
	client *http.Client
}

// NewXTrack builds an XTrack poster for the given endpoint.
func NewXTrack(url string) *XTrackSink {
	return &XTrackSink{
		url:    url,
		client: &http.Client{Timeout: httpPostTimeout},
	}
}

func (s *XTrackSink) Name() string { return "xtrack" }

func (s *XTrackSink) Publish(e tag.Event) error {
	t, ok := e.EventData.(tag.Tag)
	if e.EventType != tag.EventTypeTag || !ok {
		return nil
	}

	body := fmt.Sprintf(xtrackTemplate, t.Device, t.Ant, t.EPC)
	resp, err := s.client.Post(s.url, "application/xml", strings.NewReader(body))
	if err != nil {
		return util.WrapTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s responded %s", s.url, resp.Status)
	}
	return nil
}

func (s *XTrackSink) Close() error { return nil }
