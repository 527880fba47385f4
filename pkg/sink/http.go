package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

const httpPostTimeout = 10 * time.Second

// HTTPSink POSTs every event as a JSON envelope to a fixed URL.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTP builds an HTTP poster for the given endpoint.
func NewHTTP(url string) *HTTPSink {
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: httpPostTimeout},
	}
}

func (s *HTTPSink) Name() string { return "http_post" }

func (s *HTTPSink) Publish(e tag.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return util.WrapTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s responded %s", s.url, resp.Status)
	}
	return nil
}

func (s *HTTPSink) Close() error { return nil }
