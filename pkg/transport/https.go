package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smartx-rfid/smartx/pkg/util"
)

// ControlTimeout bounds control-plane requests; the event stream itself is
// unbounded.
const ControlTimeout = 3 * time.Second

// HTTPSClient talks to a reader's REST interface over its self-signed
// certificate, with basic auth on every request.
type HTTPSClient struct {
	base     string
	username string
	password string
	control  *http.Client
	stream   *http.Client
}

// NewHTTPSClient builds a client for host (scheme optional, defaults to
// https).
func NewHTTPSClient(host, username, password string) *HTTPSClient {
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &HTTPSClient{
		base:     strings.TrimRight(host, "/"),
		username: username,
		password: password,
		control:  &http.Client{Transport: transport, Timeout: ControlTimeout},
		stream:   &http.Client{Transport: transport},
	}
}

// Do performs a control-plane request with an optional JSON body and
// returns the response payload. Non-2xx responses are errors carrying the
// response text.
func (c *HTTPSClient) Do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.control.Do(req)
	if err != nil {
		return nil, util.WrapTransport(err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return payload, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(payload))
	}
	return payload, nil
}

// Stream opens the long-lived NDJSON event stream. The caller owns the
// reader and must close it; cancelling ctx aborts the stream.
func (c *HTTPSClient) Stream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, util.WrapTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return resp.Body, nil
}
