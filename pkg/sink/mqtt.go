package sink

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

const mqttPublishTimeout = 10 * time.Second

// MQTTSink publishes the JSON envelope to a broker topic at QoS 0. The
// client is persistent and reconnects on its own between publishes.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

// NewMQTT parses an mqtt://host:port/topic URL and connects a persistent
// client. A broker that is down at startup is not an error; the client
// retries in the background.
func NewMQTT(rawURL string) (*MQTTSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, util.NewConfigError("MQTT_URL", err.Error())
	}
	topic := strings.Trim(u.Path, "/")
	if u.Host == "" || topic == "" {
		return nil, util.NewConfigError("MQTT_URL", "expected mqtt://host:port/topic")
	}

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + u.Host).
		SetClientID(fmt.Sprintf("smartx-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(3 * time.Second)

	client := mqtt.NewClient(opts)
	client.Connect()

	return &MQTTSink{client: client, topic: topic}, nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Publish(e tag.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return util.ErrProtocolTimeout
	}
	return token.Error()
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
