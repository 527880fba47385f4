package sink

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

const redisPublishTimeout = 5 * time.Second

// RedisSink publishes the JSON envelope on a Redis pub/sub channel taken
// from the URL path (redis://host:port/channel).
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedis builds a Redis publisher from a redis://host:port/channel URL.
func NewRedis(rawURL string) (*RedisSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, util.NewConfigError("REDIS_URL", err.Error())
	}
	channel := strings.Trim(u.Path, "/")
	if u.Host == "" || channel == "" {
		return nil, util.NewConfigError("REDIS_URL", "expected redis://host:port/channel")
	}

	opts := &redis.Options{Addr: u.Host}
	if pw, ok := u.User.Password(); ok {
		opts.Password = pw
	}
	return &RedisSink{client: redis.NewClient(opts), channel: channel}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(e tag.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()
	return s.client.Publish(ctx, s.channel, payload).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
