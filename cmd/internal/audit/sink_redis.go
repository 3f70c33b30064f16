package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream security events are appended to.
const DefaultStream = "warden:audit"

// RedisSink appends events to a Redis stream with XADD, so other services
// can react to security incidents. Only warning and critical events are sent
// unless AllLevels is set.
type RedisSink struct {
	client    redis.Cmdable
	stream    string
	maxLen    int64
	AllLevels bool
}

// NewRedisSink returns a sink writing to stream, trimmed to about maxLen entries (0 = untrimmed).
func NewRedisSink(client redis.Cmdable, stream string, maxLen int64) (*RedisSink, error) {
	if client == nil {
		return nil, fmt.Errorf("audit: nil redis client")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}, nil
}

func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	if !s.AllLevels && e.Level == LevelInfo {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":     e.ID,
			"level":  string(e.Level),
			"action": e.Action,
			"event":  string(b),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}
