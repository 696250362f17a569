package audit

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the subset of the redis client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisSink broadcasts records as JSON on a pub/sub channel so other
// processes can follow the bot's activity live.
type RedisSink struct {
	client  Publisher
	channel string
}

func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}
	return nil
}
