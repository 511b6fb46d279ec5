package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is the outbox entry consumed by the chat front end.
type Message struct {
	Recipient int64     `json:"recipient"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// RedisNotifier appends messages to a Redis list and publishes them on a channel
// of the same name. The front end drains the list (or subscribes) and delivers.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	maxLen  int64
	now     func() time.Time
}

// NewRedisNotifier creates an outbox notifier. maxLen caps the list; zero means unbounded.
func NewRedisNotifier(client *redis.Client, channel string, maxLen int64) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		maxLen:  maxLen,
		now:     time.Now,
	}
}

// Send enqueues one message.
func (n *RedisNotifier) Send(ctx context.Context, recipient int64, kind Kind, text string) error {
	data, err := json.Marshal(Message{
		Recipient: recipient,
		Kind:      kind,
		Text:      text,
		At:        n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	_, err = n.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, n.channel, data)
		if n.maxLen > 0 {
			pipe.LTrim(ctx, n.channel, -n.maxLen, -1)
		}
		pipe.Publish(ctx, n.channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}

	return nil
}
