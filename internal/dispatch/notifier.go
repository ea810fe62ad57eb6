package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"threatreg/internal/domain"
)

const OutcomeChannel = "threatreg:delivery:outcomes"

// RedisNotifier publishes each delivery outcome as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, channel: OutcomeChannel}
}

func (n *RedisNotifier) PublishOutcome(ctx context.Context, outcome domain.DeliveryOutcome) error {
	if n == nil || n.client == nil {
		return nil
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("dispatch: encode outcome: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("dispatch: publish outcome: %w", err)
	}
	return nil
}
