package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisConfigKey     = "threatreg:config:settings"
	redisConfigChannel = "threatreg:config:updates"
	redisOpTimeout     = 5 * time.Second
	resubscribeDelay   = time.Second
)

var errOwnUpdate = errors.New("config sync: update published by this instance")

// syncEnvelope is the payload stored under redisConfigKey and published on
// redisConfigChannel.
type syncEnvelope struct {
	Origin string `json:"origin"`
	Config Config `json:"config"`
}

type redisSync struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

var (
	peerSync = redisSync{}
	// instanceID tags published updates so an instance skips its own echo.
	instanceID = uuid.NewString()
)

func DisableRedisSynchronization() {
	peerSync.mu.Lock()
	defer peerSync.mu.Unlock()

	if peerSync.cancel != nil {
		peerSync.cancel()
	}
	peerSync.client, peerSync.ctx, peerSync.cancel = nil, nil, nil
}

// EnableRedisSynchronization shares settings with peer instances. A stored
// snapshot in redis wins over the local file; otherwise the local settings are
// published.
func EnableRedisSynchronization(ctx context.Context, client *redis.Client) {
	if client == nil {
		log.Warn("Config synchronization disabled: redis client is nil")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	syncCtx, cancel := context.WithCancel(ctx)

	peerSync.mu.Lock()
	if peerSync.client != nil {
		peerSync.mu.Unlock()
		cancel()
		return
	}
	peerSync.client, peerSync.ctx, peerSync.cancel = client, syncCtx, cancel
	peerSync.mu.Unlock()

	loaded, err := loadSnapshot(syncCtx, client)
	if err != nil {
		log.Error("Config sync: stored snapshot rejected", "error", err)
	}
	if !loaded {
		if err := publishConfig(GetConfig()); err != nil {
			log.Error("Config sync: failed to publish configuration", "error", err)
		}
	}

	go subscribe(syncCtx, client)
}

func loadSnapshot(ctx context.Context, client *redis.Client) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	payload, err := client.Get(opCtx, redisConfigKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// Snapshots are applied regardless of origin.
	cfg, _, err := decodeRemoteConfig(payload)
	if err != nil {
		return false, err
	}
	return true, applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"})
}

func subscribe(ctx context.Context, client *redis.Client) {
	pubsub := client.Subscribe(ctx, redisConfigChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("Config sync: subscription error", "error", err)
			time.Sleep(resubscribeDelay)
			continue
		}

		switch err := applyRemoteUpdate([]byte(msg.Payload)); {
		case errors.Is(err, errOwnUpdate):
		case err != nil:
			log.Error("Config sync: remote update rejected", "error", err)
		}
	}
}

// applyRemoteUpdate applies a peer's configuration. A payload with any invalid
// destination is refused whole.
func applyRemoteUpdate(payload []byte) error {
	cfg, origin, err := decodeRemoteConfig(payload)
	if err != nil {
		return err
	}
	if origin == instanceID {
		return errOwnUpdate
	}
	return applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"})
}

func decodeRemoteConfig(payload []byte) (Config, string, error) {
	var env syncEnvelope
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&env); err != nil {
		return Config{}, "", fmt.Errorf("config sync: decode payload: %w", err)
	}

	if _, problems := Validate(env.Config); len(problems) > 0 {
		return Config{}, env.Origin, fmt.Errorf("config sync: invalid configuration from %s: %w", env.Origin, errors.Join(problems...))
	}
	return env.Config, env.Origin, nil
}

func publishConfig(cfg Config) error {
	peerSync.mu.RLock()
	client, baseCtx := peerSync.client, peerSync.ctx
	peerSync.mu.RUnlock()

	if client == nil {
		return nil
	}

	payload, err := json.Marshal(syncEnvelope{Origin: instanceID, Config: cfg})
	if err != nil {
		return err
	}

	if baseCtx == nil || baseCtx.Err() != nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, redisOpTimeout)
	defer cancel()

	if err := client.Set(ctx, redisConfigKey, payload, 0).Err(); err != nil {
		return err
	}
	return client.Publish(ctx, redisConfigChannel, payload).Err()
}
