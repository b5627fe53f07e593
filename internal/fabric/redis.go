package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tripcrew/tripchat/pkg/log"
)

// RoomChannel returns the broker channel name for a room.
func RoomChannel(roomID string) string {
	return fmt.Sprintf("tripchat:room:%s", roomID)
}

// RedisConfig holds the broker connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// RedisFabric is the broker-backed Fabric for multi-process deployments.
// It layers redis pub/sub on top of a MemoryFabric: publishes go to redis
// only, and redis loops every event back to each process (this one
// included), where the local fan-out delivers it. Per-publisher ordering
// holds because redis preserves publish order per connection.
type RedisFabric struct {
	client *redis.Client
	local  *MemoryFabric

	mu    sync.Mutex
	rooms map[string]*redisRoom
}

type redisRoom struct {
	pubsub *redis.PubSub
	refs   int
}

// NewRedisFabric connects to redis and returns a broker-backed fabric.
func NewRedisFabric(cfg RedisConfig, bufferSize int) (*RedisFabric, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisFabric{
		client: client,
		local:  NewMemoryFabric(bufferSize),
		rooms:  make(map[string]*redisRoom),
	}, nil
}

// Subscribe adds a local subscriber and opens the room's redis channel on
// first use.
func (f *RedisFabric) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	f.mu.Lock()
	room, ok := f.rooms[roomID]
	if !ok {
		pubsub := f.client.Subscribe(context.Background(), RoomChannel(roomID))
		room = &redisRoom{pubsub: pubsub}
		f.rooms[roomID] = room
		go f.pump(roomID, pubsub)
	}
	room.refs++
	f.mu.Unlock()

	sub, err := f.local.Subscribe(ctx, roomID)
	if err != nil {
		f.release(roomID)
		return nil, err
	}

	// Chain the local teardown with the broker-side refcount.
	inner := sub.cancel
	sub.cancel = func() {
		inner()
		f.release(roomID)
	}
	return sub, nil
}

// Publish sends the event to the room's redis channel. Delivery to local
// subscribers happens when redis loops the event back.
func (f *RedisFabric) Publish(ctx context.Context, roomID string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return f.client.Publish(ctx, RoomChannel(roomID), data).Err()
}

// Close shuts down all room channels, the local fan-out and the client.
func (f *RedisFabric) Close() error {
	f.mu.Lock()
	for _, room := range f.rooms {
		room.pubsub.Close()
	}
	f.rooms = make(map[string]*redisRoom)
	f.mu.Unlock()

	f.local.Close()
	return f.client.Close()
}

// pump feeds redis messages for one room into the local fan-out. It exits
// when the room's pubsub is closed.
func (f *RedisFabric) pump(roomID string, pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("dropping malformed fabric event from redis")
			continue
		}
		if err := f.local.Publish(context.Background(), roomID, &event); err != nil {
			return
		}
	}
}

// release decrements the room's refcount and closes the redis channel when
// the last local subscriber leaves.
func (f *RedisFabric) release(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[roomID]
	if !ok {
		return
	}
	room.refs--
	if room.refs <= 0 {
		room.pubsub.Close()
		delete(f.rooms, roomID)
	}
}
