package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher routes an event to whichever connection joined room.
// Delivery is best effort: nobody listening is not an error.
type Publisher interface {
	Publish(ctx context.Context, room, event string, data interface{}) error
}

// LocalPublisher emits into the in-process hub.
type LocalPublisher struct {
	hub *Hub
}

// NewLocalPublisher delivers events straight to hub in this process.
func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

func (p *LocalPublisher) Publish(_ context.Context, room, event string, data interface{}) error {
	_, err := p.hub.Emit(room, event, data)
	return err
}

type envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RedisPublisher fans events out over a Redis channel so the instance holding
// the socket delivers them, whichever instance ran the prediction.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     *zap.SugaredLogger
}

// NewRedisPublisher publishes on channel (default "paddyhealth:push"). Call
// Start to forward messages from the channel into hub.
func NewRedisPublisher(rdb *redis.Client, channel string, hub *Hub, log *zap.SugaredLogger) (*RedisPublisher, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	if channel == "" {
		channel = "paddyhealth:push"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, hub: hub, log: log}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, room, event string, data interface{}) error {
	raw, err := encodeEnvelope(room, event, data)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

// Start subscribes to the channel and forwards envelopes to the local hub until ctx ends.
// The returned channel is closed when the forwarder has exited.
func (p *RedisPublisher) Start(ctx context.Context) (<-chan struct{}, error) {
	sub := p.rdb.Subscribe(ctx, p.channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				p.dispatch([]byte(m.Payload))
			}
		}
	}()
	return done, nil
}

func (p *RedisPublisher) dispatch(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Room == "" || env.Event == "" {
		p.log.Warnw("bad push envelope", "error", err)
		return
	}
	frame, err := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data,omitempty"`
	}{env.Event, env.Data})
	if err != nil {
		return
	}
	n := p.hub.EmitFrame(env.Room, frame)
	delivered := "true"
	if n == 0 {
		delivered = "false"
	}
	eventsEmitted.WithLabelValues(env.Event, delivered).Inc()
}

func encodeEnvelope(room, event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Room: room, Event: event, Data: raw})
}
