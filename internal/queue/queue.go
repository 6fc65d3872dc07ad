// Package queue carries decoded QR frames from scanning stations to the
// sync agent.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"rotcunit/internal/model"
)

// Frame is one decoded QR scan from a station. Payload is the raw decoded
// text; the server does its own parsing on submission.
type Frame struct {
	StationID  string           `json:"station_id"`
	DayID      string           `json:"day_id"`
	PersonType model.PersonType `json:"person_type"`
	Payload    string           `json:"payload"`
	ScannedAt  time.Time        `json:"scanned_at"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, f Frame) error
	Consume(ctx context.Context) (<-chan Frame, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Frame
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Frame, size)}
}

// Publish enqueues a frame.
func (q *InMemory) Publish(ctx context.Context, f Frame) error {
	select {
	case q.ch <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for the agent.
func (q *InMemory) Consume(ctx context.Context) (<-chan Frame, error) {
	out := make(chan Frame)
	go func() {
		defer close(out)
		for {
			select {
			case f := <-q.ch:
				out <- f
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "rotcunit:scans"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a frame.
func (q *RedisQueue) Publish(ctx context.Context, f Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume streams frames using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Frame, error) {
	out := make(chan Frame)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var f Frame
				if err := json.Unmarshal([]byte(res[1]), &f); err == nil {
					out <- f
				}
			}
		}
	}()
	return out, nil
}
