// Package queue carries mention tasks over a Redis stream: the listener
// side appends with XADD, workers read through a consumer group and
// acknowledge each entry once it has been handled.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"slackagent/pkg/logx"
	"slackagent/pkg/mention"
)

// PayloadField is the stream entry field holding the JSON task.
const PayloadField = "payload"

// Defaults applied by New for zero config values.
const (
	DefaultStream   = "slackagent:mentions"
	DefaultGroup    = "slackagent"
	DefaultConsumer = "worker-1"
	DefaultWorkers  = 4
	DefaultBlock    = 2 * time.Second
)

// ErrBadPayload marks stream entries that cannot be decoded.
var ErrBadPayload = errors.New("malformed queue payload")

// Handler processes one task. A returned error leaves the entry pending in
// the consumer group.
type Handler func(ctx context.Context, task mention.Task) error

// streams is the subset of redis.Cmdable the queue uses.
type streams interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Config describes the stream and consumer group.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
	Workers  int
	Block    time.Duration
}

func (c *Config) applyDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Consumer == "" {
		c.Consumer = DefaultConsumer
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Block <= 0 {
		c.Block = DefaultBlock
	}
}

// Queue is both producer and consumer for one stream.
type Queue struct {
	rdb    *redis.Client
	client streams
	cfg    Config
	logger *logx.Logger
}

// New connects to Redis. The connection is checked lazily; call Ping to
// fail fast.
func New(cfg Config) *Queue {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	q := newQueue(rdb, cfg)
	q.rdb = rdb
	return q
}

func newQueue(client streams, cfg Config) *Queue {
	cfg.applyDefaults()
	return &Queue{client: client, cfg: cfg, logger: logx.NewLogger("queue")}
}

// Ping checks that Redis is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	if q.rdb == nil {
		return nil
	}
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the connection.
func (q *Queue) Close() error {
	if q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}

// Submit appends task to the stream. It implements slackbot.Sink.
func (q *Queue) Submit(ctx context.Context, task mention.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]any{PayloadField: string(payload)},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	logx.Debug(ctx, "queue", "task %s appended as %s", task.ID, id)
	return nil
}

// Decode extracts the task from a stream entry.
func Decode(msg redis.XMessage) (mention.Task, error) {
	var task mention.Task
	raw, ok := msg.Values[PayloadField].(string)
	if !ok {
		return task, fmt.Errorf("%w: entry %s has no %s field", ErrBadPayload, msg.ID, PayloadField)
	}
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return task, fmt.Errorf("%w: entry %s: %v", ErrBadPayload, msg.ID, err)
	}
	return task, nil
}

func (q *Queue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", q.cfg.Group, err)
	}
	return nil
}

// Consume reads the stream with cfg.Workers handlers until ctx ends. Entries
// already handed to a worker are finished before Consume returns.
func (q *Queue) Consume(ctx context.Context, handle Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	q.logger.Info("🚀 Consuming %s as %s/%s with %d workers",
		q.cfg.Stream, q.cfg.Group, q.cfg.Consumer, q.cfg.Workers)

	jobs := make(chan redis.XMessage)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		return q.read(gctx, jobs)
	})
	for range q.cfg.Workers {
		g.Go(func() error {
			for msg := range jobs {
				q.process(context.WithoutCancel(gctx), msg, handle)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	q.logger.Info("Queue consumer stopped")
	return err
}

func (q *Queue) read(ctx context.Context, jobs chan<- redis.XMessage) error {
	for ctx.Err() == nil {
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.Group,
			Consumer: q.cfg.Consumer,
			Streams:  []string{q.cfg.Stream, ">"},
			Count:    int64(q.cfg.Workers),
			Block:    q.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Warn("⚠️ Redis read error: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				select {
				case jobs <- msg:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return ctx.Err()
}

func (q *Queue) process(ctx context.Context, msg redis.XMessage, handle Handler) {
	task, err := Decode(msg)
	if err == nil {
		err = task.Validate()
	}
	if err != nil {
		// Poison entries are acknowledged so they are not redelivered.
		q.logger.Error("❌ Dropping entry %s: %v", msg.ID, err)
		q.ack(ctx, msg.ID)
		return
	}
	if err := handle(ctx, task); err != nil {
		q.logger.Error("❌ Task %s failed, leaving entry %s pending: %v", task.ID, msg.ID, err)
		return
	}
	q.ack(ctx, msg.ID)
}

func (q *Queue) ack(ctx context.Context, id string) {
	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, id).Err(); err != nil {
		q.logger.Warn("⚠️ Failed to ack %s: %v", id, err)
	}
}
