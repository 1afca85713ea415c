package stream

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ally/internal/logger"
	"ally/pkg/errors"
	"ally/pkg/events"
	"ally/pkg/metrics"
)

// TrimPolicy bounds stream length so storage stays bounded regardless of
// consumer lag. Approximate trimming trades exact retention counts for
// append throughput; callers must not rely on an exact bound.
type TrimPolicy struct {
	MaxLen      int64
	Approximate bool
}

func DefaultTrimPolicy() TrimPolicy {
	return TrimPolicy{MaxLen: 100000, Approximate: true}
}

// Entry is one delivered stream record: the log-assigned id plus the flat
// field record. Owned by the transport; scorers and persistence never see it.
type Entry struct {
	Stream Key
	ID     string
	Fields map[string]interface{}
}

// Transport is the append/consume primitive over Redis Streams. The client is
// injected and owned by the caller's lifecycle.
type Transport struct {
	rdb *redis.Client
	log logger.Logger
}

func NewTransport(rdb *redis.Client, log logger.Logger) *Transport {
	return &Transport{rdb: rdb, log: log}
}

// Append writes a flat field record to the stream and returns the log-assigned
// entry id.
func (t *Transport) Append(ctx context.Context, key Key, fields map[string]interface{}, trim TrimPolicy) (string, error) {
	args := &redis.XAddArgs{
		Stream: key.String(),
		Values: fields,
	}
	if trim.MaxLen > 0 {
		args.MaxLen = trim.MaxLen
		args.Approx = trim.Approximate
	}

	id, err := t.rdb.XAdd(ctx, args).Result()
	if err != nil {
		metrics.StreamAppendsTotal.WithLabelValues(logicalOf(key), "error").Inc()
		return "", errors.Wrap(err, errors.KindTransport, "stream append failed")
	}

	metrics.StreamAppendsTotal.WithLabelValues(logicalOf(key), "ok").Inc()
	return id, nil
}

// AppendEnvelope flattens the envelope and appends it.
func (t *Transport) AppendEnvelope(ctx context.Context, key Key, env *events.EventEnvelope, trim TrimPolicy) (string, error) {
	fields, err := env.Flatten()
	if err != nil {
		return "", err
	}
	return t.Append(ctx, key, fields, trim)
}

// EnsureGroup creates the consumer group at the stream tail, creating the
// stream if it does not exist yet. Creating an existing group is not an
// error. New groups position at "$" so backlog before group creation is not
// replayed.
func (t *Transport) EnsureGroup(ctx context.Context, key Key, group string) error {
	err := t.rdb.XGroupCreateMkStream(ctx, key.String(), group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrap(err, errors.KindTransport, "consumer group creation failed")
	}
	return nil
}

// ReadBatch blocks up to block waiting for new entries assigned to consumer
// under group, across one or more streams. Returns zero entries on timeout.
func (t *Transport) ReadBatch(ctx context.Context, group, consumer string, keys []Key, count int64, block time.Duration) ([]Entry, error) {
	streams := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		streams = append(streams, k.String())
	}
	for range keys {
		streams = append(streams, ">")
	}

	res, err := t.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  streams,
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransport, "stream read failed")
	}

	var entries []Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			entries = append(entries, Entry{
				Stream: Key(s.Stream),
				ID:     msg.ID,
				Fields: msg.Values,
			})
		}
	}
	return entries, nil
}

// Ack marks the entry as durably processed for the group. Unacknowledged
// entries stay claimable by other consumers in the group.
func (t *Transport) Ack(ctx context.Context, key Key, group, id string) error {
	if err := t.rdb.XAck(ctx, key.String(), group, id).Err(); err != nil {
		return errors.Wrap(err, errors.KindTransport, "stream ack failed")
	}
	return nil
}

// Len reports the current stream length.
func (t *Transport) Len(ctx context.Context, key Key) (int64, error) {
	n, err := t.rdb.XLen(ctx, key.String()).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.KindTransport, "stream length read failed")
	}
	return n, nil
}

// Range reads entries between two ids, oldest first. Used by the replay and
// tail tooling.
func (t *Transport) Range(ctx context.Context, key Key, start, stop string, count int64) ([]Entry, error) {
	msgs, err := t.rdb.XRangeN(ctx, key.String(), start, stop, count).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransport, "stream range read failed")
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, Entry{Stream: key, ID: msg.ID, Fields: msg.Values})
	}
	return entries, nil
}

// Newest returns the last count entries of a stream in chronological order.
func (t *Transport) Newest(ctx context.Context, key Key, count int64) ([]Entry, error) {
	msgs, err := t.rdb.XRevRangeN(ctx, key.String(), "+", "-", count).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransport, "stream reverse range read failed")
	}

	// XREVRANGE yields newest first.
	entries := make([]Entry, len(msgs))
	for i, msg := range msgs {
		entries[len(msgs)-1-i] = Entry{Stream: key, ID: msg.ID, Fields: msg.Values}
	}
	return entries, nil
}

// Delete removes entries by id. Only the dead-letter lifecycle deletes.
func (t *Transport) Delete(ctx context.Context, key Key, ids ...string) error {
	if err := t.rdb.XDel(ctx, key.String(), ids...).Err(); err != nil {
		return errors.Wrap(err, errors.KindTransport, "stream delete failed")
	}
	return nil
}

func logicalOf(key Key) string {
	if kp, err := ParseKey(key.String()); err == nil {
		return kp.Logical
	}
	return "unknown"
}
