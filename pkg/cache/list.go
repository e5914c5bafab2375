// Package cache holds Redis-backed caches shared by services.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrContention is returned when optimistic retries on a partition are exhausted.
var ErrContention = errors.New("cache: partition under contention")

const defaultMaxRetries = 10

// List stores one JSON array per partition key. Every mutation is a WATCH/MULTI
// read-modify-write on that single key, so concurrent writers never lose updates.
// Entries carry no TTL.
type List[T any] struct {
	client     redis.UniversalClient
	tracer     trace.Tracer
	maxRetries int
}

func NewList[T any](client redis.UniversalClient) *List[T] {
	return &List[T]{
		client:     client,
		tracer:     otel.Tracer("pkg/cache/list"),
		maxRetries: defaultMaxRetries,
	}
}

// Put replaces the first item matching match, or appends item when none does.
func (l *List[T]) Put(ctx context.Context, partition string, item T, match func(T) bool) error {
	ctx, span := l.tracer.Start(ctx, "List.Put")
	defer span.End()

	span.SetAttributes(attribute.String("cache.partition", partition))

	err := l.update(ctx, partition, func(items []T) ([]T, bool) {
		for i := range items {
			if match(items[i]) {
				items[i] = item
				return items, true
			}
		}
		return append(items, item), true
	})
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// Add appends item only when nothing in the partition matches. It reports whether item was added.
func (l *List[T]) Add(ctx context.Context, partition string, item T, match func(T) bool) (bool, error) {
	ctx, span := l.tracer.Start(ctx, "List.Add")
	defer span.End()

	span.SetAttributes(attribute.String("cache.partition", partition))

	added := false
	err := l.update(ctx, partition, func(items []T) ([]T, bool) {
		added = false
		for i := range items {
			if match(items[i]) {
				return items, false
			}
		}
		added = true
		return append(items, item), true
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	return added, nil
}

// GetAll returns the partition's items. A missing partition is an empty list.
func (l *List[T]) GetAll(ctx context.Context, partition string) ([]T, error) {
	ctx, span := l.tracer.Start(ctx, "List.GetAll")
	defer span.End()

	span.SetAttributes(attribute.String("cache.partition", partition))

	items, err := read[T](ctx, l.client, partition)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("cache.items", len(items)))
	return items, nil
}

// Remove deletes the first item matching match. It reports whether anything was removed.
func (l *List[T]) Remove(ctx context.Context, partition string, match func(T) bool) (bool, error) {
	ctx, span := l.tracer.Start(ctx, "List.Remove")
	defer span.End()

	span.SetAttributes(attribute.String("cache.partition", partition))

	removed := false
	err := l.update(ctx, partition, func(items []T) ([]T, bool) {
		removed = false
		for i := range items {
			if match(items[i]) {
				removed = true
				return append(items[:i], items[i+1:]...), true
			}
		}
		return items, false
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	return removed, nil
}

// RemoveAll deletes every item matching match in one atomic step.
func (l *List[T]) RemoveAll(ctx context.Context, partition string, match func(T) bool) (int, error) {
	ctx, span := l.tracer.Start(ctx, "List.RemoveAll")
	defer span.End()

	span.SetAttributes(attribute.String("cache.partition", partition))

	removed := 0
	err := l.update(ctx, partition, func(items []T) ([]T, bool) {
		kept := items[:0]
		removed = 0
		for _, it := range items {
			if match(it) {
				removed++
				continue
			}
			kept = append(kept, it)
		}
		return kept, removed > 0
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Int("cache.removed", removed))
	return removed, nil
}

func (l *List[T]) update(ctx context.Context, key string, fn func([]T) ([]T, bool)) error {
	txf := func(tx *redis.Tx) error {
		items, err := read[T](ctx, tx, key)
		if err != nil {
			return err
		}

		next, changed := fn(items)
		if !changed {
			return nil
		}

		var data []byte
		if len(next) > 0 {
			if data, err = json.Marshal(next); err != nil {
				return fmt.Errorf("encode partition %s: %w", key, err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(next) == 0 {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, data, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < l.maxRetries; i++ {
		err := l.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("%w: %s", ErrContention, key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func read[T any](ctx context.Context, c getter, key string) ([]T, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", key, err)
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode partition %s: %w", key, err)
	}

	return items, nil
}
