package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backend is a durable mirror of the in-memory graph. Implementations
// must make both operations idempotent (MERGE semantics), because
// mirrored mutations are retried and may be replayed after a restart.
type Backend interface {
	UpsertNode(ctx context.Context, n NodeView) error
	UpsertRelationship(ctx context.Context, e EdgeView) error
	Close(ctx context.Context) error
}

// RetryPolicy bounds the exponential backoff used when pushing a
// mutation to the backend. Transient storage errors are retried here, at
// the store boundary, and nowhere else.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Timeout         time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      4,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Timeout:         10 * time.Second,
	}
}

func (p RetryPolicy) backoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	return backoff.WithMaxRetries(bo, p.MaxRetries)
}

func (s *Store) mirrorNode(v NodeView) error {
	if s.backend == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.retry.Timeout)
	defer cancel()
	err := backoff.Retry(func() error {
		return s.backend.UpsertNode(ctx, v)
	}, backoff.WithContext(s.retry.backoff(), ctx))
	if err != nil {
		s.logger.Error("backend node mirror failed", "type", v.Type, "key", v.Key, "error", err)
		return fmt.Errorf("mirror node %s/%s: %w", v.Type, v.Key, err)
	}
	return nil
}

func (s *Store) mirrorEdge(v EdgeView) error {
	if s.backend == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.retry.Timeout)
	defer cancel()
	err := backoff.Retry(func() error {
		return s.backend.UpsertRelationship(ctx, v)
	}, backoff.WithContext(s.retry.backoff(), ctx))
	if err != nil {
		s.logger.Error("backend edge mirror failed", "type", v.Type, "from", v.From, "to", v.To, "error", err)
		return fmt.Errorf("mirror edge %s %s->%s: %w", v.Type, v.From, v.To, err)
	}
	return nil
}
