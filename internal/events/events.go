// Package events announces finished jobs to downstream consumers such as the
// domain sync worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// CompletedChannel is the Redis channel job.completed events are published on.
const CompletedChannel = "steelsched:jobs:completed"

// TypeJobCompleted is the event type for a job that produced output.
const TypeJobCompleted = "job.completed"

// JobCompleted is the payload consumers receive.
type JobCompleted struct {
	Type        string           `json:"type"`
	JobID       uuid.UUID        `json:"job_id"`
	Status      models.JobStatus `json:"status"`
	ImportID    *uuid.UUID       `json:"import_id,omitempty"`
	NeedsReview bool             `json:"needs_review"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// Publisher delivers job events.
type Publisher interface {
	PublishCompleted(ctx context.Context, ev JobCompleted) error
}

// Broadcaster is the transport a ChannelPublisher writes to. cache.RedisCache
// satisfies it.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ChannelPublisher serializes events as JSON onto a pub/sub channel.
type ChannelPublisher struct {
	b       Broadcaster
	channel string
}

func NewChannelPublisher(b Broadcaster) *ChannelPublisher {
	return &ChannelPublisher{b: b, channel: CompletedChannel}
}

func (p *ChannelPublisher) PublishCompleted(ctx context.Context, ev JobCompleted) error {
	if ev.Type == "" {
		ev.Type = TypeJobCompleted
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.b.Publish(ctx, p.channel, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

// LogPublisher writes events to a logger. The CLI uses it in place of Redis.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) PublishCompleted(_ context.Context, ev JobCompleted) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(TypeJobCompleted,
		"job_id", ev.JobID,
		"status", ev.Status,
		"import_id", ev.ImportID,
		"needs_review", ev.NeedsReview,
	)
	return nil
}

var (
	_ Publisher = (*ChannelPublisher)(nil)
	_ Publisher = LogPublisher{}
)
