package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SubmissionGradedEvent is broadcast after a submission has been stored.
type SubmissionGradedEvent struct {
	SubmissionID uint      `json:"submission_id"`
	StudentID    uint      `json:"student_id"`
	QuestionID   uint      `json:"question_id"`
	LabID        uint      `json:"lab_id"`
	Status       string    `json:"status"`
	TotalScore   float64   `json:"total_score"`
	MaxScore     float64   `json:"max_score"`
	Completed    bool      `json:"completed"`
	GradedAt     time.Time `json:"graded_at"`
}

// SubmissionEvents fans graded submissions out to local handlers and to
// other API nodes.
type SubmissionEvents interface {
	Publish(ctx context.Context, event SubmissionGradedEvent)
	OnGraded(handler func(SubmissionGradedEvent))
	Start(ctx context.Context)
}

// NopSubmissionEvents drops every event.
type NopSubmissionEvents struct{}

func (NopSubmissionEvents) Publish(context.Context, SubmissionGradedEvent) {}
func (NopSubmissionEvents) OnGraded(func(SubmissionGradedEvent))          {}
func (NopSubmissionEvents) Start(context.Context)                         {}

type submissionEnvelope struct {
	Source string                `json:"source"`
	Event  SubmissionGradedEvent `json:"event"`
}

type submissionEventBus struct {
	redis       *redis.Client
	redisTopic  string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string

	mu       sync.RWMutex
	handlers []func(SubmissionGradedEvent)
}

// NewSubmissionEventBus constructs an event bus. Either transport may be nil.
func NewSubmissionEventBus(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) SubmissionEvents {
	topic := ""
	subject := ""
	if channelBase != "" {
		topic = channelBase + ":submissions"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".submissions"
	}

	return &submissionEventBus{
		redis:       redisClient,
		redisTopic:  topic,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "submission_events").Logger(),
		nodeID:      uuid.NewString(),
	}
}

func (b *submissionEventBus) OnGraded(handler func(SubmissionGradedEvent)) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

// Start subscribes to the remote transports. The redis subscription is
// confirmed before Start returns.
func (b *submissionEventBus) Start(ctx context.Context) {
	if b.redis != nil && b.redisTopic != "" {
		pubsub := b.redis.Subscribe(ctx, b.redisTopic)
		if _, err := pubsub.Receive(ctx); err != nil {
			b.logger.Error().Err(err).Msg("failed to subscribe to submission events")
			_ = pubsub.Close()
		} else {
			go b.consumeRedis(ctx, pubsub)
		}
	}
	if b.nats != nil && b.natsSubject != "" {
		b.consumeNATS(ctx)
	}
}

func (b *submissionEventBus) Publish(ctx context.Context, event SubmissionGradedEvent) {
	b.dispatch(event)

	payload, err := json.Marshal(submissionEnvelope{Source: b.nodeID, Event: event})
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to encode submission event")
		return
	}

	if b.redis != nil && b.redisTopic != "" {
		if err := b.redis.Publish(ctx, b.redisTopic, payload).Err(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to publish submission event to redis")
		}
	}
	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			b.logger.Warn().Err(err).Msg("failed to publish submission event to nats")
		}
	}
}

func (b *submissionEventBus) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Error().Err(err).Msg("submission redis subscription closed")
			return
		}
		b.handleRemote([]byte(msg.Payload))
	}
}

func (b *submissionEventBus) consumeNATS(ctx context.Context) {
	sub, err := b.nats.QueueSubscribe(b.natsSubject, "oelp-submissions-"+b.nodeID, func(msg *nats.Msg) {
		b.handleRemote(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats submissions subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain submission nats subscription")
		}
	}()
}

func (b *submissionEventBus) handleRemote(payload []byte) {
	var envelope submissionEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		b.logger.Warn().Err(err).Msg("invalid submission event payload")
		return
	}
	if envelope.Source == b.nodeID {
		return
	}
	b.dispatch(envelope.Event)
}

func (b *submissionEventBus) dispatch(event SubmissionGradedEvent) {
	b.mu.RLock()
	handlers := append([]func(SubmissionGradedEvent){}, b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
