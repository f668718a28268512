package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EvaluationEvent announces that a submission reached a final state.
type EvaluationEvent struct {
	SubmissionID uint      `json:"submission_id"`
	UserID       uint      `json:"user_id"`
	ProblemID    uint      `json:"problem_id"`
	Status       string    `json:"status"`
	Score        int       `json:"score"`
	MaxScore     int       `json:"max_score"`
	Approach     string    `json:"approach,omitempty"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// EventPublisher fans evaluation events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event EvaluationEvent)
}

type brokerPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
}

// NewEventPublisher publishes to Redis pub/sub and NATS; either client may be nil.
func NewEventPublisher(redisClient *redis.Client, redisChannel string, natsConn *nats.Conn, natsSubject string, logger zerolog.Logger) EventPublisher {
	if redisChannel == "" {
		redisChannel = "grader:evaluations"
	}
	if natsSubject == "" {
		natsSubject = "grader.evaluations.completed"
	}

	return &brokerPublisher{
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		logger:       logger.With().Str("component", "evaluation_events").Logger(),
	}
}

// Publish is best effort; delivery failures are logged.
func (p *brokerPublisher) Publish(ctx context.Context, event EvaluationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to encode evaluation event")
		return
	}

	if p.redis != nil {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			p.logger.Warn().Err(err).Uint("submission_id", event.SubmissionID).Msg("failed to publish evaluation event to redis")
		}
	}

	if p.nats != nil {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			p.logger.Warn().Err(err).Uint("submission_id", event.SubmissionID).Msg("failed to publish evaluation event to nats")
		}
	}
}
