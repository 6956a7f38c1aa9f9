package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-engine/internal/grading"
	"github.com/noah-isme/gema-exam-engine/internal/models"
	"github.com/noah-isme/gema-exam-engine/internal/observability"
)

// Lifecycle event types.
const (
	EventExamGenerated      = "exam.generated"
	EventExamGraded         = "exam.graded"
	EventExamManuallyGraded = "exam.manually_graded"
	EventExamApproved       = "exam.approved"
	EventExamHeld           = "exam.held"
)

// ExamEvent is broadcast after a lifecycle transition has been committed.
type ExamEvent struct {
	Type        string         `json:"type"`
	ExamID      string         `json:"exam_id"`
	CandidateID string         `json:"candidate_id"`
	Status      grading.Status `json:"status"`
	FinalScore  *float64       `json:"final_score,omitempty"`
	Percentage  *float64       `json:"percentage,omitempty"`
	Qualified   *bool          `json:"qualified,omitempty"`
	Source      string         `json:"source"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// NewExamEvent snapshots exam for an event of the given type.
func NewExamEvent(eventType string, exam models.Exam, at time.Time) ExamEvent {
	return ExamEvent{
		Type:        eventType,
		ExamID:      exam.ID,
		CandidateID: exam.CandidateID,
		Status:      exam.GradingStatus(),
		FinalScore:  exam.FinalScore,
		Percentage:  exam.Percentage,
		Qualified:   exam.Qualified,
		OccurredAt:  at.UTC(),
	}
}

// EventPublisher fans lifecycle events out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event ExamEvent) error
}

type brokerPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewEventPublisher publishes to a Redis channel and a NATS subject derived from channelBase.
// Either client may be nil.
func NewEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase
		subject = strings.ReplaceAll(channelBase, ":", ".")
	}

	return &brokerPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "exam_events").Logger(),
	}
}

func (p *brokerPublisher) Publish(ctx context.Context, event ExamEvent) error {
	event.Source = p.nodeID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject+"."+event.Type, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	observability.LifecycleEvents().WithLabelValues(event.Type).Inc()
	p.logger.Debug().Str("type", event.Type).Str("exam_id", event.ExamID).Msg("lifecycle event published")
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ExamEvent) error { return nil }
