package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event subjects published on the evaluation lifecycle.
const (
	SubjectQuestionEvaluated = "question.evaluated"
)

// QuestionEvaluatedEvent notifies downstream consumers that a question was
// evaluated and closed.
type QuestionEvaluatedEvent struct {
	QuestionID   uint `json:"question_id"`
	ClassID      uint `json:"class_id"`
	Submissions  int  `json:"submissions"`
	FlaggedPairs int  `json:"flagged_pairs"`
}

// EventPublisher publishes lifecycle events for other services to consume.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
}

type natsPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSPublisher constructs an EventPublisher backed by NATS. Subjects are
// prefixed with the given base, e.g. "autograder.question.evaluated".
func NewNATSPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) EventPublisher {
	return &natsPublisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger.With().Str("component", "nats_publisher").Logger(),
	}
}

func (p *natsPublisher) Publish(_ context.Context, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	full := subject
	if p.prefix != "" {
		full = p.prefix + "." + subject
	}

	if err := p.conn.Publish(full, data); err != nil {
		p.logger.Error().Err(err).Str("subject", full).Msg("failed to publish event")
		return err
	}
	return nil
}
