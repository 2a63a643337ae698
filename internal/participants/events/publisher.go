package events

import (
	"context"
	"errors"
	"fmt"

	"racereg/pkg/kafka"
	kafka_config "racereg/pkg/kafka/config"
	kafka_middleware "racereg/pkg/kafka/middleware"
	"racereg/pkg/logger"
	"racereg/pkg/middleware"
	"racereg/pkg/model"
)

// Sender is the part of kafka.Producer the publisher needs.
type Sender interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Publisher emits bib lifecycle events keyed by participant ID.
type Publisher struct {
	assigned Sender
	repaired Sender
	source   string
}

func NewPublisher(assigned, repaired Sender, source string) *Publisher {
	return &Publisher{assigned: assigned, repaired: repaired, source: source}
}

// NewKafkaPublisher opens one producer per outgoing topic.
func NewKafkaPublisher(cfg *kafka_config.Config, source string, log *logger.Logger) (*Publisher, error) {
	assigned, err := kafka.NewProducer(cfg, cfg.TopicBibAssigned, log)
	if err != nil {
		return nil, fmt.Errorf("bib assigned producer: %w", err)
	}
	repaired, err := kafka.NewProducer(cfg, cfg.TopicBibRepaired, log)
	if err != nil {
		_ = assigned.Close()
		return nil, fmt.Errorf("bib repaired producer: %w", err)
	}

	assigned.Use(kafka_middleware.LoggingProducerMiddleware(log))
	repaired.Use(kafka_middleware.LoggingProducerMiddleware(log))

	return NewPublisher(assigned, repaired, source), nil
}

func (p *Publisher) BibAssigned(ctx context.Context, event model.BibAssignedEvent) error {
	return p.publish(ctx, p.assigned, model.EventBibAssigned, event.ParticipantID, event)
}

func (p *Publisher) BibRepaired(ctx context.Context, event model.BibRepairedEvent) error {
	return p.publish(ctx, p.repaired, model.EventBibRepaired, event.ParticipantID, event)
}

func (p *Publisher) publish(ctx context.Context, sender Sender, eventType, key string, payload any) error {
	msg, err := kafka.NewMessage().
		WithKey(key).
		WithValue(payload).
		WithEventType(eventType).
		WithSchemaVersion(model.EventSchemaVersion).
		WithSource(p.source).
		WithCorrelationID(middleware.RequestIDFrom(ctx)).
		Build()
	if err != nil {
		return err
	}
	return sender.Publish(ctx, msg)
}

func (p *Publisher) Close() error {
	return errors.Join(p.assigned.Close(), p.repaired.Close())
}

// Noop drops every event. It is used when Kafka is disabled.
type Noop struct{}

func (Noop) BibAssigned(context.Context, model.BibAssignedEvent) error { return nil }
func (Noop) BibRepaired(context.Context, model.BibRepairedEvent) error { return nil }
func (Noop) Close() error                                               { return nil }
