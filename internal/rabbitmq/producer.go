package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// Transcript event topology
	TranscriptsExchange   = "kototype_transcripts_exchange"
	TranscriptsQueue      = "kototype_transcripts"
	TranscriptsRoutingKey = "transcript.finished"
)

// channel is the subset of *amqp.Channel used by Producer.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Producer publishes transcript events.
type Producer struct {
	channel channel
	model   string
}

// NewProducer opens a channel on conn and declares the event topology.
func NewProducer(conn *amqp.Connection, whisperModel string) (*Producer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		return nil, err
	}

	return &Producer{channel: ch, model: whisperModel}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		TranscriptsExchange, // name
		"direct",            // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	); err != nil {
		return fmt.Errorf("failed to declare transcripts exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		TranscriptsQueue, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	); err != nil {
		return fmt.Errorf("failed to declare transcripts queue: %w", err)
	}

	if err := ch.QueueBind(
		TranscriptsQueue,      // queue name
		TranscriptsRoutingKey, // routing key
		TranscriptsExchange,   // exchange
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		return fmt.Errorf("failed to bind transcripts queue: %w", err)
	}

	return nil
}

// PublishTranscript publishes ev. The producer's model name is filled in
// when ev has none.
func (p *Producer) PublishTranscript(ctx context.Context, ev TranscriptEvent) error {
	if ev.Model == "" {
		ev.Model = p.model
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		TranscriptsExchange,   // exchange
		TranscriptsRoutingKey, // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: ev.RequestID,
			Timestamp:     ev.FinishedAt,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish transcript event: %w", err)
	}
	return nil
}

// Close closes the producer channel.
func (p *Producer) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
