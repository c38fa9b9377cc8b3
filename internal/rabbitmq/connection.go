// Package rabbitmq publishes transcript events for downstream consumers.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// Connection retry settings
	maxRetries    = 3
	retryInterval = 2 * time.Second
)

// Connect establishes a connection to RabbitMQ with retry logic.
func Connect(ctx context.Context, url string, logger *zap.SugaredLogger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Infow("RabbitMQ connected")
			return conn, nil
		}

		if i < maxRetries-1 {
			logger.Warnw("RabbitMQ connect failed, retrying",
				"attempt", i+1,
				"max_attempts", maxRetries,
				"retry_in", retryInterval.String(),
				"error", err,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, err)
}
