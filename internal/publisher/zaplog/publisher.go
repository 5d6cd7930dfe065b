// Package zaplog implements a publisher that writes notifications to the log.
package zaplog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Publisher logs each payload as JSON at info level.
type Publisher struct {
	logger *zap.Logger
	seq    atomic.Int64
}

// New returns a log Publisher.
func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger.Named("notify")}
}

// Publish logs the payload and returns a sequence id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	id := fmt.Sprintf("log-%d", p.seq.Add(1))
	p.logger.Info("notification",
		zap.String("id", id),
		zap.String("topic", topic),
		zap.ByteString("payload", data),
	)
	return id, nil
}
