package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/septivank/water-ops-service/internal/config"
	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/logging"
	"github.com/septivank/water-ops-service/internal/mq"
	"github.com/septivank/water-ops-service/internal/validator"
	"go.uber.org/zap"
)

// IngestMessage is a batch of meter readings delivered over RabbitMQ
type IngestMessage struct {
	RequestID  string                 `json:"request_id"`
	Source     string                 `json:"source,omitempty"`
	ReceivedAt time.Time              `json:"received_at"`
	Readings   []validator.UsageInput `json:"readings"`
}

var ingestActor = config.Identity{UserID: "ingest", Name: "meter ingest"}

// ProcessMessage stores every reading in a queued batch. Malformed messages
// and batches with an invalid reading are permanent failures and nothing is
// stored for them.
func (s *Dashboard) ProcessMessage(ctx context.Context, body []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return mq.Permanent(fmt.Errorf("failed to unmarshal message: %w", err))
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing message",
		zap.String("source", msg.Source),
		zap.Int("reading_count", len(msg.Readings)),
	)

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	readings := make([]db.UsageReading, 0, len(msg.Readings))
	for i, in := range msg.Readings {
		reading, err := s.validator.ValidateUsage(in, receivedAt)
		if err != nil {
			reqLogger.Warn("rejecting batch with invalid reading",
				zap.Int("index", i),
				zap.Error(err),
			)
			return mq.Permanent(fmt.Errorf("reading %d: %w", i, err))
		}
		readings = append(readings, reading)
	}

	ctx = WithActor(ctx, ingestActor)
	for _, reading := range readings {
		if _, err := s.storeUsage(ctx, reading, "queue"); err != nil {
			reqLogger.Error("failed to store reading",
				zap.Error(err),
				zap.String("location", reading.Location),
			)
			return err
		}
	}

	reqLogger.Info("message processed successfully",
		zap.Int("readings_count", len(readings)),
	)
	return nil
}
