// Package publish sends completed forecasts to Kafka as JSON messages.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"patch-forecast-lab/internal/domain"
)

// ForecastMessage is the wire format of one published forecast.
type ForecastMessage struct {
	RunID               string          `json:"run_id"`
	Symbol              string          `json:"symbol"`
	Interval            string          `json:"interval"`
	AnchorPrice         float64         `json:"anchor_price"`
	AnchorTimestampMs   int64           `json:"anchor_timestamp_ms"`
	DirectionalAccuracy float64         `json:"directional_accuracy"`
	RMSE                float64         `json:"rmse"`
	CreatedAt           int64           `json:"created_at"`
	Points              []ForecastPoint `json:"points"`
}

// ForecastPoint is one predicted level in a ForecastMessage.
type ForecastPoint struct {
	Step        int     `json:"step"`
	TimestampMs int64   `json:"timestamp_ms"`
	Price       float64 `json:"price"`
}

// messageWriter is the kafka.Writer surface the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes forecast messages keyed by run ID.
type Publisher struct {
	writer messageWriter
	log    logrus.FieldLogger
}

// NewPublisher creates a Publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, log logrus.FieldLogger) *Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

// PublishForecast sends one run with its points as a single message.
func (p *Publisher) PublishForecast(ctx context.Context, run *domain.ForecastRun, points []*domain.ForecastPoint) error {
	msg := ForecastMessage{
		RunID:               run.RunID,
		Symbol:              run.Symbol,
		Interval:            run.Interval.String(),
		AnchorPrice:         run.AnchorPrice,
		AnchorTimestampMs:   run.AnchorTimestampMs,
		DirectionalAccuracy: run.DirectionalAccuracy,
		RMSE:                run.RMSE,
		CreatedAt:           run.CreatedAt,
		Points:              make([]ForecastPoint, 0, len(points)),
	}
	for _, pt := range points {
		msg.Points = append(msg.Points, ForecastPoint{
			Step:        pt.Step,
			TimestampMs: pt.TimestampMs,
			Price:       pt.Price,
		})
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal forecast message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(run.RunID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write forecast message: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"run_id": run.RunID,
		"points": len(points),
	}).Info("forecast published")

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
