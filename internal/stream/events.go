// README: Best-effort Kafka feed of ride lifecycle events.
package stream

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// RideEvent mirrors a single state transition for downstream consumers
// (analytics, driver notification backends). The database remains the source
// of truth; this feed is advisory.
type RideEvent struct {
	RideID   int64     `json:"ride_id"`
	DriverID int64     `json:"driver_id,omitempty"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Actor    string    `json:"actor"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Publisher{writer: w}
}

// PublishRideEvent writes one event, keyed by ride id so per-ride ordering is
// preserved. A nil publisher is a no-op.
func (p *Publisher) PublishRideEvent(ctx context.Context, e RideEvent) error {
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(e)
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(e.RideID, 10)),
		Value: b,
	})
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
