// Package events publishes refreshed weather readings to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/i474232898/temperature-display/internal/weather"
)

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher is a write-behind sink that emits one record per cache write,
// keyed by the cache key so readings for a location stay on one partition.
type Publisher struct {
	topic  string
	client producer
}

// ReadingEvent is the record value.
type ReadingEvent struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Units     weather.Units   `json:"units"`
	Reading   weather.Reading `json:"reading"`
	CachedAt  time.Time       `json:"cachedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Publisher{topic: topic, client: client}, nil
}

func (p *Publisher) Name() string { return "kafka" }

// Persist publishes e and waits for the broker to acknowledge it.
func (p *Publisher) Persist(ctx context.Context, key weather.Key, e weather.Entry) error {
	value, err := json.Marshal(ReadingEvent{
		Latitude:  key.Lat,
		Longitude: key.Lon,
		Units:     key.Units,
		Reading:   e.Reading,
		CachedAt:  e.InsertedAt,
		ExpiresAt: e.ExpiresAt,
	})
	if err != nil {
		return err
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key.String()),
		Value: value,
	}
	for _, r := range p.client.ProduceSync(ctx, rec) {
		if r.Err != nil {
			return fmt.Errorf("publish %s: %w", key, r.Err)
		}
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
