package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ragshield/ragshield/pkg/config"
)

// Forwarder relays bus events to a Kafka topic for SIEM ingestion. It is a
// plain bus subscriber: if it falls behind it is dropped like any other
// slow consumer, and the durable JSONL log remains the source of truth.
type Forwarder struct {
	writer *kafka.Writer
	wg     sync.WaitGroup
	cancel func()
}

// NewForwarder subscribes to the bus and starts relaying events.
func NewForwarder(cfg config.KafkaConfig, bus *Bus) *Forwarder {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		// The forwarder is best-effort; never stall behind a dead broker.
		Async: true,
	}

	stream, cancel := bus.Subscribe()
	f := &Forwarder{writer: writer, cancel: cancel}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for ev := range stream {
			value, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			msg := kafka.Message{
				Key:   []byte(ev.Code),
				Value: value,
			}
			if err := writer.WriteMessages(context.Background(), msg); err != nil {
				slog.Warn("Failed to forward event to Kafka",
					"topic", cfg.Topic, "code", ev.Code, "error", err)
			}
		}
	}()

	slog.Info("Kafka event forwarder started", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return f
}

// Close unsubscribes from the bus and flushes the Kafka writer.
func (f *Forwarder) Close() error {
	f.cancel()
	f.wg.Wait()
	return f.writer.Close()
}
