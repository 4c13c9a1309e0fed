package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards hub events to a Kafka topic, keyed by organization so
// one tenant's activity stays ordered within a partition.
type KafkaSink struct {
	writer kafkaWriter
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{writer: w}, nil
}

// Run drains events into Kafka until ctx is cancelled. Delivery is
// best-effort: a failed write is logged and dropped, never retried against
// the hub.
func (s *KafkaSink) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = s.writer.WriteMessages(writeCtx, kafka.Message{
				Key:   []byte(evt.OrgID),
				Value: payload,
			})
			cancel()
			if err != nil {
				log.Printf("stream: kafka write failed: %v", err)
			}
		}
	}
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
