package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestNewKafkaSinkValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewKafkaSink(KafkaConfig{Topic: "lumen.events"}); err == nil {
		t.Fatal("expected error for missing brokers")
	}
	if _, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatal("expected error for missing topic")
	}
	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{" localhost:9092 ", ""}, Topic: "lumen.events"})
	if err != nil {
		t.Fatalf("NewKafkaSink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaSinkForwardsEvents(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	sink := &KafkaSink{writer: writer}
	events := make(chan Event, 2)
	events <- NewEvaluationEvent("org-1", "rec-1", 90, 1, "ALLOW")
	events <- NewUsageEvent("org-1", 5, 1000)
	close(events)

	done := make(chan struct{})
	go func() {
		sink.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}

	if writer.count() != 2 {
		t.Fatalf("wrote %d messages, want 2", writer.count())
	}
	if string(writer.msgs[0].Key) != "org-1" {
		t.Fatalf("message key = %q, want org id", writer.msgs[0].Key)
	}
}

func TestKafkaSinkDropsOnWriteError(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{err: errors.New("broker down")}
	sink := &KafkaSink{writer: writer}
	events := make(chan Event, 1)
	events <- NewUsageEvent("org-1", 1, 1000)
	close(events)

	done := make(chan struct{})
	go func() {
		sink.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked on a failing writer")
	}
}
