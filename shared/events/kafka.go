package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const lifecycleTopic = "tenant-lifecycle"

// KafkaPublisher publishes tenant lifecycle events through a small worker
// pool so state transitions never block on the broker.
type KafkaPublisher struct {
	writer       *kafka.Writer
	eventChan    chan TenantEvent
	workerCount  int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewKafkaPublisher creates a publisher against the given broker and starts
// its workers.
func NewKafkaPublisher(broker string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	kp := &KafkaPublisher{
		writer:       writer,
		eventChan:    make(chan TenantEvent, 1000),
		workerCount:  4,
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < kp.workerCount; i++ {
		kp.wg.Add(1)
		go kp.worker(i)
	}
	return kp
}

// Publish implements Publisher. Non-blocking; a full queue drops the event.
func (kp *KafkaPublisher) Publish(_ context.Context, event TenantEvent) error {
	select {
	case kp.eventChan <- event:
		return nil
	default:
		return fmt.Errorf("lifecycle event queue full, event dropped")
	}
}

func (kp *KafkaPublisher) worker(id int) {
	defer kp.wg.Done()

	for {
		select {
		case event := <-kp.eventChan:
			if err := kp.send(event); err != nil {
				logrus.WithError(err).WithField("worker", id).
					Warn("Failed to publish lifecycle event")
			}
		case <-kp.shutdownChan:
			return
		}
	}
}

func (kp *KafkaPublisher) send(event TenantEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	msg := kafka.Message{
		Topic: lifecycleTopic,
		// Key by tenant so one tenant's events stay ordered.
		Key:   []byte(event.TenantID.String()),
		Value: message,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "tenant_id", Value: []byte(event.TenantID.String())},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write lifecycle event to Kafka: %w", err)
	}
	return nil
}

// Close drains the workers and closes the writer.
func (kp *KafkaPublisher) Close() error {
	close(kp.shutdownChan)
	kp.wg.Wait()
	close(kp.eventChan)

	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}
