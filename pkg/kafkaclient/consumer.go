// Package kafkaclient wraps segmentio/kafka-go: a consumer that hands
// messages out on a channel and commits offsets manually, and a publisher
// for JSON events.
package kafkaclient

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// KafkaReader defines the interface for a Kafka message reader.
// This allows for easy mocking in unit tests. FetchMessage does not commit;
// offsets advance only through CommitMessages.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer manages the Kafka consumer and its message loop.
type KafkaConsumer struct {
	reader KafkaReader
	// closed by Stop to end the loop.
	doneChan chan struct{}
	stopOnce sync.Once
	// tracks the loop goroutine so Stop can wait for it.
	wg sync.WaitGroup
	// unbuffered: the loop reads the next message only once the previous one
	// has been taken.
	messageChan chan kafka.Message

	mu  sync.Mutex
	err error
}

// NewKafkaConsumer creates a consumer in group groupID reading topic from
// brokers. Offsets are only committed through CommitOffset.
func NewKafkaConsumer(topic, groupID string, brokers []string) (*KafkaConsumer, error) {
	if topic == "" || groupID == "" || len(brokers) == 0 {
		return nil, errors.New("kafka consumer needs a topic, a group id and at least one broker")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
		// Commits issued through CommitOffset are synchronous.
		CommitInterval: 0,
		MinBytes:       1,
		MaxBytes:       10e6,
	})
	return newConsumer(reader), nil
}

func newConsumer(reader KafkaReader) *KafkaConsumer {
	return &KafkaConsumer{
		reader:      reader,
		doneChan:    make(chan struct{}),
		messageChan: make(chan kafka.Message),
	}
}

// Messages returns the channel fed by StartConsuming. It is closed when the
// loop ends.
func (kc *KafkaConsumer) Messages() <-chan kafka.Message {
	return kc.messageChan
}

// CommitOffset acknowledges msg.
func (kc *KafkaConsumer) CommitOffset(ctx context.Context, msg kafka.Message) error {
	log.Debugf("Committing offset for topic=%s, partition=%d, offset=%d", msg.Topic, msg.Partition, msg.Offset)
	return kc.reader.CommitMessages(ctx, msg)
}

// Err returns the read error that ended the loop, if any.
func (kc *KafkaConsumer) Err() error {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.err
}

// StartConsuming begins the Kafka message consumption loop in a separate
// goroutine. The loop ends on context cancellation, Stop, a closed reader or
// the first read error.
func (kc *KafkaConsumer) StartConsuming(ctx context.Context) {
	kc.wg.Add(1)
	go func() {
		defer kc.wg.Done()
		defer close(kc.messageChan)

		log.Debug("Starting Kafka consumer loop...")
		for {
			select {
			case <-ctx.Done():
				log.Debug("Context canceled, stopping consumer loop.")
				return
			case <-kc.doneChan:
				log.Debug("Shutdown signal received, stopping consumer loop.")
				return
			default:
			}

			msg, err := kc.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return
				}
				log.Printf("Error reading message: %v", err)
				kc.mu.Lock()
				kc.err = err
				kc.mu.Unlock()
				return
			}

			select {
			case kc.messageChan <- msg:
				log.Debugf("Message received: topic=%s, partition=%d, offset=%d", msg.Topic, msg.Partition, msg.Offset)
			case <-ctx.Done():
				return
			case <-kc.doneChan:
				return
			}
		}
	}()
}

// Stop ends the loop, waits for it and closes the reader. It is safe to call
// more than once.
func (kc *KafkaConsumer) Stop() {
	kc.stopOnce.Do(func() {
		close(kc.doneChan)
		kc.wg.Wait()
		if err := kc.reader.Close(); err != nil {
			log.Printf("Failed to close Kafka reader: %v", err)
		}
		log.Debug("Kafka consumer stopped.")
	})
}
