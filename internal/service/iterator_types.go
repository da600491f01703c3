package service

import (
	"context"
	"errors"
	"strings"

	"github.com/segmentio/kafka-go"
)

// MessageIterator defines the contract for consuming messages from a Kafka topic.
// It is used by the service's Iterator to abstract away the details of the
// underlying Kafka consumer.
//
// Implementations are responsible for the lifecycle of the consumer connection.
type MessageIterator interface {
	// Messages returns a receive-only channel of Kafka messages. The channel
	// is closed by the implementation when the consumer is stopped or the
	// underlying source is exhausted.
	Messages() <-chan kafka.Message

	// CommitOffset acknowledges that a message has been successfully processed.
	CommitOffset(ctx context.Context, msg kafka.Message) error
}

// Request asks for one subject of a project to be downloaded.
type Request struct {
	Project string `json:"project"`
	Subject string `json:"subject"`
}

var errIncompleteRequest = errors.New("request needs a project and a subject")

func (r Request) validate() error {
	if strings.TrimSpace(r.Project) == "" || strings.TrimSpace(r.Subject) == "" {
		return errIncompleteRequest
	}
	return nil
}

// Handler downloads the subject named by a request.
type Handler func(ctx context.Context, req Request) error
