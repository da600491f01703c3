// Package service turns a stream of Kafka messages into subject download
// requests and hands them to a Handler one at a time.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Iterator consumes messages from a MessageIterator, decodes each one as a
// Request and runs the Handler on it.
//
// The Iterator does not manage the lifecycle of the underlying message source;
// callers should start/stop their consumer outside and pass in an implementation
// of MessageIterator.
type Iterator struct {
	msgIterator MessageIterator
}

// NewIterator constructs an Iterator for the provided message source.
func NewIterator(iterator MessageIterator) *Iterator {
	return &Iterator{msgIterator: iterator}
}

// Process handles messages in order until the message channel is closed or
// ctx is done:
//  1. Decodes the message as a Request
//  2. Calls handle with it
//  3. Commits the message offset once handle succeeded
//
// Malformed messages are logged and committed so they do not block the
// partition. The first handler error stops processing and is returned; its
// message stays uncommitted and is delivered again on the next start.
// It returns the number of requests handled.
func (it *Iterator) Process(ctx context.Context, handle Handler) (int, error) {
	handled := 0
	for {
		var msg kafka.Message
		var ok bool
		select {
		case <-ctx.Done():
			return handled, ctx.Err()
		case msg, ok = <-it.msgIterator.Messages():
		}
		if !ok {
			return handled, nil
		}

		req, err := decodeRequest(msg.Value)
		if err != nil {
			log.Printf("Skipping message at offset %d: %v", msg.Offset, err)
			if err := it.msgIterator.CommitOffset(ctx, msg); err != nil {
				return handled, fmt.Errorf("commit offset %d: %w", msg.Offset, err)
			}
			continue
		}

		log.WithFields(log.Fields{"project": req.Project, "subject": req.Subject}).Debug("Download request received")
		if err := handle(ctx, req); err != nil {
			return handled, fmt.Errorf("handle %s/%s: %w", req.Project, req.Subject, err)
		}
		handled++

		if err := it.msgIterator.CommitOffset(ctx, msg); err != nil {
			return handled, fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func decodeRequest(value []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(value, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if err := req.validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}
