package service

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeMessages struct {
	ch        chan kafka.Message
	committed []int64
}

func newFakeMessages(values ...string) *fakeMessages {
	f := &fakeMessages{ch: make(chan kafka.Message, len(values))}
	for i, v := range values {
		f.ch <- kafka.Message{Offset: int64(i), Value: []byte(v)}
	}
	close(f.ch)
	return f
}

func (f *fakeMessages) Messages() <-chan kafka.Message { return f.ch }

func (f *fakeMessages) CommitOffset(_ context.Context, msg kafka.Message) error {
	f.committed = append(f.committed, msg.Offset)
	return nil
}

func TestIterator_Process(t *testing.T) {
	msgs := newFakeMessages(
		`{"project":"OASIS3","subject":"OAS30001"}`,
		`not json`,
		`{"project":"OASIS3"}`,
		`{"project":"OASIS3","subject":"OAS30002"}`,
	)
	var got []Request
	n, err := NewIterator(msgs).Process(context.Background(), func(_ context.Context, req Request) error {
		got = append(got, req)
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 2 || len(got) != 2 {
		t.Fatalf("handled %d requests (%v); want 2", n, got)
	}
	if got[0].Subject != "OAS30001" || got[1].Subject != "OAS30002" {
		t.Errorf("requests = %v", got)
	}
	if len(msgs.committed) != 4 {
		t.Errorf("committed offsets %v; want all four", msgs.committed)
	}
}

func TestIterator_HandlerErrorStops(t *testing.T) {
	msgs := newFakeMessages(
		`{"project":"P","subject":"S1"}`,
		`{"project":"P","subject":"S2"}`,
		`{"project":"P","subject":"S3"}`,
	)
	boom := errors.New("boom")
	n, err := NewIterator(msgs).Process(context.Background(), func(_ context.Context, req Request) error {
		if req.Subject == "S2" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want boom", err)
	}
	if n != 1 {
		t.Errorf("handled = %d; want 1", n)
	}
	if len(msgs.committed) != 1 || msgs.committed[0] != 0 {
		t.Errorf("committed = %v; want only offset 0", msgs.committed)
	}
}

func TestIterator_ContextCanceled(t *testing.T) {
	msgs := &fakeMessages{ch: make(chan kafka.Message)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewIterator(msgs).Process(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v; want context.Canceled", err)
	}
}
