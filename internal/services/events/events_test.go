package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type writerStub struct {
	msgs []kafka.Message
	err  error
}

func (w *writerStub) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *writerStub) Close() error { return nil }

func TestKafkaPublisherKeysByUser(t *testing.T) {
	w := &writerStub{}
	pub := NewKafkaPublisher(w, nil)

	err := pub.Publish(context.Background(), Event{
		Type:   TypeBalanceCredited,
		UserID: 77,
		Amount: decimal.RequireFromString("3.50"),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "user-77" {
		t.Fatalf("unexpected key %s", w.msgs[0].Key)
	}

	var decoded Event
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != TypeBalanceCredited || decoded.OccurredAt.IsZero() {
		t.Fatalf("unexpected event %+v", decoded)
	}
}

func TestEmitSwallowsErrors(t *testing.T) {
	pub := NewKafkaPublisher(&writerStub{err: errors.New("broker down")}, nil)
	Emit(context.Background(), pub, nil, Event{Type: TypeDropAdded})
	Emit(context.Background(), nil, nil, Event{Type: TypeDropAdded})
}

type deadlinePublisher struct {
	deadline time.Time
	hasLimit bool
}

func (d *deadlinePublisher) Publish(ctx context.Context, _ Event) error {
	d.deadline, d.hasLimit = ctx.Deadline()
	return nil
}

func TestEmitBoundsPublish(t *testing.T) {
	pub := &deadlinePublisher{}
	start := time.Now()
	// A settlement context never carries a deadline of its own.
	Emit(context.WithoutCancel(context.Background()), pub, nil, Event{Type: TypePurchaseCommitted})

	if !pub.hasLimit {
		t.Fatalf("publish must run under a deadline")
	}
	if limit := pub.deadline.Sub(start); limit > publishTimeout+time.Second {
		t.Fatalf("deadline too far out: %s", limit)
	}
}

func TestKafkaWriterPartitionsByKey(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "shop.events")
	defer w.Close()

	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Fatalf("expected key hashing balancer, got %T", w.Balancer)
	}
	if w.WriteTimeout <= 0 || w.MaxAttempts <= 0 {
		t.Fatalf("writer must bound retries, got timeout %s attempts %d", w.WriteTimeout, w.MaxAttempts)
	}

	hash := &kafka.Hash{}
	partitions := []int{0, 1, 2, 3, 4, 5, 6, 7}
	msg := kafka.Message{Key: []byte("user-77")}
	first := hash.Balance(msg, partitions...)
	for i := 0; i < 5; i++ {
		if got := hash.Balance(msg, partitions...); got != first {
			t.Fatalf("same key moved partitions: %d then %d", first, got)
		}
	}
}
