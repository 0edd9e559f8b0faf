package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// publishTimeout bounds one Emit so a broker outage cannot stall the
// settlement that triggered it.
const publishTimeout = 5 * time.Second

type Type string

const (
	TypePurchaseCommitted Type = "purchase.committed"
	TypeBalanceCredited   Type = "balance.credited"
	TypeBalanceDebited    Type = "balance.debited"
	TypeReservationFreed  Type = "reservation.released"
	TypeInvoiceCreated    Type = "invoice.created"
	TypeDropAdded         Type = "drop.added"
)

type Event struct {
	Type       Type            `json:"type"`
	UserID     int64           `json:"user_id"`
	PaymentID  string          `json:"payment_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	ProductIDs []int64         `json:"product_ids,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by user id. The writer hashes keys to
// partitions, so one user's events stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	log    *zap.Logger
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           publishTimeout,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireOne,
	}
}

func NewKafkaPublisher(writer messageWriter, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("kafka writer is nil")
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte("user-" + strconv.FormatInt(evt.UserID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit publishes within publishTimeout and logs failures instead of
// returning them.
func Emit(ctx context.Context, pub Publisher, log *zap.Logger, evt Event) {
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := pub.Publish(ctx, evt); err != nil && log != nil {
		log.Warn("publish event failed", zap.String("type", string(evt.Type)), zap.Int64("user_id", evt.UserID), zap.Error(err))
	}
}
