package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"inventory-engine/internal/config"
	"inventory-engine/internal/core"
)

// MovementEvent is the wire form of a committed stock movement.
type MovementEvent struct {
	EventID       string            `json:"event_id"`
	MovementID    int64             `json:"movement_id"`
	ProductID     int               `json:"product_id"`
	Type          core.MovementType `json:"type"`
	Quantity      int               `json:"quantity"`
	PreviousStock int               `json:"previous_stock"`
	NewStock      int               `json:"new_stock"`
	From          core.Endpoint     `json:"from"`
	To            core.Endpoint     `json:"to"`
	ReferenceID   string            `json:"reference_id,omitempty"`
	Actor         string            `json:"actor,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func NewMovementEvent(m core.Movement) MovementEvent {
	return MovementEvent{
		EventID:       uuid.NewString(),
		MovementID:    m.ID,
		ProductID:     m.ProductID,
		Type:          m.Type,
		Quantity:      m.Quantity,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		From:          m.From,
		To:            m.To,
		ReferenceID:   m.ReferenceID,
		Actor:         m.Actor,
		CreatedAt:     m.CreatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards committed movements to a Kafka topic, keyed by product
// so each product's movements stay ordered within one partition.
type Publisher struct {
	w   messageWriter
	log *zap.Logger
}

func NewPublisher(cfg config.KafkaConfig, log *zap.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Error("failed to publish movement events", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
	return &Publisher{w: w, log: log}
}

// MovementsCommitted implements core.MovementNotifier.
func (p *Publisher) MovementsCommitted(ctx context.Context, movements []core.Movement) {
	msgs, err := encode(movements)
	if err != nil {
		p.log.Error("failed to encode movement events", zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("failed to enqueue movement events", zap.Int("count", len(msgs)), zap.Error(err))
	}
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

func encode(movements []core.Movement) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(movements))
	for _, m := range movements {
		data, err := json.Marshal(NewMovementEvent(m))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.Itoa(m.ProductID)),
			Value: data,
			Headers: []kafka.Header{
				{Key: "movement_type", Value: []byte(m.Type)},
			},
		})
	}
	return msgs, nil
}
