package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Merry-360-x/merry-moments-sub004/internal/config"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
)

// Producer publishes payment lifecycle events. All publishes are best
// effort; reconciliation state lives in the database and events can be
// replayed from the transaction log.
type Producer struct {
	writer *kafka.Writer
	topics config.TopicConfig
	log    *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}

	log.LogKafka("INIT", "", "Kafka producer initialized")
	return &Producer{writer: writer, topics: cfg.Topics, log: log}
}

// Publish sends one JSON message to a topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to publish to %s: %s", topic, err.Error()))
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.log.LogKafka("PUBLISH", topic, "Event published with key "+key)
	return nil
}

// BookingConfirmedEvent notifies downstream services that payment for a
// booking (or its whole order) settled.
type BookingConfirmedEvent struct {
	BookingID string    `json:"booking_id"`
	OrderID   string    `json:"order_id,omitempty"`
	GuestID   string    `json:"guest_id,omitempty"`
	HostID    string    `json:"host_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Producer) PublishBookingConfirmed(ctx context.Context, booking *models.Booking) error {
	return p.Publish(ctx, p.topics.BookingConfirmed, booking.ID, BookingConfirmedEvent{
		BookingID: booking.ID,
		OrderID:   booking.OrderID,
		GuestID:   booking.GuestID,
		HostID:    booking.HostID,
		Amount:    booking.TotalPrice,
		Currency:  booking.Currency,
		Timestamp: time.Now(),
	})
}

// PaymentFailedEvent notifies downstream services that a deposit ended
// in a failure state. The booking stays pending for retry.
type PaymentFailedEvent struct {
	DepositID string    `json:"deposit_id"`
	BookingID string    `json:"booking_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Producer) PublishPaymentFailed(ctx context.Context, depositID, reason string, booking *models.Booking) error {
	return p.Publish(ctx, p.topics.PaymentFailed, depositID, PaymentFailedEvent{
		DepositID: depositID,
		BookingID: booking.ID,
		OrderID:   booking.OrderID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// PayoutCompletedEvent notifies downstream services that host money
// left the platform.
type PayoutCompletedEvent struct {
	PayoutID  string    `json:"payout_id"`
	HostID    string    `json:"host_id,omitempty"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Producer) PublishPayoutCompleted(ctx context.Context, payout *models.Payout) error {
	return p.Publish(ctx, p.topics.PayoutCompleted, payout.ID, PayoutCompletedEvent{
		PayoutID:  payout.ID,
		HostID:    payout.HostID,
		Amount:    payout.Amount,
		Currency:  payout.Currency,
		Timestamp: time.Now(),
	})
}

func (p *Producer) Close() error {
	p.log.LogKafka("CLOSE", "", "Closing Kafka producer")
	return p.writer.Close()
}
