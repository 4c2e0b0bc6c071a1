package kafka

import (
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/Merry-360-x/merry-moments-sub004/internal/config"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
)

// EnsureTopicsExist creates the event topics on the cluster controller
// if they are missing. Safe to call on every startup; existing topics
// are left untouched.
func EnsureTopicsExist(cfg config.KafkaConfig, log *logger.Logger) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topics := []string{
		cfg.Topics.BookingConfirmed,
		cfg.Topics.PaymentFailed,
		cfg.Topics.PayoutCompleted,
	}

	topicConfigs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		topicConfigs = append(topicConfigs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	for _, topic := range topics {
		log.LogKafka("ENSURE", topic, "Topic ready")
	}
	return nil
}
