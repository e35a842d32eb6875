package observability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaPublisher writes chat events to a single topic. The routing key is
// used as the message key so events of one kind share a partition.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &KafkaPublisher{writer: w}, nil
}

func (p *KafkaPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	kafkaHeaders := make([]kafkago.Header, 0, len(headers))
	for key, value := range headers {
		kafkaHeaders = append(kafkaHeaders, kafkago.Header{Key: key, Value: []byte(value)})
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(routingKey),
		Value:   body,
		Headers: kafkaHeaders,
		Time:    time.Now(),
	})
	if err != nil {
		IncPublishError("kafka")
	}
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
