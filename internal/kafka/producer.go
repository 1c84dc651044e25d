package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/Capitan-Parrot/animal-detection/internal/models"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer создаёт продюсер с настройками
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewProducerFrom(producer, topic), nil
}

// NewProducerFrom wraps an existing sync producer.
func NewProducerFrom(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
	}
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// SendHeartbeat отправляет одно сообщение в Kafka, ключ - ID сессии
func (p *Producer) SendHeartbeat(msg models.Heartbeat) error {
	return p.send(msg.SessionID, msg)
}

// SendCommand publishes a command; used by tooling that drives the runner
// over Kafka instead of HTTP.
func (p *Producer) SendCommand(cmd models.SessionCommand) error {
	return p.send(cmd.SessionID, cmd)
}

func (p *Producer) send(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := p.producer.SendMessage(kafkaMsg); err != nil {
		return fmt.Errorf("send to %s: %w", p.topic, err)
	}
	return nil
}
