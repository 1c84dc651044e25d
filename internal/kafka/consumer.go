package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	"github.com/Capitan-Parrot/animal-detection/internal/logging"
)

const retryDelay = 5 * time.Second

// Consumer оборачивает Sarama ConsumerGroup
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	messages chan Message
	closed   chan struct{}
}

// Message содержит сообщение и сессию для подтверждения
type Message struct {
	Value []byte

	session sarama.ConsumerGroupSession
	message *sarama.ConsumerMessage
}

// Ack marks the message as processed. Messages built without a group
// session are acknowledged as a no-op.
func (m Message) Ack() {
	if m.session == nil || m.message == nil {
		return
	}
	m.session.MarkMessage(m.message, "")
}

// NewConsumer создаёт и возвращает новый Consumer
func NewConsumer(brokers []string, groupID, topic string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return newConsumer(group, topic), nil
}

func newConsumer(group sarama.ConsumerGroup, topic string) *Consumer {
	return &Consumer{
		group:    group,
		topic:    topic,
		messages: make(chan Message),
		closed:   make(chan struct{}),
	}
}

// StartListening запускает асинхронное потребление сообщений
func (c *Consumer) StartListening(ctx context.Context) {
	handler := &consumerGroupHandler{
		messages: c.messages,
		closed:   c.closed,
	}
	log := logging.With().Str("component", "consumer").Str("topic", c.topic).Logger()

	go func() {
		defer close(c.messages)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("context cancelled, stopping")
				return
			default:
				log.Debug().Msg("starting consumption cycle")
				err := c.group.Consume(ctx, []string{c.topic}, handler)
				if err != nil {
					log.Warn().Err(err).Dur("retry_in", retryDelay).Msg("consume error")
					select {
					case <-ctx.Done():
						return
					case <-time.After(retryDelay):
					}
					continue
				}

				if ctx.Err() != nil {
					return
				}
			}
		}
	}()
}

// Close останавливает потребитель и освобождает ресурсы
func (c *Consumer) Close() error {
	close(c.closed)
	return c.group.Close()
}

// Messages возвращает канал для чтения сообщений
func (c *Consumer) Messages() <-chan Message {
	return c.messages
}

// consumerGroupHandler реализует интерфейс sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	messages chan<- Message
	closed   <-chan struct{}
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.messages <- Message{
				Value:   msg.Value,
				session: sess,
				message: msg,
			}:
				// подтверждение будет после обработки
			case <-sess.Context().Done():
				return nil
			case <-h.closed:
				return nil
			}
		case <-sess.Context().Done():
			return nil
		case <-h.closed:
			return nil
		}
	}
}
