package fanout

import (
	"encoding/json"
	"fmt"

	"github.com/capsulabs/capsule-pipeline/config"
	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

// reservedUserIDField is the envelope field the broker transport adds so
// the per-instance subscriber knows which local registry entry to deliver
// to, per §4.4.
const reservedUserIDField = "rabbitmq_user_id"

// BrokerFanout publishes WriteMessage calls onto the `websockets` fanout
// exchange instead of (or in addition to) writing to the local registry
// directly, so every instance's subscriber delivers to its own locally
// connected sockets.
type BrokerFanout struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	registry *Registry
}

// NewBrokerFanout declares the `websockets` fanout exchange and starts a
// background subscriber bound to an exclusive, auto-deleting queue,
// delegating each delivery to registry's local WriteMessage.
func NewBrokerFanout(amqpURL string, registry *Registry) (*BrokerFanout, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker %q: %w", log.RedactURL(amqpURL), err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open broker channel: %w", err)
	}
	if err := ch.ExchangeDeclare(config.WebsocketsExchangeName, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare %s exchange: %w", config.WebsocketsExchangeName, err)
	}

	bf := &BrokerFanout{conn: conn, ch: ch, registry: registry}
	if err := bf.subscribe(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return bf, nil
}

func (bf *BrokerFanout) subscribe() error {
	q, err := bf.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare exclusive fanout queue: %w", err)
	}
	if err := bf.ch.QueueBind(q.Name, "", config.WebsocketsExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind fanout queue: %w", err)
	}
	deliveries, err := bf.ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume fanout queue: %w", err)
	}

	go func() {
		for d := range deliveries {
			var envelope map[string]interface{}
			if err := json.Unmarshal(d.Body, &envelope); err != nil {
				log.LogNoRequestID("failed to decode fanout delivery", "err", err)
				_ = d.Ack(false)
				continue
			}
			userID, _ := envelope[reservedUserIDField].(string)
			delete(envelope, reservedUserIDField)
			bf.registry.WriteMessage(userID, Message(envelope))
			// Delivery uses basic_ack always (at-least-once; duplicates are
			// harmless because messages are state-carrying refreshes, §4.4).
			_ = d.Ack(false)
		}
	}()
	return nil
}

// Publish enriches msg with the recipient user id and publishes it onto
// the fanout exchange for every instance's subscriber to pick up.
func (bf *BrokerFanout) Publish(userID string, msg Message) error {
	envelope := make(Message, len(msg)+1)
	for k, v := range msg {
		envelope[k] = v
	}
	envelope[reservedUserIDField] = userID

	b, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal fanout envelope: %w", err)
	}
	return bf.ch.Publish(config.WebsocketsExchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        b,
	})
}

func (bf *BrokerFanout) Close() error {
	bf.ch.Close()
	return bf.conn.Close()
}

// BrokerNotifier adapts BrokerFanout to the Notifier interface so broker-mode
// deployments route every pipeline notification through the exchange instead
// of writing directly to this instance's local registry (§4.4).
type BrokerNotifier struct {
	bf *BrokerFanout
}

func NewBrokerNotifier(bf *BrokerFanout) *BrokerNotifier {
	return &BrokerNotifier{bf: bf}
}

func (n *BrokerNotifier) WriteMessage(userID string, msg Message) {
	if err := n.bf.Publish(userID, msg); err != nil {
		log.LogNoRequestID("failed to publish fanout message", "user_id", userID, "err", err)
	}
}

func (n *BrokerNotifier) Broadcast(c *model.Capsule, msg Message) {
	for user := range c.Participants {
		n.WriteMessage(user, msg)
	}
}

func (n *BrokerNotifier) BroadcastCapsuleChanged(c *model.Capsule) {
	for user, role := range c.Participants {
		n.WriteMessage(user, CapsuleChanged(c, role))
	}
}
