// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/sentrywallet/sentry/lib/msg"
)

// Exchange and queue names.
const (
	Exchange = "ne" // "nominee events"
	Queue    = "ne-wallet"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex // guards ch
	log  *zap.SugaredLogger
}

// New instantiates a new amqp broker.
func New(uri string, log *zap.SugaredLogger) (*Amqp, error) {
	r := &Amqp{log: log}

	var err error
	if r.conn, err = amqp.Dial(uri); err != nil {
		return nil, fmt.Errorf("cannot connect to broker: %w", err)
	}

	log.Infof("Connected to message broker")

	return r, nil
}

// Setup obtains a one-use amqp channel and declares the "ne" ("nominee events") topic exchange, where the wallet
// service publishes the result of nominee saves.
func (r *Amqp) Setup(x interface{}) error {
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	return channel.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			r.log.Errorf("Error closing amqp.Channel: %v", err)
		}

		r.ch = nil
	}
	r.mu.Unlock()

	return r.conn.Close()
}

// channel returns the shared channel, opening it if not present.
func (r *Amqp) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		var err error
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, err
		}
	}

	return r.ch, nil
}

// RoutingKey returns the key a nominee event is published with: <kind>.<account>.
func RoutingKey(account string, e msg.NomineeEvent) string {
	return e.Kind + "." + account
}

// SendEvent publishes a nominee event to the "ne" exchange
func (r *Amqp) SendEvent(account string, e msg.NomineeEvent) error {
	jsonDoc, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ch, err := r.channel()
	if err != nil {
		return err
	}

	m := amqp.Publishing{
		Headers:     amqp.Table{"x-event-id": e.ID},
		MessageId:   e.ID,
		Timestamp:   e.TS,
		Body:        jsonDoc,
		ContentType: "application/json",
	}

	if err = ch.Publish(Exchange, RoutingKey(account, e), false, false, m); err != nil {
		return fmt.Errorf("[%s] error sending nominee event to message broker: %w", account, err)
	}

	return nil
}

// GetEvents consumes events from the "ne" exchange pushing them to the returned channel. The Mutex pointer is
// provided to ensure the consumed message has been fully dealt with by the management function, so the message
// consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetEvents(mut *sync.Mutex) (<-chan msg.NomineeEvent, <-chan error, error) {
	ch, err := r.channel()
	if err != nil {
		return nil, nil, err
	}

	if _, err = ch.QueueDeclare(Queue, true, false, false, false, nil); err != nil {
		return nil, nil, err
	}

	if err = ch.QueueBind(Queue, "#", Exchange, false, nil); err != nil {
		return nil, nil, err
	}

	msgs, err := ch.Consume(Queue, "wallet", false, false, false, false, nil)
	if err != nil {
		return nil, nil, err
	}

	eves := make(chan msg.NomineeEvent)
	errs := make(chan error)

	// start routine to consume messages from broker
	go func() {
		defer close(eves)
		defer close(errs)

		for m := range msgs {
			var e msg.NomineeEvent
			if err := json.Unmarshal(m.Body, &e); err != nil {
				errs <- err

				_ = m.Nack(false, false)

				continue
			}

			eves <- e
			mut.Lock() // wait for wallet to finish processing the event
			_ = m.Ack(false)
		}
	}()

	return eves, errs, nil
}
