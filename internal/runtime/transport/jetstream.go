package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/streambridge/internal/runtime/config"
	"github.com/drblury/streambridge/internal/runtime/ids"
)

const (
	// jetStreamName is the JetStream stream backing all bridge subjects.
	jetStreamName = "STREAMBRIDGE"

	jetStreamAckWait    = 30 * time.Second
	jetStreamMaxDeliver = 3
	jetStreamFetchWait  = time.Second
)

// NATSConnectFactory allows overriding the NATS connection for testing.
var NATSConnectFactory = nats.Connect

func jetstreamTransport(conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	t, err := newJetStream(conf.NATSURL, logger)
	if err != nil {
		return Transport{}, err
	}
	return Transport{Publisher: t, Subscriber: t}, nil
}

// jetStream implements Publisher and Subscriber over NATS JetStream. All
// bridge topics map to subjects under one stream.
type jetStream struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger watermill.LoggerAdapter

	subMu         sync.Mutex
	subscriptions map[string]*nats.Subscription

	closedMu   sync.Mutex
	closed     bool
	closedChan chan struct{}
}

func newJetStream(url string, logger watermill.LoggerAdapter) (*jetStream, error) {
	nc, err := NATSConnectFactory(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	t := &jetStream{
		nc:            nc,
		js:            js,
		logger:        logger,
		subscriptions: make(map[string]*nats.Subscription),
		closedChan:    make(chan struct{}),
	}

	streamCfg := &nats.StreamConfig{
		Name:      jetStreamName,
		Subjects:  []string{jetStreamName + ".>"},
		Retention: nats.InterestPolicy,
	}
	if _, err := js.AddStream(streamCfg); err != nil {
		if _, err := js.UpdateStream(streamCfg); err != nil {
			logger.Info("JetStream stream exists", watermill.LogFields{"stream": jetStreamName})
		}
	}

	return t, nil
}

func (t *jetStream) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return fmt.Errorf("jetstream transport is closed")
	}

	subject := t.topicToSubject(topic)
	for _, msg := range messages {
		headers := nats.Header{}
		for k, v := range msg.Metadata {
			headers.Set(k, v)
		}
		headers.Set("sb_message_id", msg.UUID)

		if _, err := t.js.PublishMsg(&nats.Msg{
			Subject: subject,
			Data:    msg.Payload,
			Header:  headers,
		}); err != nil {
			return fmt.Errorf("failed to publish to JetStream: %w", err)
		}
	}

	return nil
}

func (t *jetStream) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, fmt.Errorf("jetstream transport is closed")
	}

	subject := t.topicToSubject(topic)
	consumerName := "bridge_" + topic
	output := make(chan *message.Message)

	consumerCfg := &nats.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    jetStreamMaxDeliver,
		AckWait:       jetStreamAckWait,
		DeliverPolicy: nats.DeliverAllPolicy,
	}
	if _, err := t.js.AddConsumer(jetStreamName, consumerCfg); err != nil {
		if _, err := t.js.UpdateConsumer(jetStreamName, consumerCfg); err != nil {
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := t.js.PullSubscribe(subject, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	t.subMu.Lock()
	t.subscriptions[topic] = sub
	t.subMu.Unlock()

	go t.fetchMessages(ctx, sub, output, topic)

	return output, nil
}

func (t *jetStream) fetchMessages(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer close(output)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closedChan:
			return
		default:
		}

		msgs, err := sub.Fetch(10, nats.MaxWait(jetStreamFetchWait))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			t.logger.Error("Failed to fetch messages", err, watermill.LogFields{"topic": topic})
			continue
		}

		for _, natsMsg := range msgs {
			wmMsg := t.natsToWatermill(natsMsg)

			select {
			case output <- wmMsg:
				select {
				case <-wmMsg.Acked():
					if err := natsMsg.Ack(); err != nil {
						t.logger.Error("Failed to ack", err, nil)
					}
				case <-wmMsg.Nacked():
					if err := natsMsg.Nak(); err != nil {
						t.logger.Error("Failed to nak", err, nil)
					}
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *jetStream) natsToWatermill(natsMsg *nats.Msg) *message.Message {
	msgID := natsMsg.Header.Get("sb_message_id")
	if msgID == "" {
		msgID = ids.CreateULID()
	}

	wmMsg := message.NewMessage(msgID, natsMsg.Data)
	for k, v := range natsMsg.Header {
		if len(v) > 0 {
			wmMsg.Metadata.Set(k, v[0])
		}
	}

	return wmMsg
}

func (t *jetStream) topicToSubject(topic string) string {
	return jetStreamName + "." + topic
}

func (t *jetStream) isClosed() bool {
	t.closedMu.Lock()
	defer t.closedMu.Unlock()
	return t.closed
}

func (t *jetStream) Close() error {
	t.closedMu.Lock()
	if t.closed {
		t.closedMu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closedChan)
	t.closedMu.Unlock()

	t.subMu.Lock()
	for _, sub := range t.subscriptions {
		sub.Unsubscribe()
	}
	t.subscriptions = make(map[string]*nats.Subscription)
	t.subMu.Unlock()

	t.nc.Close()

	return nil
}
