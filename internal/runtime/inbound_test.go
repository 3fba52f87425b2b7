package runtime

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/streambridge/internal/runtime/errors"
	kinesispkg "github.com/drblury/streambridge/internal/runtime/kinesis"
)

type capturePublisher struct {
	mu       sync.Mutex
	topics   []string
	messages []*message.Message
	err      error
}

func (p *capturePublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.topics = append(p.topics, topic)
		p.messages = append(p.messages, msg)
	}
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func inboundMessage(payload []byte, metadata map[string]string) *message.Message {
	body, err := EncodePayload(payload)
	if err != nil {
		panic(err)
	}
	msg := message.NewMessage("in-1", body)
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}
	return msg
}

func TestBusMessagePayload(t *testing.T) {
	t.Run("valid envelope", func(t *testing.T) {
		data := []byte{0x00, 0x01, 0xFF, 'a'}
		bm := newBusMessage(inboundMessage(data, nil), &capturePublisher{})

		if bm.PayloadString() != base64.StdEncoding.EncodeToString(data) {
			t.Errorf("unexpected string payload: %q", bm.PayloadString())
		}
		decoded, err := bm.PayloadBytes()
		if err != nil {
			t.Fatal(err)
		}
		if string(decoded) != string(data) {
			t.Errorf("binary payload altered: %v", decoded)
		}
	})

	t.Run("unparseable body reads as empty", func(t *testing.T) {
		bm := newBusMessage(message.NewMessage("in-2", []byte("not json")), &capturePublisher{})
		if bm.PayloadString() != "" {
			t.Errorf("expected empty payload, got %q", bm.PayloadString())
		}
	})

	t.Run("invalid base64", func(t *testing.T) {
		msg := message.NewMessage("in-3", []byte(`{"payload":"%%%"}`))
		bm := newBusMessage(msg, &capturePublisher{})
		_, err := bm.PayloadBytes()
		if !errors.Is(err, errspkg.ErrPayloadNotBase64) {
			t.Errorf("expected ErrPayloadNotBase64, got %v", err)
		}
	})
}

func TestBusMessageReplyOK(t *testing.T) {
	pub := &capturePublisher{}
	bm := newBusMessage(inboundMessage([]byte("x"), map[string]string{
		MetadataKeyReplyTo: "replies",
	}), pub)

	if err := bm.ReplyOK(&kinesispkg.Ack{SequenceNumber: "9", ShardID: "shardId-1"}); err != nil {
		t.Fatal(err)
	}

	if len(pub.messages) != 1 || pub.topics[0] != "replies" {
		t.Fatalf("reply not published to reply_to topic: %+v", pub.topics)
	}
	reply, err := DecodeReply(pub.messages[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Status != ReplyStatusOK || reply.SequenceNumber != "9" || reply.ShardID != "shardId-1" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if pub.messages[0].Metadata.Get(MetadataKeyCorrelationID) != "in-1" {
		t.Errorf("correlation id should default to the inbound UUID: %+v", pub.messages[0].Metadata)
	}
}

func TestBusMessageReplyError(t *testing.T) {
	pub := &capturePublisher{}
	bm := newBusMessage(inboundMessage([]byte("x"), map[string]string{
		MetadataKeyReplyTo:       "replies",
		MetadataKeyCorrelationID: "corr-7",
	}), pub)

	if err := bm.ReplyError("Failed sending message to Kinesis", errors.New("connection reset")); err != nil {
		t.Fatal(err)
	}

	reply, err := DecodeReply(pub.messages[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Status != ReplyStatusError {
		t.Errorf("expected error status, got %q", reply.Status)
	}
	if reply.Message != "Failed sending message to Kinesis" || reply.Cause != "connection reset" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if pub.messages[0].Metadata.Get(MetadataKeyCorrelationID) != "corr-7" {
		t.Errorf("explicit correlation id not carried over: %+v", pub.messages[0].Metadata)
	}
}

func TestBusMessageReplyWithoutReplyTo(t *testing.T) {
	pub := &capturePublisher{}
	bm := newBusMessage(inboundMessage([]byte("x"), nil), pub)

	if err := bm.ReplyOK(nil); !errors.Is(err, errspkg.ErrReplyAddressMissing) {
		t.Errorf("expected ErrReplyAddressMissing, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Error("nothing must be published without a reply_to address")
	}
}

func TestEncodePayloadRoundTrip(t *testing.T) {
	data := []byte("binary \x00 payload")
	body, err := EncodePayload(data)
	if err != nil {
		t.Fatal(err)
	}

	bm := newBusMessage(message.NewMessage("rt-1", body), &capturePublisher{})
	decoded, err := bm.PayloadBytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(data) {
		t.Errorf("round trip altered payload: %v", decoded)
	}
}
