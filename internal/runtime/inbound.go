package runtime

import (
	"encoding/base64"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/streambridge/internal/runtime/errors"
	idspkg "github.com/drblury/streambridge/internal/runtime/ids"
	jsoncodec "github.com/drblury/streambridge/internal/runtime/jsoncodec"
	kinesispkg "github.com/drblury/streambridge/internal/runtime/kinesis"
)

// Metadata keys used on bus messages.
const (
	// MetadataKeyReplyTo names the topic the bridge publishes its reply to.
	// Messages without it are treated as fire-and-forget.
	MetadataKeyReplyTo = "reply_to"

	// MetadataKeyCorrelationID ties a reply back to the originating message.
	MetadataKeyCorrelationID = "correlation_id"
)

// Reply status values.
const (
	ReplyStatusOK    = "ok"
	ReplyStatusError = "error"
)

// InboundMessage is the bridge's view of one delivered bus message: a payload
// readable in string and binary form, and at most one reply. It decouples the
// core from the concrete bus transport so the bridge stays testable without
// one.
type InboundMessage interface {
	// PayloadString returns the raw string form of the payload field. The
	// bridge uses it for the non-emptiness check before any binary decoding.
	PayloadString() string

	// PayloadBytes returns the binary form of the payload.
	PayloadBytes() ([]byte, error)

	// ReplyOK acknowledges successful submission to the original sender.
	ReplyOK(ack *kinesispkg.Ack) error

	// ReplyError reports a failed submission to the original sender.
	ReplyError(errorMessage string, cause error) error
}

// inboundEnvelope is the wire shape of an inbound bus message body. The
// payload field carries the record data base64-encoded.
type inboundEnvelope struct {
	Payload string `json:"payload"`
}

// Reply is the wire shape of a bridge reply.
type Reply struct {
	Status         string `json:"status"`
	SequenceNumber string `json:"sequence_number,omitempty"`
	ShardID        string `json:"shard_id,omitempty"`
	Message        string `json:"message,omitempty"`
	Cause          string `json:"cause,omitempty"`
}

// EncodePayload builds the JSON body of an inbound bus message carrying the
// given binary payload. Senders use it to address the bridge.
func EncodePayload(data []byte) ([]byte, error) {
	return jsoncodec.Marshal(inboundEnvelope{
		Payload: base64.StdEncoding.EncodeToString(data),
	})
}

// DecodeReply parses a bridge reply body.
func DecodeReply(data []byte) (Reply, error) {
	var reply Reply
	if err := jsoncodec.Unmarshal(data, &reply); err != nil {
		return Reply{}, fmt.Errorf("failed to decode bridge reply: %w", err)
	}
	return reply, nil
}

// busMessage adapts a Watermill message plus the transport's publisher to the
// InboundMessage contract. Replies go to the topic named by the reply_to
// metadata key.
type busMessage struct {
	msg       *message.Message
	publisher message.Publisher
	envelope  inboundEnvelope
}

func newBusMessage(msg *message.Message, publisher message.Publisher) *busMessage {
	b := &busMessage{msg: msg, publisher: publisher}
	// A body that does not parse is equivalent to a missing payload field;
	// the bridge's string-level validation rejects it.
	_ = jsoncodec.Unmarshal(msg.Payload, &b.envelope)
	return b
}

func (b *busMessage) PayloadString() string {
	return b.envelope.Payload
}

func (b *busMessage) PayloadBytes() ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(b.envelope.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrPayloadNotBase64, err)
	}
	return decoded, nil
}

func (b *busMessage) ReplyOK(ack *kinesispkg.Ack) error {
	reply := Reply{Status: ReplyStatusOK}
	if ack != nil {
		reply.SequenceNumber = ack.SequenceNumber
		reply.ShardID = ack.ShardID
	}
	return b.reply(reply)
}

func (b *busMessage) ReplyError(errorMessage string, cause error) error {
	reply := Reply{Status: ReplyStatusError, Message: errorMessage}
	if cause != nil {
		reply.Cause = cause.Error()
	}
	return b.reply(reply)
}

func (b *busMessage) reply(reply Reply) error {
	replyTo := b.msg.Metadata.Get(MetadataKeyReplyTo)
	if replyTo == "" {
		return errspkg.ErrReplyAddressMissing
	}

	payload, err := jsoncodec.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to encode bridge reply: %w", err)
	}

	out := message.NewMessage(idspkg.CreateULID(), payload)
	if correlationID := b.msg.Metadata.Get(MetadataKeyCorrelationID); correlationID != "" {
		out.Metadata.Set(MetadataKeyCorrelationID, correlationID)
	} else {
		out.Metadata.Set(MetadataKeyCorrelationID, b.msg.UUID)
	}

	return b.publisher.Publish(replyTo, out)
}
