package streambridge

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestBridgeExportsPropagateErrors(t *testing.T) {
	logger := NewWatermillServiceLogger(watermill.NopLogger{})

	if _, err := NewBridge(nil, logger, BridgeDependencies{}); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}
	if _, err := NewBridge(&Config{}, nil, BridgeDependencies{}); !errors.Is(err, ErrLoggerRequired) {
		t.Fatalf("expected logger required error, got %v", err)
	}
}

func TestValidateConfigExport(t *testing.T) {
	if err := ValidateConfig(nil); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}

	err := ValidateConfig(&Config{})
	if !errors.Is(err, ErrAddressRequired) || !errors.Is(err, ErrStreamNameRequired) || !errors.Is(err, ErrPartitionKeyRequired) {
		t.Fatalf("expected all mandatory field errors, got %v", err)
	}

	if err := ValidateConfig(&Config{Address: "a", StreamName: "s", PartitionKey: "p"}); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestEnvelopeExportAliases(t *testing.T) {
	body, err := EncodePayload([]byte("hello"))
	if err != nil {
		t.Fatalf("encode payload failed: %v", err)
	}

	var envelope map[string]string
	if err := Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
	if envelope["payload"] == "" {
		t.Fatalf("expected base64 payload field, got %#v", envelope)
	}

	if _, err := Marshal(envelope); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
}

func TestDecodeReplyExport(t *testing.T) {
	reply, err := DecodeReply([]byte(`{"status":"ok","sequence_number":"1","shard_id":"shardId-0"}`))
	if err != nil {
		t.Fatalf("decode reply failed: %v", err)
	}
	if reply.Status != ReplyStatusOK || reply.SequenceNumber != "1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	if _, err := DecodeReply([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed reply")
	}
}
