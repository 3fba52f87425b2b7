// Package streambridge forwards messages from an internal message bus to an
// AWS Kinesis data stream. It subscribes on a single bus address, reads the
// base64 payload out of each JSON message body, submits it as one Kinesis
// record with a fixed stream name and partition key, and reports the outcome
// back to the sender on the topic named by the reply_to metadata key.
//
// The bus side is pluggable: Config.BusSystem selects one of the built-in
// Watermill transports (channel, kafka, rabbitmq, nats, nats-jetstream, http,
// or aws), and custom transports can be injected through
// BridgeDependencies.TransportFactory. The Kinesis side uses the AWS SDK v2
// with tunable HTTP pooling and an optional custom endpoint for LocalStack.
//
// A minimal setup fills Config with the bus address, stream name, and
// partition key, builds a Bridge with NewBridge, and calls Start:
//
//	conf := &streambridge.Config{
//		Address:      "kinesis.out",
//		StreamName:   "events",
//		PartitionKey: "bridge",
//		BusSystem:    "nats",
//		NATSURL:      "nats://localhost:4222",
//	}
//	logger := streambridge.NewSlogServiceLogger(slog.Default())
//	bridge, err := streambridge.NewBridge(conf, logger, streambridge.BridgeDependencies{})
//	if err != nil {
//		// ...
//	}
//	if err := bridge.Start(ctx); err != nil {
//		// ...
//	}
//	defer bridge.Stop()
//
// Messages with an empty or undecodable payload are logged and dropped
// without a reply. Failed submissions are replied to with a fixed error
// message and the underlying cause so the sender can decide whether to retry.
package streambridge
