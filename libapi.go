package streambridge

import (
	runtimepkg "github.com/drblury/streambridge/internal/runtime"
	configpkg "github.com/drblury/streambridge/internal/runtime/config"
	errspkg "github.com/drblury/streambridge/internal/runtime/errors"
	idspkg "github.com/drblury/streambridge/internal/runtime/ids"
	jsoncodec "github.com/drblury/streambridge/internal/runtime/jsoncodec"
	kinesispkg "github.com/drblury/streambridge/internal/runtime/kinesis"
	loggingpkg "github.com/drblury/streambridge/internal/runtime/logging"
	transportpkg "github.com/drblury/streambridge/internal/runtime/transport"
)

type (
	Config             = configpkg.Config
	Bridge             = runtimepkg.Bridge
	BridgeDependencies = runtimepkg.BridgeDependencies
	BridgeMetrics      = runtimepkg.BridgeMetrics

	InboundMessage      = runtimepkg.InboundMessage
	Reply               = runtimepkg.Reply
	StreamClient        = kinesispkg.StreamClient
	StreamClientFactory = runtimepkg.StreamClientFactory
	Record              = kinesispkg.Record
	Ack                 = kinesispkg.Ack
	Result              = kinesispkg.Result

	Transport        = transportpkg.Transport
	TransportFactory = transportpkg.Factory

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

var (
	NewBridge      = runtimepkg.NewBridge
	Run            = runtimepkg.Run
	ValidateConfig = configpkg.ValidateConfig

	NewKinesisClient = kinesispkg.New
	NewBridgeMetrics = runtimepkg.NewBridgeMetrics

	DefaultTransportFactory = transportpkg.DefaultFactory

	EncodePayload = runtimepkg.EncodePayload
	DecodeReply   = runtimepkg.DecodeReply

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	CreateULID = idspkg.CreateULID
)

var (
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrAddressRequired      = errspkg.ErrAddressRequired
	ErrStreamNameRequired   = errspkg.ErrStreamNameRequired
	ErrPartitionKeyRequired = errspkg.ErrPartitionKeyRequired
	ErrClientNotInitialized = errspkg.ErrClientNotInitialized
	ErrEmptyPayload         = errspkg.ErrEmptyPayload
	ErrPayloadNotBase64     = errspkg.ErrPayloadNotBase64
	ErrSubmissionFailed     = errspkg.ErrSubmissionFailed
	ErrReplyAddressMissing  = errspkg.ErrReplyAddressMissing
	ErrBridgeRequired       = errspkg.ErrBridgeRequired
)

// Metadata keys and reply statuses used on the bus.
const (
	MetadataKeyReplyTo       = runtimepkg.MetadataKeyReplyTo
	MetadataKeyCorrelationID = runtimepkg.MetadataKeyCorrelationID

	ReplyStatusOK    = runtimepkg.ReplyStatusOK
	ReplyStatusError = runtimepkg.ReplyStatusError
)
