package errors

import sterrors "errors"

var (
	// Startup configuration errors. Any of these aborts bridge construction.
	ErrAddressRequired      = sterrors.New("streambridge: bus address is required")
	ErrStreamNameRequired   = sterrors.New("streambridge: stream name is required")
	ErrPartitionKeyRequired = sterrors.New("streambridge: partition key is required")
	ErrConfigRequired       = sterrors.New("streambridge: config is required")
	ErrLoggerRequired       = sterrors.New("streambridge: logger is required")

	// Per-message errors. These never terminate the process; the bridge
	// contains them within a single Handle call.
	ErrClientNotInitialized = sterrors.New("streambridge: kinesis client is not initialized")
	ErrEmptyPayload         = sterrors.New("streambridge: message payload is missing or empty")
	ErrPayloadNotBase64     = sterrors.New("streambridge: message payload is not valid base64")
	ErrSubmissionFailed     = sterrors.New("streambridge: failed sending record to kinesis")

	// Reply plumbing errors.
	ErrReplyAddressMissing = sterrors.New("streambridge: inbound message carries no reply_to address")
	ErrBridgeRequired      = sterrors.New("streambridge: bridge is required")
)
