// Package runtime implements the forwarding bridge: it subscribes on one bus
// address, submits every valid payload as a record to a Kinesis stream, and
// reports each outcome back to the sender.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/streambridge/internal/runtime/config"
	errspkg "github.com/drblury/streambridge/internal/runtime/errors"
	kinesispkg "github.com/drblury/streambridge/internal/runtime/kinesis"
	loggingpkg "github.com/drblury/streambridge/internal/runtime/logging"
	transportpkg "github.com/drblury/streambridge/internal/runtime/transport"
)

const (
	handlerName = "kinesis_forwarder"
	tracerName  = "github.com/drblury/streambridge"

	// failureReplyMessage is the fixed human-readable message carried by
	// every failure reply. The submission cause travels alongside it.
	failureReplyMessage = "Failed sending message to Kinesis"
)

// StreamClientFactory builds the outbound stream client during Start.
type StreamClientFactory func(ctx context.Context, conf *configpkg.Config, logger loggingpkg.ServiceLogger) (kinesispkg.StreamClient, error)

// BridgeDependencies carries optional overrides for the bridge's
// collaborators. Zero values select the production implementations.
type BridgeDependencies struct {
	// TransportFactory builds the bus transport. Defaults to the built-in
	// factory keyed on Config.BusSystem.
	TransportFactory transportpkg.Factory

	// StreamClient builds the outbound client. Defaults to the AWS Kinesis
	// client.
	StreamClient StreamClientFactory

	// Metrics collects forwarding statistics. Defaults to a collector on the
	// Prometheus default registry when Config.MetricsEnabled is set.
	Metrics *BridgeMetrics
}

// Bridge forwards bus messages to a Kinesis stream. Create one with
// NewBridge, run it with Start, and release its resources with Stop.
// Handle may be invoked concurrently; Start and Stop are expected to be
// driven by a single lifecycle goroutine.
type Bridge struct {
	conf   *configpkg.Config
	logger loggingpkg.ServiceLogger

	transportFactory transportpkg.Factory
	clientFactory    StreamClientFactory
	metrics          *BridgeMetrics
	tracer           trace.Tracer

	// clientMu guards client alone so Handle can read it while Stop waits
	// for in-flight handlers under mu.
	clientMu sync.RWMutex
	client   kinesispkg.StreamClient

	mu         sync.Mutex
	transport  transportpkg.Transport
	router     *message.Router
	metricsSrv *http.Server
	runCancel  context.CancelFunc
	runDone    chan error
}

// NewBridge validates the configuration and assembles a bridge. Nothing is
// connected until Start.
func NewBridge(conf *configpkg.Config, logger loggingpkg.ServiceLogger, deps BridgeDependencies) (*Bridge, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bridge config: %w", err)
	}

	b := &Bridge{
		conf:             conf,
		logger:           logger,
		transportFactory: deps.TransportFactory,
		clientFactory:    deps.StreamClient,
		metrics:          deps.Metrics,
		tracer:           otel.Tracer(tracerName),
	}

	if b.transportFactory == nil {
		b.transportFactory = transportpkg.DefaultFactory()
	}
	if b.clientFactory == nil {
		b.clientFactory = func(ctx context.Context, conf *configpkg.Config, logger loggingpkg.ServiceLogger) (kinesispkg.StreamClient, error) {
			return kinesispkg.New(ctx, conf, logger)
		}
	}
	if b.metrics == nil && conf.MetricsEnabled {
		b.metrics = NewBridgeMetrics(nil)
	}

	return b, nil
}

// Start connects the bus transport, initialises the stream client, and begins
// consuming messages. It returns once the router is running. Calling Start on
// a running bridge is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.router != nil {
		b.logger.Info("Bridge already started", nil)
		return nil
	}

	b.logger.Info("Starting bridge", loggingpkg.LogFields{
		"address":       b.conf.Address,
		"stream_name":   b.conf.StreamName,
		"partition_key": b.conf.PartitionKey,
		"bus_system":    b.conf.BusSystem,
		"config":        b.conf.String(),
	})

	wmLogger := loggingpkg.NewWatermillAdapter(b.logger)

	tr, err := b.transportFactory.Build(ctx, b.conf, wmLogger)
	if err != nil {
		return fmt.Errorf("failed to build bus transport: %w", err)
	}

	client, err := b.clientFactory(ctx, b.conf, b.logger)
	if err != nil {
		closeTransport(tr)
		return fmt.Errorf("failed to create stream client: %w", err)
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		client.Close()
		closeTransport(tr)
		return err
	}

	router.AddNoPublisherHandler(
		handlerName,
		b.conf.Address,
		tr.Subscriber,
		func(msg *message.Message) error {
			b.Handle(newBusMessage(msg, tr.Publisher))
			return nil
		},
	)

	if b.metrics != nil {
		if err := b.metrics.Register(); err != nil {
			client.Close()
			closeTransport(tr)
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		b.metricsSrv = b.startMetricsServer()
	}

	runCtx, cancel := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() {
		runDone <- router.Run(runCtx)
	}()

	select {
	case <-router.Running():
	case err := <-runDone:
		cancel()
		client.Close()
		closeTransport(tr)
		b.stopMetricsServer()
		if err == nil {
			err = errors.New("bus router stopped before becoming ready")
		}
		return err
	}

	b.setStreamClient(client)
	b.transport = tr
	b.router = router
	b.runCancel = cancel
	b.runDone = runDone

	b.logger.Info("Bridge running", loggingpkg.LogFields{"address": b.conf.Address})
	return nil
}

// Stop shuts the bridge down: the router stops consuming, in-flight handler
// invocations finish, and the transport and stream client are released.
// Stop is idempotent.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.router == nil && b.streamClient() == nil {
		return nil
	}

	var errs []error

	if b.runCancel != nil {
		b.runCancel()
		b.runCancel = nil
	}
	if b.router != nil {
		if err := b.router.Close(); err != nil {
			errs = append(errs, err)
		}
		b.router = nil
	}
	if b.runDone != nil {
		if err := <-b.runDone; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		b.runDone = nil
	}

	errs = append(errs, closeTransportErrs(b.transport)...)
	b.transport = transportpkg.Transport{}

	b.clientMu.Lock()
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
	b.clientMu.Unlock()

	b.stopMetricsServer()

	b.logger.Info("Bridge stopped", loggingpkg.LogFields{"address": b.conf.Address})
	return errors.Join(errs...)
}

// Run starts the bridge and blocks until ctx is cancelled, then stops it.
// Intended for main functions that tie the bridge lifetime to a signal
// context.
func Run(ctx context.Context, b *Bridge) error {
	if b == nil {
		return errspkg.ErrBridgeRequired
	}
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return b.Stop()
}

// Handle processes one inbound message end to end: validate the payload,
// submit it as a record, wait for the outcome, and reply. Messages arriving
// while the stream client is not initialised are dropped without a reply, as
// are messages with a missing or undecodable payload.
func (b *Bridge) Handle(m InboundMessage) {
	client := b.streamClient()
	if client == nil {
		b.logger.Error("Message received before Kinesis client is initialized",
			errspkg.ErrClientNotInitialized, nil)
		b.recordDropped(DropReasonClientNotReady)
		return
	}

	if m.PayloadString() == "" {
		b.logger.Error("Invalid message provided", errspkg.ErrEmptyPayload, nil)
		b.recordDropped(DropReasonEmptyPayload)
		return
	}

	data, err := m.PayloadBytes()
	if err != nil {
		b.logger.Error("Invalid message provided", err, nil)
		b.recordDropped(DropReasonDecode)
		return
	}

	rec := kinesispkg.Record{
		StreamName:   b.conf.StreamName,
		PartitionKey: b.conf.PartitionKey,
		Data:         data,
	}

	ctx, span := b.tracer.Start(context.Background(), "kinesis.put_record",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", rec.StreamName),
			attribute.String("messaging.kinesis.partition_key", rec.PartitionKey),
			attribute.Int("messaging.message.body.size", len(rec.Data)),
		),
	)
	defer span.End()

	b.logger.Info("Writing to stream", loggingpkg.LogFields{
		"stream_name":   rec.StreamName,
		"partition_key": rec.PartitionKey,
		"payload_bytes": len(rec.Data),
	})

	started := time.Now()
	result := <-client.SubmitAsync(ctx, rec)
	elapsed := time.Since(started)

	if result.Err != nil {
		span.RecordError(result.Err)
		b.logger.Error(failureReplyMessage,
			fmt.Errorf("%w: %w", errspkg.ErrSubmissionFailed, result.Err),
			loggingpkg.LogFields{"stream_name": rec.StreamName})
		if b.metrics != nil {
			b.metrics.RecordFailed(rec.StreamName, elapsed)
		}
		if replyErr := m.ReplyError(failureReplyMessage, result.Err); replyErr != nil {
			b.logReplyError(replyErr)
		}
		return
	}

	b.logger.Info("Sent message to Kinesis", loggingpkg.LogFields{
		"stream_name":     rec.StreamName,
		"sequence_number": result.Ack.SequenceNumber,
		"shard_id":        result.Ack.ShardID,
	})
	if b.metrics != nil {
		b.metrics.RecordForwarded(rec.StreamName, elapsed)
	}
	if replyErr := m.ReplyOK(result.Ack); replyErr != nil {
		b.logReplyError(replyErr)
	}
}

func (b *Bridge) streamClient() kinesispkg.StreamClient {
	b.clientMu.RLock()
	defer b.clientMu.RUnlock()
	return b.client
}

func (b *Bridge) setStreamClient(client kinesispkg.StreamClient) {
	b.clientMu.Lock()
	defer b.clientMu.Unlock()
	b.client = client
}

func (b *Bridge) recordDropped(reason string) {
	if b.metrics != nil {
		b.metrics.RecordDropped(reason)
	}
}

func (b *Bridge) logReplyError(err error) {
	// Fire-and-forget senders trigger this on every message; keep it quiet.
	if errors.Is(err, errspkg.ErrReplyAddressMissing) {
		b.logger.Debug("Sender did not request a reply", nil)
		return
	}
	b.logger.Error("Failed to publish reply", err, nil)
}

func (b *Bridge) startMetricsServer() *http.Server {
	if b.conf.MetricsPort <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", b.conf.MetricsPort),
		Handler: mux,
	}

	b.logger.Info("Serving Prometheus metrics", loggingpkg.LogFields{"addr": srv.Addr})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("Metrics server stopped", err, nil)
		}
	}()

	return srv
}

func (b *Bridge) stopMetricsServer() {
	if b.metricsSrv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = b.metricsSrv.Shutdown(shutdownCtx)
	b.metricsSrv = nil
}

func closeTransport(tr transportpkg.Transport) {
	_ = errors.Join(closeTransportErrs(tr)...)
}

func closeTransportErrs(tr transportpkg.Transport) []error {
	var errs []error
	if tr.Publisher != nil {
		if err := tr.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if tr.Subscriber != nil {
		if err := tr.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
