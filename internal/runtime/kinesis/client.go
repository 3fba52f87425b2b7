// Package kinesis wraps the AWS Kinesis Data Streams client behind the small
// asynchronous submission contract the bridge needs.
package kinesis

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	configpkg "github.com/drblury/streambridge/internal/runtime/config"
	loggingpkg "github.com/drblury/streambridge/internal/runtime/logging"
)

// Record is the unit submitted to the stream service: one stream name, one
// partition key, one binary payload. Records are built per invocation and
// discarded after submission.
type Record struct {
	StreamName   string
	PartitionKey string
	Data         []byte
}

// Ack confirms that a record was durably accepted by the stream service.
type Ack struct {
	SequenceNumber string
	ShardID        string
}

// Result is the resolved outcome of one asynchronous submission. Exactly one
// of Ack and Err is set.
type Result struct {
	Ack *Ack
	Err error
}

// StreamClient is the asynchronous submission contract consumed by the
// bridge. SubmitAsync returns immediately; the returned channel delivers
// exactly one Result once the remote outcome is known. Implementations must
// be safe for concurrent use.
type StreamClient interface {
	SubmitAsync(ctx context.Context, rec Record) <-chan Result
	Close()
}

// PutRecordAPI is the slice of the AWS Kinesis API the client uses.
type PutRecordAPI interface {
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

var (
	// DefaultConfigLoader allows overriding the AWS config loader for testing.
	DefaultConfigLoader = awsconfig.LoadDefaultConfig

	// APIFactory allows overriding the Kinesis API construction for testing.
	APIFactory = func(cfg aws.Config, optFns ...func(*kinesis.Options)) PutRecordAPI {
		return kinesis.NewFromConfig(cfg, optFns...)
	}
)

// Client submits records to AWS Kinesis. One Client is owned per bridge
// instance; its connection pool is shared by all concurrent submissions.
type Client struct {
	api        PutRecordAPI
	httpClient *awshttp.BuildableClient
	logger     loggingpkg.ServiceLogger
}

// New builds a Kinesis client from the bridge configuration. Credentials are
// resolved by the SDK default chain (environment variables first); static
// keys in the config override it. Unset tuning values keep the SDK defaults.
func New(ctx context.Context, conf *configpkg.Config, logger loggingpkg.ServiceLogger) (*Client, error) {
	httpClient := buildHTTPClient(conf)

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithHTTPClient(httpClient))

	if conf.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(conf.AWSRegion))
	}
	if conf.AWSAccessKeyID != "" && conf.AWSSecretAccessKey != "" {
		logger.Info("Using static AWS credentials from config", loggingpkg.LogFields{})
		opts = append(opts, awsconfig.WithCredentialsProvider(
			staticCredentialsProvider(conf.AWSAccessKeyID, conf.AWSSecretAccessKey)))
	}

	cfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS default config", err, loggingpkg.LogFields{
			"requested_region": conf.AWSRegion,
		})
		return nil, err
	}

	clientOpts, err := clientOptions(conf)
	if err != nil {
		return nil, err
	}

	logger.Info("Created Kinesis client", loggingpkg.LogFields{
		"region":          cfg.Region,
		"custom_endpoint": conf.AWSEndpoint != "",
	})

	return &Client{
		api:        APIFactory(cfg, clientOpts...),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// SubmitAsync issues one PutRecord without blocking the caller. The returned
// channel is buffered so the submitting goroutine never leaks when the
// caller walks away.
func (c *Client) SubmitAsync(ctx context.Context, rec Record) <-chan Result {
	out := make(chan Result, 1)

	go func() {
		resp, err := c.api.PutRecord(ctx, &kinesis.PutRecordInput{
			StreamName:   aws.String(rec.StreamName),
			PartitionKey: aws.String(rec.PartitionKey),
			Data:         rec.Data,
		})
		if err != nil {
			out <- Result{Err: err}
			return
		}
		out <- Result{Ack: &Ack{
			SequenceNumber: aws.ToString(resp.SequenceNumber),
			ShardID:        aws.ToString(resp.ShardId),
		}}
	}()

	return out
}

// Close releases the idle connections held by the client's HTTP pool. Safe
// to call more than once.
func (c *Client) Close() {
	if c.httpClient != nil {
		c.httpClient.GetTransport().CloseIdleConnections()
	}
}

func buildHTTPClient(conf *configpkg.Config) *awshttp.BuildableClient {
	client := awshttp.NewBuildableClient()

	if conf.ConnectTimeout > 0 {
		client = client.WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = conf.ConnectTimeout
		})
	}

	if conf.SocketTimeout > 0 || conf.MaxConnections > 0 || conf.DisableKeepAlive {
		client = client.WithTransportOptions(func(tr *http.Transport) {
			if conf.SocketTimeout > 0 {
				tr.ResponseHeaderTimeout = conf.SocketTimeout
			}
			if conf.MaxConnections > 0 {
				tr.MaxConnsPerHost = conf.MaxConnections
				tr.MaxIdleConnsPerHost = conf.MaxConnections
			}
			if conf.DisableKeepAlive {
				tr.DisableKeepAlives = true
			}
		})
	}

	return client
}

func clientOptions(conf *configpkg.Config) ([]func(*kinesis.Options), error) {
	var opts []func(*kinesis.Options)

	if conf.UserAgent != "" {
		userAgent := conf.UserAgent
		opts = append(opts, func(o *kinesis.Options) {
			o.APIOptions = append(o.APIOptions, awsmiddleware.AddUserAgentKey(userAgent))
		})
	}

	if conf.AWSEndpoint != "" {
		parsed, err := url.Parse(conf.AWSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
		}
		opts = append(opts, kinesis.WithEndpointResolverV2(staticEndpointResolver{endpoint: *parsed}))
	}

	return opts, nil
}

// staticEndpointResolver pins every request to one endpoint, used for
// LocalStack and other custom deployments.
type staticEndpointResolver struct {
	endpoint url.URL
}

func (r staticEndpointResolver) ResolveEndpoint(context.Context, kinesis.EndpointParameters) (smithyendpoints.Endpoint, error) {
	return smithyendpoints.Endpoint{URI: r.endpoint}, nil
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
