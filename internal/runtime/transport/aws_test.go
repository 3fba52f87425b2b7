package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/drblury/streambridge/internal/runtime/config"
)

func stubAWSFactories(t *testing.T) {
	t.Helper()
	origLoader := AWSConfigLoader
	origPub := SNSPublisherFactory
	origSub := SNSSubscriberFactory
	t.Cleanup(func() {
		AWSConfigLoader = origLoader
		SNSPublisherFactory = origPub
		SNSSubscriberFactory = origSub
	})

	AWSConfigLoader = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	SNSPublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return &testPublisher{}, nil
	}
	SNSSubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return &testSubscriber{}, nil
	}
}

func TestAWSTransportBuilds(t *testing.T) {
	stubAWSFactories(t)

	conf := &config.Config{
		AWSRegion:    "us-east-1",
		AWSAccountID: "123456789012",
	}
	tr, err := awsTransport(context.Background(), conf, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Publisher == nil || tr.Subscriber == nil {
		t.Error("expected publisher and subscriber")
	}
}

func TestAWSTransportLoaderError(t *testing.T) {
	stubAWSFactories(t)
	AWSConfigLoader = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}

	_, err := awsTransport(context.Background(), &config.Config{AWSRegion: "us-east-1"}, watermill.NopLogger{})
	if err == nil {
		t.Error("expected error")
	}
}

func TestResolveAccountID(t *testing.T) {
	tests := []struct {
		name string
		conf *config.Config
		want string
	}{
		{"explicit account", &config.Config{AWSAccountID: "123456789012"}, "123456789012"},
		{"quoted account is trimmed", &config.Config{AWSAccountID: `"123456789012"`}, "123456789012"},
		{"localstack fallback", &config.Config{AWSEndpoint: "http://localhost:4566"}, localstackAccountID},
		{"empty without endpoint", &config.Config{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveAccountID(tt.conf, watermill.NopLogger{}); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAWSEndpointOverrides(t *testing.T) {
	t.Run("no endpoint", func(t *testing.T) {
		snsOpts, sqsOpts, err := awsEndpointOverrides(&config.Config{})
		if err != nil {
			t.Fatal(err)
		}
		if snsOpts != nil || sqsOpts != nil {
			t.Error("expected no overrides without an endpoint")
		}
	})

	t.Run("custom endpoint", func(t *testing.T) {
		snsOpts, sqsOpts, err := awsEndpointOverrides(&config.Config{AWSEndpoint: "http://localhost:4566"})
		if err != nil {
			t.Fatal(err)
		}
		if len(snsOpts) != 1 || len(sqsOpts) != 1 {
			t.Errorf("expected one override per service, got %d/%d", len(snsOpts), len(sqsOpts))
		}
	})

	t.Run("malformed endpoint", func(t *testing.T) {
		_, _, err := awsEndpointOverrides(&config.Config{AWSEndpoint: "://bad"})
		if err == nil {
			t.Error("expected error")
		}
	})
}

func TestAWSStaticCredentials(t *testing.T) {
	creds, err := awsStaticCredentials("key", "secret").Retrieve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.AccessKeyID != "key" || creds.SecretAccessKey != "secret" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}
