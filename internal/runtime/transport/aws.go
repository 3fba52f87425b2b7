package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/streambridge/internal/runtime/config"
)

const localstackAccountID = "000000000000"

var (
	// AWSConfigLoader allows overriding the AWS config loader for testing.
	AWSConfigLoader = awsconfig.LoadDefaultConfig

	SNSPublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return sns.NewPublisher(cfg, logger)
	}
	SNSSubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sns.NewSubscriber(cfg, sqsCfg, logger)
	}
)

// awsTransport builds an SNS-over-SQS bus: topics are SNS topics, each
// subscription is backed by a generated SQS queue.
func awsTransport(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if conf.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(conf.AWSRegion))
	}
	if conf.AWSAccessKeyID != "" && conf.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(awsStaticCredentials(conf.AWSAccessKeyID, conf.AWSSecretAccessKey)))
	}

	cfg, err := AWSConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS default config", err, watermill.LogFields{"requested_region": conf.AWSRegion})
		return Transport{}, err
	}
	if conf.AWSRegion != "" {
		cfg.Region = conf.AWSRegion
	}

	accountID := resolveAccountID(conf, logger)
	topicResolver, err := sns.NewGenerateArnTopicResolver(accountID, cfg.Region)
	if err != nil {
		logger.Error("Failed to create SNS topic resolver", err, watermill.LogFields{
			"accountID": accountID,
			"region":    cfg.Region,
		})
		return Transport{}, err
	}

	snsOpts, sqsOpts, err := awsEndpointOverrides(conf)
	if err != nil {
		return Transport{}, err
	}

	logger.Info("Created AWS bus transport", watermill.LogFields{
		"region":          cfg.Region,
		"accountID":       accountID,
		"custom_endpoint": conf.AWSEndpoint != "",
	})

	publisher, err := SNSPublisherFactory(sns.PublisherConfig{
		AWSConfig:     cfg,
		OptFns:        snsOpts,
		TopicResolver: topicResolver,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}, logger)
	if err != nil {
		return Transport{}, err
	}

	subscriber, err := SNSSubscriberFactory(
		sns.SubscriberConfig{
			AWSConfig: aws.Config{
				Credentials: aws.AnonymousCredentials{},
			},
			OptFns:        snsOpts,
			TopicResolver: topicResolver,
			GenerateSqsQueueName: func(ctx context.Context, snsTopic sns.TopicArn) (string, error) {
				topic, err := sns.ExtractTopicNameFromTopicArn(snsTopic)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%v-bridge", topic), nil
			},
		},
		sqs.SubscriberConfig{
			AWSConfig: cfg,
			OptFns:    sqsOpts,
		},
		logger,
	)
	if err != nil {
		return Transport{}, err
	}

	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// resolveAccountID falls back to the LocalStack account when a custom
// endpoint is configured and no real account ID is available.
func resolveAccountID(conf *config.Config, logger watermill.LoggerAdapter) string {
	accountID := strings.Trim(conf.AWSAccountID, "\"' ")
	if accountID == "" && conf.AWSEndpoint != "" {
		logger.Info("AWS account ID empty; using LocalStack default", watermill.LogFields{"accountID": localstackAccountID})
		return localstackAccountID
	}
	return accountID
}

func awsEndpointOverrides(conf *config.Config) ([]func(*amazonsns.Options), []func(*amazonsqs.Options), error) {
	if conf.AWSEndpoint == "" {
		return nil, nil, nil
	}

	parsedURL, err := url.Parse(conf.AWSEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
	}

	snsOpts := []func(*amazonsns.Options){
		amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{URI: *parsedURL},
		}),
	}
	sqsOpts := []func(*amazonsqs.Options){
		amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{URI: *parsedURL},
		}),
	}
	return snsOpts, sqsOpts, nil
}

func awsStaticCredentials(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
