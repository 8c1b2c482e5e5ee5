package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/platform/resilience"
)

// maxBatchEntries is the SNS PublishBatch limit
const maxBatchEntries = 10

// SNSAPI is the subset of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// Message is one entry of a batch publish
type Message struct {
	Body       any
	Attributes map[string]string
}

// SNSClient wraps AWS SNS client with resilience patterns
type SNSClient struct {
	client         SNSAPI
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    resilience.RetryConfig
	logger         *observability.Logger
	metrics        *observability.Metrics
}

// SNSClientConfig holds SNS client configuration
type SNSClientConfig struct {
	AWSConfig      aws.Config
	Client         SNSAPI // overrides the client built from AWSConfig
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	RetryConfig    *resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
}

// NewSNSClient creates a new SNS client with resilience patterns
func NewSNSClient(cfg SNSClientConfig) *SNSClient {
	client := cfg.Client
	if client == nil {
		client = sns.NewFromConfig(cfg.AWSConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	retryConfig := resilience.DefaultRetryConfig()
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}

	circuitBreaker := cfg.CircuitBreaker
	if circuitBreaker == nil {
		circuitBreaker = newBreaker("sns", logger, cfg.Metrics)
	}

	return &SNSClient{
		client:         client,
		circuitBreaker: circuitBreaker,
		retryConfig:    retryConfig,
		logger:         logger,
		metrics:        cfg.Metrics,
	}
}

// newBreaker builds the default breaker for an AWS dependency
func newBreaker(name string, logger *observability.Logger, metrics *observability.Metrics) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			logger.Info("circuit breaker state changed",
				"service", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.SetCircuitBreakerState(context.Background(), name, int64(to))
		},
	})
}

// Publish publishes a JSON message to an SNS topic with retry and circuit breaker
func (s *SNSClient) Publish(ctx context.Context, topicARN string, message any, attributes map[string]string) error {
	start := time.Now()

	messageJSON, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(string(messageJSON)),
		MessageAttributes: messageAttributes(attributes),
	}

	err = s.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retryConfig, func(ctx context.Context) error {
			if _, err := s.client.Publish(ctx, input); err != nil {
				return fmt.Errorf("SNS publish failed: %w", err)
			}
			return nil
		})
	})

	s.record(ctx, "publish", topicARN, start, err)
	return err
}

// PublishBatch publishes messages using the native batch API, in chunks of
// ten. Entries SNS reports as failed are returned as an error.
func (s *SNSClient) PublishBatch(ctx context.Context, topicARN string, messages []Message) error {
	for offset := 0; offset < len(messages); offset += maxBatchEntries {
		end := min(offset+maxBatchEntries, len(messages))
		if err := s.publishChunk(ctx, topicARN, messages[offset:end], offset); err != nil {
			return fmt.Errorf("batch publish failed at offset %d: %w", offset, err)
		}
	}
	return nil
}

func (s *SNSClient) publishChunk(ctx context.Context, topicARN string, messages []Message, offset int) error {
	start := time.Now()

	entries := make([]types.PublishBatchRequestEntry, 0, len(messages))
	for i, msg := range messages {
		body, err := json.Marshal(msg.Body)
		if err != nil {
			return fmt.Errorf("failed to marshal message %d: %w", offset+i, err)
		}
		entries = append(entries, types.PublishBatchRequestEntry{
			Id:                aws.String(strconv.Itoa(offset + i)),
			Message:           aws.String(string(body)),
			MessageAttributes: messageAttributes(msg.Attributes),
		})
	}

	err := s.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retryConfig, func(ctx context.Context) error {
			out, err := s.client.PublishBatch(ctx, &sns.PublishBatchInput{
				TopicArn:                   aws.String(topicARN),
				PublishBatchRequestEntries: entries,
			})
			if err != nil {
				return fmt.Errorf("SNS publish batch failed: %w", err)
			}
			if len(out.Failed) > 0 {
				f := out.Failed[0]
				return resilience.Permanent(fmt.Errorf("%d entries rejected, first %s: %s",
					len(out.Failed), aws.ToString(f.Id), aws.ToString(f.Message)))
			}
			return nil
		})
	})

	s.record(ctx, "publish_batch", topicARN, start, err)
	return err
}

func (s *SNSClient) record(ctx context.Context, op, topicARN string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		s.logger.LogError(ctx, "SNS "+op+" failed", err,
			"topic_arn", topicARN,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	s.metrics.RecordPublish(ctx, "sns", status)
}

func messageAttributes(attributes map[string]string) map[string]types.MessageAttributeValue {
	if len(attributes) == 0 {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		out[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return out
}

// CircuitBreakerState returns current circuit breaker state
func (s *SNSClient) CircuitBreakerState() resilience.State {
	return s.circuitBreaker.State()
}

// ResetCircuitBreaker manually resets the circuit breaker
func (s *SNSClient) ResetCircuitBreaker() {
	s.circuitBreaker.Reset()
}
