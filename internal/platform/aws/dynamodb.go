package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/platform/resilience"
)

// ErrItemNotFound is returned by GetItem when the key has no item
var ErrItemNotFound = errors.New("dynamodb item not found")

// DynamoAPI is the subset of the DynamoDB client used here
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoClient wraps the DynamoDB client with retry and a circuit breaker.
// Items are (un)marshalled with attributevalue using dynamodbav tags.
type DynamoClient struct {
	client         DynamoAPI
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    resilience.RetryConfig
	logger         *observability.Logger
}

// DynamoClientConfig holds DynamoDB client configuration
type DynamoClientConfig struct {
	AWSConfig      aws.Config
	Client         DynamoAPI // overrides the client built from AWSConfig
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	RetryConfig    *resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
}

// NewDynamoClient creates a DynamoDB client with resilience patterns
func NewDynamoClient(cfg DynamoClientConfig) *DynamoClient {
	client := cfg.Client
	if client == nil {
		client = dynamodb.NewFromConfig(cfg.AWSConfig)
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
		circuitBreaker = newBreaker("dynamodb", logger, cfg.Metrics)
	}

	return &DynamoClient{
		client:         client,
		circuitBreaker: circuitBreaker,
		retryConfig:    retryConfig,
		logger:         logger,
	}
}

// GetItem loads the item with the given key into out.
// Returns ErrItemNotFound when no item exists.
func (d *DynamoClient) GetItem(ctx context.Context, table string, key map[string]any, out any) error {
	av, err := attributevalue.MarshalMap(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	resp, err := resilience.ExecuteWithResult(d.circuitBreaker, ctx, func(ctx context.Context) (*dynamodb.GetItemOutput, error) {
		return resilience.RetryWithResult(ctx, d.retryConfig, func(ctx context.Context) (*dynamodb.GetItemOutput, error) {
			return d.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName:      aws.String(table),
				Key:            av,
				ConsistentRead: aws.Bool(true),
			})
		})
	})
	if err != nil {
		return fmt.Errorf("dynamodb get %s: %w", table, err)
	}
	if len(resp.Item) == 0 {
		return ErrItemNotFound
	}

	if err := attributevalue.UnmarshalMap(resp.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return nil
}

// PutItem writes item, replacing any item with the same key
func (d *DynamoClient) PutItem(ctx context.Context, table string, item any) error {
	start := time.Now()

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	err = d.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, d.retryConfig, func(ctx context.Context) error {
			_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String(table),
				Item:      av,
			})
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				return resilience.Permanent(err)
			}
			return err
		})
	})
	if err != nil {
		d.logger.LogError(ctx, "dynamodb put failed", err,
			"table", table,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("dynamodb put %s: %w", table, err)
	}
	return nil
}

// CircuitBreakerState returns current circuit breaker state
func (d *DynamoClient) CircuitBreakerState() resilience.State {
	return d.circuitBreaker.State()
}
