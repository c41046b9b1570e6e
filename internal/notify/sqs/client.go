// Package sqs sends best-effort operational notifications (engine
// disabled, forget-all clears, budget exhaustion) to an SQS queue. A
// failure to publish never fails the engine operation that triggered it.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	attrconfig "github.com/w3c/attribution/internal/config"
)

// Client wraps an SQS producer for operational notifications.
type Client struct {
	client   *sqs.Client
	queueURL string
	log      *zap.Logger
}

// NewClient builds a Client from the process configuration. QueueURL may be
// empty, in which case Publish is a no-op (local/dev hosts need not run an
// SQS-compatible broker).
func NewClient(ctx context.Context, cfg *attrconfig.Config, log *zap.Logger) (*Client, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.SQSRegion),
	}

	var clientOpts []func(*sqs.Options)

	if cfg.SQSEndpoint != "" {
		log.Info("configuring SQS notifier for local development", zap.String("endpoint", cfg.SQSEndpoint))
		configOpts = append(configOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.SQSEndpoint)
		})
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		client:   sqs.NewFromConfig(awsCfg, clientOpts...),
		queueURL: cfg.SQSQueueURL,
		log:      log,
	}, nil
}

// Event is the notification payload published to the queue.
type Event struct {
	Kind    string `json:"kind"`
	Site    string `json:"site,omitempty"`
	Epoch   int64  `json:"epoch,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	EventBudgetExhausted    = "budget_exhausted"
	EventAllVisitsForgotten = "all_visits_forgotten"
	EventEngineDisabled     = "engine_disabled"
)

// Publish sends an Event to the configured queue. Best-effort: with an empty
// QueueURL (no broker configured) it returns without sending or logging, and
// any marshal or transport error is logged and swallowed rather than returned,
// since notification delivery is never part of the six operations' correctness.
func (c *Client) Publish(ctx context.Context, event Event) {
	if c.queueURL == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		c.log.Error("failed to marshal notification event", zap.Error(err))
		return
	}

	_, err = c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Kind),
			},
		},
	})
	if err != nil {
		c.log.Error("failed to publish notification event", zap.String("kind", event.Kind), zap.Error(err))
		return
	}

	c.log.Info("notification event published", zap.String("kind", event.Kind))
}
