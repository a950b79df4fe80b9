package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

const publishTimeout = 10 * time.Second

// SNSClient publishes operational alerts to one topic.
type SNSClient struct {
	svc      snsAPI
	topicArn string
	log      zerolog.Logger
	now      func() time.Time
}

func NewSNSClient(ctx context.Context, region, topicArn string, logger zerolog.Logger) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &SNSClient{
		svc:      sns.NewFromConfig(cfg),
		topicArn: topicArn,
		log:      logger.With().Str("component", "sns").Logger(),
		now:      time.Now,
	}, nil
}

// SendAlert sends an alert notification via SNS
func (c *SNSClient) SendAlert(ctx context.Context, subject, message string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(c.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	}

	result, err := c.svc.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	c.log.Info().Str("message_id", aws.ToString(result.MessageId)).Msg("alert sent")
	return nil
}

// SendConnectionLostAlert reports that the ingest subscriber dropped its broker connection.
// It is called from the subscriber's connection-lost hook and bounds its own publish time.
func (c *SNSClient) SendConnectionLostAlert(broker, topic string, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	subject := "Sensor Telemetry: MQTT connection lost"
	message := fmt.Sprintf(
		"Broker Connection Lost\n\n"+
			"Broker: %s\n"+
			"Topic: %s\n"+
			"Cause: %v\n"+
			"Time: %s\n\n"+
			"The ingest service is reconnecting. Readings published meanwhile may be missing.",
		broker,
		topic,
		cause,
		c.now().UTC().Format(time.RFC3339),
	)

	return c.SendAlert(ctx, subject, message)
}
