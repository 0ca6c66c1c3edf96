package events

import (
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConsumerGroup is the Redis stream consumer group shared by event consumers.
const ConsumerGroup = "quota-gate"

// NewRedisPublisher creates a watermill publisher writing to Redis streams.
func NewRedisPublisher(client redis.UniversalClient, logger *zap.Logger) (*redisstream.Publisher, error) {
	return redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: client},
		NewZapAdapter(logger),
	)
}

// NewRedisSubscriber creates a watermill subscriber reading Redis streams as part of ConsumerGroup.
func NewRedisSubscriber(client redis.UniversalClient, logger *zap.Logger) (*redisstream.Subscriber, error) {
	return redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        client,
			ConsumerGroup: ConsumerGroup,
		},
		NewZapAdapter(logger),
	)
}
