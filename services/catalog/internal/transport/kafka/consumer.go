package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5/pgxpool"
	eventsDomain "github.com/sakashimaa/marketplace/pkg/domain"
	"github.com/sakashimaa/marketplace/pkg/kafka"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/pkg/outbox/utils"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"go.uber.org/zap"
)

const merchantConsumer = "catalog-merchant-consumer"

type MerchantCleaner interface {
	DeleteMerchantProducts(ctx context.Context, residentID string) ([]*domain.Product, error)
}

// DedupFunc runs action unless eventID was already handled by this consumer.
type DedupFunc func(ctx context.Context, eventID int64, action func(ctx context.Context) error) error

type Consumer struct {
	service MerchantCleaner
	dedup   DedupFunc
	logger  *zap.Logger
}

func NewConsumer(service MerchantCleaner, pool *pgxpool.Pool, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		dedup: func(ctx context.Context, eventID int64, action func(ctx context.Context) error) error {
			return utils.ProcessOnce(ctx, pool, logger, merchantConsumer, eventID, action)
		},
		logger: logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID, topic string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{topic},
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	var envelope eventsDomain.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		// malformed messages are dropped, not redelivered
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return nil
	}

	switch envelope.Event {
	case eventsDomain.EventMerchantDeactivated:
		var event eventsDomain.MerchantDeactivatedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			mylogger.Warn(ctx, c.logger, "Error unmarshalling event structure", zap.Error(err))
			return nil
		}

		if event.ResidentID == "" {
			mylogger.Warn(ctx, c.logger, "Merchant event without resident id", zap.Int64("event_id", envelope.EventID))
			return nil
		}

		action := func(ctx context.Context) error {
			deleted, err := c.service.DeleteMerchantProducts(ctx, event.ResidentID)
			if err != nil {
				return fmt.Errorf("delete products of %s: %w", event.ResidentID, err)
			}

			mylogger.Info(ctx, c.logger, "Merchant products deleted",
				zap.String("resident_id", event.ResidentID),
				zap.Int("count", len(deleted)),
			)
			return nil
		}

		if envelope.EventID == 0 {
			return action(ctx)
		}
		return c.dedup(ctx, envelope.EventID, action)
	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event_type", envelope.Event))
	}

	return nil
}
