package service

import (
	"context"

	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService listens for turn.persisted and drops the cached history
// of the analysis that changed.
type consumerService struct {
	pubSub      *gochannel.GoChannel
	topicName   string
	persistence IPersistenceService
	logger      logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	persistence IPersistenceService,
	log logger.ILogger,
) IConsumerService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &consumerService{
		pubSub:      pubSub,
		topicName:   topicName,
		persistence: persistence,
		logger:      log,
	}
}

// Consume subscribes and processes messages on a goroutine until ctx ends.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	evt, err := events.Decode(msg.Payload)
	if err != nil || evt.Type != events.TypeTurnPersisted {
		cs.logger.Warn("EVENTS", "Dropping unreadable event", map[string]interface{}{
			"message_id": msg.UUID,
		})
		msg.Ack() // poison messages would otherwise be redelivered forever
		return
	}

	raw, _ := evt.Data["analysis_id"].(string)
	analysisId, err := uuid.Parse(raw)
	if err != nil {
		cs.logger.Warn("EVENTS", "Event without analysis id", map[string]interface{}{
			"message_id": msg.UUID,
		})
		msg.Ack()
		return
	}

	cs.persistence.InvalidateHistory(analysisId)
	cs.logger.Info("EVENTS", "Turn persisted", map[string]interface{}{
		"analysis_id": analysisId.String(),
		"is_initial":  evt.Data["is_initial"],
	})
	msg.Ack()
}
