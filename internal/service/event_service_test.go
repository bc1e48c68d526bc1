package service

import (
	"context"
	"testing"
	"time"

	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/model"
	"ai-factcheck-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumer_InvalidatesHistory(t *testing.T) {
	db := newTestDB(t)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	svc := newPersistence(t, db, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := NewConsumerService(pubSub, events.TopicTurnPersisted, svc, nil)
	require.NoError(t, consumer.Consume(ctx))

	id, _, err := svc.PersistInitialTurn(ctx, initialInput(), &dto.TurnInput{UserText: "q", AssistantText: "a", ModelId: "demo"})
	require.NoError(t, err)
	history, err := svc.LoadHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// A write that bypasses the service leaves the cache stale until the
	// event arrives.
	require.NoError(t, db.Create(&model.Message{
		Id: uuid.New(), AnalysisId: id, Seq: 3, SenderType: "user", MessageText: "external",
		Timestamp: time.Now().Add(time.Second),
	}).Error)
	history, err = svc.LoadHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)

	payload, err := events.Encode(events.TurnPersisted{AnalysisId: id.String(), OccurredAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, NewPublisherService(events.TopicTurnPersisted, pubSub).Publish(ctx, payload))

	assert.Eventually(t, func() bool {
		h, err := svc.LoadHistory(ctx, id)
		return err == nil && len(h) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConsumer_AcksUnreadableMessages(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	svc := newPersistence(t, newTestDB(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, NewConsumerService(pubSub, events.TopicTurnPersisted, svc, nil).Consume(ctx))

	pub := NewPublisherService(events.TopicTurnPersisted, pubSub)
	valid, err := events.Encode(events.TurnPersisted{AnalysisId: uuid.NewString(), OccurredAt: time.Now()})
	require.NoError(t, err)

	payloads := [][]byte{
		[]byte("not json"),
		[]byte(`{"type":"TURN_PERSISTED","data":{"analysis_id":"nope"}}`),
		valid,
	}
	for _, p := range payloads {
		done := make(chan error, 1)
		go func() { done <- pub.Publish(ctx, p) }()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("publish of %q was never acked", p)
		}
	}
}
