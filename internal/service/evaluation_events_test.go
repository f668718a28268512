package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestEventPublisherPublishesToRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	subscription := client.Subscribe(ctx, "grader:test")
	defer subscription.Close()
	_, err = subscription.Receive(ctx)
	require.NoError(t, err)

	publisher := NewEventPublisher(client, "grader:test", nil, "", zerolog.Nop())
	publisher.Publish(ctx, EvaluationEvent{SubmissionID: 11, UserID: 2, Status: "completed", Score: 3, MaxScore: 5})

	message, err := subscription.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event EvaluationEvent
	require.NoError(t, json.Unmarshal([]byte(message.Payload), &event))
	require.Equal(t, uint(11), event.SubmissionID)
	require.Equal(t, 3, event.Score)
}

func TestEventPublisherWithoutBrokersIsNoop(t *testing.T) {
	publisher := NewEventPublisher(nil, "", nil, "", zerolog.Nop())
	require.NotPanics(t, func() {
		publisher.Publish(context.Background(), EvaluationEvent{SubmissionID: 1})
	})
}
