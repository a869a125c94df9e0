package commandfeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
	"github.com/rmacdonaldsmith/topichub-go/pkg/hub"
)

func TestDecodeCommand_Publish(t *testing.T) {
	frame, err := publishFrame("floor1.device11.sensor1", []byte{0xde, 0xad})
	require.NoError(t, err)

	cmd, err := decodeCommand(hub.CommandPublish, frame)
	require.NoError(t, err)
	assert.Equal(t, hub.CommandPublish, cmd.Kind)
	assert.Equal(t, "floor1.device11.sensor1", cmd.Topic)
	assert.Equal(t, []byte{0xde, 0xad}, cmd.Payload)
}

func TestDecodeCommand_Subscription(t *testing.T) {
	frame, err := subscriptionFrame("feed-1", "floor1.>")
	require.NoError(t, err)

	cmd, err := decodeCommand(hub.CommandUnsubscribe, frame)
	require.NoError(t, err)
	assert.Equal(t, "feed-1", cmd.SubscriberID)
	assert.Equal(t, "floor1.>", cmd.Topic)
}

func TestDecodeCommand_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		kind   hub.CommandKind
		fields map[string]any
	}{
		{"missing topic", hub.CommandPublish, map[string]any{"payload": ""}},
		{"topic not a string", hub.CommandPublish, map[string]any{"topic": 3}},
		{"payload not base64", hub.CommandPublish, map[string]any{"topic": "a", "payload": "%%%"}},
		{"missing pattern", hub.CommandSubscribe, map[string]any{"subscriber_id": "s"}},
		{"missing subscriber", hub.CommandSubscribe, map[string]any{"pattern": "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)
			_, err = decodeCommand(tt.kind, frame)
			require.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecodeCommand_MissingPayloadIsEmpty(t *testing.T) {
	frame, err := structpb.NewStruct(map[string]any{"topic": "a.b"})
	require.NoError(t, err)

	cmd, err := decodeCommand(hub.CommandPublish, frame)
	require.NoError(t, err)
	assert.Empty(t, cmd.Payload)
}

func TestMessageFrame(t *testing.T) {
	msg := delivery.NewMessageWithHeaders("a.b", []byte("hello"), map[string]string{"k": "v"}).WithSequence(42)

	frame, err := messageFrame(msg)
	require.NoError(t, err)
	got, err := decodeMessage(frame)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), got.Sequence)
	assert.Equal(t, "a.b", got.Topic)
	assert.Equal(t, []byte("hello"), got.Payload)
	assert.Equal(t, map[string]string{"k": "v"}, got.Headers)
	assert.True(t, msg.PublishedAt.Equal(got.PublishedAt))
}

func TestResultFrame(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	frame, err := resultFrame(hub.PublishResult{Sequence: 7, Matched: 3, Enqueued: 2, Dropped: 1, Timestamp: ts})
	require.NoError(t, err)

	got, err := decodeResult(frame)
	require.NoError(t, err)
	assert.Equal(t, hub.PublishResult{Sequence: 7, Matched: 3, Enqueued: 2, Dropped: 1, Timestamp: ts}, got)
}
